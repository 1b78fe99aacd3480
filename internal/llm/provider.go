// Package llm turns the tracks a party has been playing into a playlist search
// query, using whichever language model backend is configured.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"partymix/internal/core"
)

const (
	// MaxSeedTracks limits how many recent tracks are described in the prompt
	MaxSeedTracks = 5
	// MaxQueryLength caps the generated search query
	MaxQueryLength = 80
	// ProviderNone disables query generation
	ProviderNone = "none"

	searchQueryTemperature = 0.7
	maxTokensSearchQuery   = 60
)

// ErrNotConfigured is returned when no LLM backend is configured.
var ErrNotConfigured = errors.New("LLM provider not configured")

var queryNoiseRegex = regexp.MustCompile(`(?i)^(?:search\s+query|query|playlist)\s*:\s*`)

const searchQuerySystemPrompt = `You are a DJ at a house party picking the next playlist to draw songs from.
Given the tracks that just played, reply with a short Spotify playlist search query
(2 to 5 words) describing their genre, era and mood.

Rules:
- Reply with the query only, on a single line
- No quotes, no explanations, no artist names unless they define the genre
- Prefer widely used playlist vocabulary (e.g. "french house party", "90s eurodance hits")`

// Completer sends one system + user prompt pair to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Provider struct {
	config *core.LLMConfig
	logger *zap.Logger
	client Completer
}

func NewProvider(config *core.LLMConfig, logger *zap.Logger) (*Provider, error) {
	var client Completer
	var err error

	switch strings.ToLower(config.Provider) {
	case "openai":
		client, err = NewOpenAIClient(config, logger)
	case "anthropic":
		client, err = NewAnthropicClient(config, logger)
	case "ollama":
		client, err = NewOllamaClient(config, logger)
	case ProviderNone, "":
		return &Provider{config: config, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	return &Provider{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

// Enabled reports whether a backend is configured.
func (p *Provider) Enabled() bool {
	return p != nil && p.client != nil
}

// GenerateSearchQuery asks the model for a playlist search query matching seedTracks.
func (p *Provider) GenerateSearchQuery(ctx context.Context, seedTracks []core.Track) (string, error) {
	if !p.Enabled() {
		return "", ErrNotConfigured
	}
	if len(seedTracks) == 0 {
		return "", fmt.Errorf("no seed tracks")
	}

	reply, err := p.client.Complete(ctx, searchQuerySystemPrompt, buildSeedPrompt(seedTracks))
	if err != nil {
		return "", err
	}

	query := sanitizeQuery(reply)
	if query == "" {
		return "", fmt.Errorf("empty search query from %s", p.config.Provider)
	}

	p.logger.Debug("Generated search query",
		zap.String("provider", p.config.Provider),
		zap.Int("seedTracks", len(seedTracks)),
		zap.String("query", query))

	return query, nil
}

func buildSeedPrompt(tracks []core.Track) string {
	if len(tracks) > MaxSeedTracks {
		tracks = tracks[len(tracks)-MaxSeedTracks:]
	}

	var b strings.Builder
	b.WriteString("Recently played:\n")
	for i, t := range tracks {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, t.Artist(), t.Title)
	}
	return b.String()
}

// sanitizeQuery keeps the first non-empty line of a model reply, without
// quotes or a "Query:" label.
func sanitizeQuery(reply string) string {
	var line string
	for _, l := range strings.Split(reply, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	line = queryNoiseRegex.ReplaceAllString(line, "")
	line = strings.Trim(line, "\"'`“”«» .")
	line = strings.Join(strings.Fields(line), " ")

	if r := []rune(line); len(r) > MaxQueryLength {
		line = strings.TrimSpace(string(r[:MaxQueryLength]))
	}
	return line
}
