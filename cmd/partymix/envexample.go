package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"partymix/internal/i18n"
)

const sectionRule = "# =============================================================================\n"

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString(sectionRule)
	content.WriteString("# partymix Configuration\n")
	content.WriteString(sectionRule)
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: " + envPrefix + "_<SECTION>_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	generateSpotifySection(&content, cmd)
	generateFeaturesSection(&content, cmd)
	generateLLMSection(&content, cmd)
	generateServerSection(&content, cmd)
	generateStorageSection(&content, cmd)
	generateAppSection(&content, cmd)
	generateLoggingSection(&content, cmd)
	generateQuickSetupGuide(&content)

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return strings.Trim(f.DefValue, "[]")
	}
	return ""
}

func writeSectionHeader(content *strings.Builder, title string, flags ...string) {
	content.WriteString(sectionRule)
	content.WriteString("# " + title + "\n")
	content.WriteString(sectionRule)
	if len(flags) > 0 {
		content.WriteString("# CLI: --" + strings.Join(flags, ", --") + "\n")
	}
}

// writeDefault writes the flag with its default value and documents that default.
func writeDefault(content *strings.Builder, cmd *cobra.Command, flagName, help string) {
	def := getDefaultValueString(cmd, flagName)
	if strings.ContainsAny(def, " ,") {
		def = `"` + def + `"`
	}
	fmt.Fprintf(content, "%s=%s    # %s (default: %s)\n", flagToEnvVar(flagName), def, help, def)
}

func writeExample(content *strings.Builder, flagName, example, help string) {
	fmt.Fprintf(content, "%s=%s    # %s\n", flagToEnvVar(flagName), example, help)
}

func generateSpotifySection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "SPOTIFY CONFIGURATION - Required",
		"spotify-client-id", "spotify-client-secret", "spotify-source-playlist")
	content.WriteString("# Get these from https://developer.spotify.com/dashboard\n\n")

	writeExample(content, "spotify-client-id", "your_spotify_client_id_here", "Spotify app client ID")
	writeExample(content, "spotify-client-secret", "your_spotify_client_secret_here", "Spotify app client secret")
	writeExample(content, "spotify-refresh-token", "", "Refresh token of the host account, skips the browser login")
	writeExample(content, "spotify-redirect-url", "http://127.0.0.1:3000/callback",
		"OAuth callback URL (default: built from the server address)")
	writeDefault(content, cmd, "spotify-token-path", "Token storage path")
	writeExample(content, "spotify-source-playlist", "", "Playlist the queue is filled from (empty: seed themes)")
	writeDefault(content, cmd, "spotify-fallback-playlist", "Playlist used when every other source fails")
	writeExample(content, "spotify-market", "FR", "Market used for searches")
	content.WriteString("\n")
}

func generateFeaturesSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "AUDIO FEATURES AND SUGGESTIONS - Optional",
		"features-source", "songbpm-api-key", "lastfm-api-key")
	content.WriteString("\n")

	writeDefault(content, cmd, "features-source", "Tempo and key source: spotify, songbpm")
	content.WriteString("# " + flagToEnvVar("songbpm-api-key") + "=...    # Required when the features source is songbpm\n")
	content.WriteString("# " + flagToEnvVar("lastfm-api-key") + "=...    # Enables the extension suggestion endpoint\n")
	content.WriteString("\n")
}

func generateLLMSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "AI/LLM CONFIGURATION - Optional, improves auto-fill searches",
		"llm-provider", "llm-api-key", "llm-model", "llm-base-url")
	content.WriteString("\n")

	writeDefault(content, cmd, "llm-provider", "Provider: none, openai, anthropic, ollama")
	content.WriteString("\n# OpenAI: set " + flagToEnvVar("llm-provider") + "=openai\n")
	fmt.Fprintf(content, "# %s=sk-...\n# %s=gpt-4o-mini\n", flagToEnvVar("llm-api-key"), flagToEnvVar("llm-model"))
	content.WriteString("\n# Anthropic: set " + flagToEnvVar("llm-provider") + "=anthropic\n")
	fmt.Fprintf(content, "# %s=sk-ant-...\n# %s=claude-3-haiku-20240307\n", flagToEnvVar("llm-api-key"), flagToEnvVar("llm-model"))
	content.WriteString("\n# Ollama: set " + flagToEnvVar("llm-provider") + "=ollama\n")
	fmt.Fprintf(content, "# %s=http://localhost:11434\n# %s=llama3.2\n", flagToEnvVar("llm-base-url"), flagToEnvVar("llm-model"))
	content.WriteString("\n")
}

func generateServerSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "HTTP SERVER",
		"server-host", "server-port", "server-public-url", "player-password", "static-dir")
	content.WriteString("\n")

	writeDefault(content, cmd, "server-host", "Listen address")
	writeDefault(content, cmd, "server-port", "Listen port")
	writeExample(content, "server-public-url", "https://party.example.com", "URL guests open (default: built from host and port)")
	writeExample(content, "player-password", "change-me", "Protects the player page and admin API (empty: open)")
	writeDefault(content, cmd, "static-dir", "Directory of the browser pages")
	content.WriteString("\n")
}

func generateStorageSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "STORAGE", "photos-dir", "max-photo-bytes", "history-db")
	content.WriteString("\n")

	writeDefault(content, cmd, "photos-dir", "Photo albums, one directory per session")
	writeDefault(content, cmd, "max-photo-bytes", "Upload size limit in bytes")
	writeExample(content, "history-db", "./partymix.db", "SQLite play history (empty: kept in memory)")
	content.WriteString("\n")
}

func generateAppSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "APPLICATION SETTINGS")
	content.WriteString("\n")

	content.WriteString("# Localization\n")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	writeDefault(content, cmd, "language", "Guest message language: "+supportedLangs)
	writeDefault(content, cmd, "session-name", "Name of the first party session")
	content.WriteString("\n")

	content.WriteString("# Queue management\n")
	writeDefault(content, cmd, "target-queue-length", "Tracks kept waiting in the queue")
	writeDefault(content, cmd, "queue-check-interval-secs", "How often the queue is topped up")
	writeDefault(content, cmd, "seed-themes", "Searches used when no source playlist is set")
	content.WriteString("\n")

	content.WriteString("# Flood prevention\n")
	writeDefault(content, cmd, "play-cooldown-mins", "Minutes before a played track may be queued again, 0=disabled")
	writeDefault(content, cmd, "guest-adds-per-window", "Tracks a guest may add per window")
	writeDefault(content, cmd, "guest-window-secs", "Length of the guest window in seconds")
	content.WriteString("\n")
}

func generateLoggingSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "LOGGING", "log-level", "log-format")
	content.WriteString("\n")

	writeDefault(content, cmd, "log-level", "Level: debug, info, warn, error")
	writeDefault(content, cmd, "log-format", "Format: json, console")
	content.WriteString("\n")
}

func generateQuickSetupGuide(content *strings.Builder) {
	writeSectionHeader(content, "QUICK SETUP GUIDE")
	content.WriteString("#\n")
	content.WriteString("# 1. Create a Spotify app at https://developer.spotify.com/dashboard and add\n")
	content.WriteString("#    the redirect URL above to its settings.\n")
	content.WriteString("# 2. Set the client ID and secret, then run partymix once to log in as the host.\n")
	content.WriteString("# 3. Open /player.html on the machine that plays music.\n")
	content.WriteString("# 4. Share the guest URL printed at startup (or shown on /display.html).\n")
	content.WriteString("#\n")
}
