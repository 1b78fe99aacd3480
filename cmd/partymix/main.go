// Package main provides the partymix CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"partymix/internal/core"
	"partymix/internal/features"
	"partymix/internal/flood"
	httpserver "partymix/internal/http"
	"partymix/internal/i18n"
	"partymix/internal/lastfm"
	"partymix/internal/llm"
	"partymix/internal/photos"
	"partymix/internal/spotify"
	"partymix/internal/store"
	"partymix/pkg/musiclink"
)

const (
	defaultServerHost = "0.0.0.0"
	envPrefix         = "PARTYMIX"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "partymix",
	Short: "partymix - Spotify party queue",
	Long: `partymix runs a shared Spotify party queue. Guests add tracks from their phone,
the host's player page plays them, and the queue tops itself up with tracks that fit.`,
	RunE: runPartyMix,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret")
	flags.String("spotify-refresh-token", "", "Spotify refresh token (skips the browser login)")
	flags.String("spotify-redirect-url", "", "Spotify OAuth callback URL")
	flags.String("spotify-token-path", "./spotify_token.json", "Spotify token storage path")
	flags.String("spotify-source-playlist", "", "Playlist the queue is filled from")
	flags.String("spotify-fallback-playlist", core.DefaultFallbackPlaylistID, "Playlist used when every other source fails")
	flags.String("spotify-market", "", "Spotify market for searches (e.g. FR)")
	flags.String("features-source", core.FeaturesSourceSpotify, "Audio features source (spotify, songbpm)")
	flags.String("lastfm-api-key", "", "Last.fm API key (enables suggestions)")
	flags.String("songbpm-api-key", "", "GetSongBPM API key")
	flags.String("llm-provider", "none", "LLM provider (openai, anthropic, ollama, none)")
	flags.String("llm-model", "", "LLM model name")
	flags.String("llm-api-key", "", "LLM API key")
	flags.String("llm-base-url", "", "LLM base URL (Ollama)")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	flags.String("server-public-url", "", "Public URL used in guest links")
	flags.String("player-password", "", "Password for the player page and admin API")
	flags.String("static-dir", "./static", "Directory of the browser pages")
	flags.String("photos-dir", "./photos", "Directory of the photo albums")
	flags.Int64("max-photo-bytes", core.DefaultMaxPhotoBytes, "Maximum size of an uploaded photo")
	flags.String("history-db", "", "SQLite file for the play history (in memory when empty)")
	flags.Int("target-queue-length", core.DefaultTargetQueueLength, "Number of tracks kept waiting in the queue")
	flags.Int("queue-check-interval-secs", core.DefaultQueueCheckIntervalSecs, "Queue check interval in seconds")
	flags.Int("play-cooldown-mins", core.DefaultPlayCooldownMins, "Minutes before a played track may be queued again")
	flags.Int("guest-adds-per-window", core.DefaultGuestAddsPerWindow, "Tracks a guest may add per window")
	flags.Int("guest-window-secs", core.DefaultGuestWindowSecs, "Guest rate limit window in seconds")
	flags.StringSlice("seed-themes", core.DefaultSeedThemes, "Searches used to fill the queue when no source playlist is set")
	flags.String("session-name", "Spotify Party Mix", "Name of the first party session")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Language of guest messages (%s)", supportedLangs))
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureSpotify(cfg)
	configureFeatures(cfg)
	configureLLM(cfg)
	configureServer(cfg)
	configureStorage(cfg)
	configureApp(cfg)

	return cfg
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.RefreshToken = viper.GetString("spotify-refresh-token")
	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")
	cfg.Spotify.SourcePlaylistID = viper.GetString("spotify-source-playlist")
	cfg.Spotify.FallbackPlaylistID = viper.GetString("spotify-fallback-playlist")
	cfg.Spotify.Market = viper.GetString("spotify-market")
	cfg.Spotify.TokenPath = viper.GetString("spotify-token-path")
	if cfg.Spotify.TokenPath == "" {
		cfg.Spotify.TokenPath = "./spotify_token.json"
	}
}

func configureFeatures(cfg *core.Config) {
	cfg.Spotify.FeaturesSource = strings.ToLower(viper.GetString("features-source"))
	cfg.LastFM.APIKey = viper.GetString("lastfm-api-key")
	cfg.SongBPM.APIKey = viper.GetString("songbpm-api-key")
}

func configureLLM(cfg *core.Config) {
	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.APIKey = viper.GetString("llm-api-key")
	cfg.LLM.BaseURL = viper.GetString("llm-base-url")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.PlayerPassword = viper.GetString("player-password")
	cfg.Server.StaticDir = viper.GetString("static-dir")

	// Build default URLs from the server address if not explicitly set
	localHost := cfg.Server.Host
	if localHost == defaultServerHost {
		localHost = "127.0.0.1"
	}
	cfg.Server.PublicURL = viper.GetString("server-public-url")
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://%s:%d", localHost, cfg.Server.Port)
	}
	if cfg.Spotify.RedirectURL == "" {
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://%s:%d/callback", localHost, cfg.Server.Port)
	}

	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureStorage(cfg *core.Config) {
	cfg.Storage.PhotosDir = viper.GetString("photos-dir")
	cfg.Storage.MaxPhotoBytes = viper.GetInt64("max-photo-bytes")
	if cfg.Storage.MaxPhotoBytes <= 0 {
		cfg.Storage.MaxPhotoBytes = core.DefaultMaxPhotoBytes
	}
	cfg.Storage.HistoryDBPath = viper.GetString("history-db")
}

func configureApp(cfg *core.Config) {
	cfg.App.TargetQueueLength = positiveOr(viper.GetInt("target-queue-length"), core.DefaultTargetQueueLength)
	cfg.App.QueueCheckIntervalSecs = positiveOr(viper.GetInt("queue-check-interval-secs"), core.DefaultQueueCheckIntervalSecs)
	cfg.App.PlayCooldownMins = viper.GetInt("play-cooldown-mins")
	if cfg.App.PlayCooldownMins < 0 {
		cfg.App.PlayCooldownMins = 0
	}
	cfg.App.GuestAddsPerWindow = positiveOr(viper.GetInt("guest-adds-per-window"), core.DefaultGuestAddsPerWindow)
	cfg.App.GuestWindowSecs = positiveOr(viper.GetInt("guest-window-secs"), core.DefaultGuestWindowSecs)
	cfg.App.SeedThemes = viper.GetStringSlice("seed-themes")
	cfg.App.SessionName = viper.GetString("session-name")

	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}
	supportedLanguages := i18n.GetSupportedLanguages()
	if !slices.Contains(supportedLanguages, cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(supportedLanguages, ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.ToLower(format) == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runPartyMix(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting partymix",
		zap.String("llm_provider", config.LLM.Provider),
		zap.String("source_playlist", config.Spotify.SourcePlaylistID),
		zap.String("features_source", config.Spotify.FeaturesSource),
		zap.Bool("suggestions", config.LastFM.APIKey != ""),
		zap.Bool("persistent_history", config.Storage.HistoryDBPath != ""))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

type services struct {
	spotify    *spotify.Client
	autoFiller *core.AutoFiller
	party      *core.Party
	httpServer *httpserver.Server
	floodgate  *flood.Floodgate
	sqlite     *store.SQLiteHistory
}

func (s *services) close() {
	s.floodgate.Stop()
	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			logger.Debug("Failed to close history database", zap.Error(err))
		}
	}
}

func initializeServices(ctx context.Context) (*services, error) {
	spotifyClient := spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	if err := spotifyClient.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	featureProvider, err := features.NewProvider(config, spotifyClient, logger.Named("features"))
	if err != nil {
		return nil, fmt.Errorf("failed to create features provider: %w", err)
	}

	llmProvider, err := createLLMProvider()
	if err != nil {
		return nil, err
	}

	svcs := &services{
		spotify:   spotifyClient,
		floodgate: flood.New(config.App.GuestAddsPerWindow, config.App.GuestWindow()),
	}

	history, err := createHistory(ctx, svcs)
	if err != nil {
		svcs.close()
		return nil, err
	}

	dedup := store.NewRecentTracks(core.DefaultDedupCapacity, core.DefaultDedupFalsePositiveRate, config.App.DedupTTL())
	if config.App.PlayCooldownMins > 0 {
		recent, histErr := history.PlayedSince(ctx, time.Now().Add(-config.App.PlayCooldown()))
		if histErr != nil {
			logger.Warn("Failed to preload recent plays", zap.Error(histErr))
		}
		dedup.Load(recent)
	}

	metrics := httpserver.NewMetrics()
	metrics.WatchGuests(func() int { return svcs.floodgate.GetStats().ActiveGuests })
	queue := core.NewQueue()

	svcs.autoFiller = core.NewAutoFiller(config, core.AutoFillerDeps{
		Queue:    queue,
		Spotify:  spotifyClient,
		Features: featureProvider,
		History:  history,
		Dedup:    dedup,
		LLM:      llmProvider,
		Metrics:  metrics,
	}, logger.Named("autofill"))

	partyDeps := core.PartyDeps{
		Queue:    queue,
		Sessions: core.NewSessionManager(config.App.SessionName),
		Spotify:  spotifyClient,
		Features: featureProvider,
		History:  history,
		Dedup:    dedup,
		Limiter:  svcs.floodgate,
		Links:    musiclink.NewManager(),
		Waker:    svcs.autoFiller,
		Metrics:  metrics,
	}
	if lastfmClient := lastfm.NewClient(&config.LastFM, logger.Named("lastfm")); lastfmClient.Enabled() {
		partyDeps.Similar = lastfmClient
	}
	svcs.party = core.NewParty(config, partyDeps, logger.Named("party"))

	svcs.httpServer = httpserver.NewServer(config, httpserver.ServerDeps{
		Party:   svcs.party,
		Photos:  photos.NewStore(config.Storage.PhotosDir, config.Storage.MaxPhotoBytes, logger.Named("photos")),
		Login:   spotifyClient,
		Metrics: metrics,
		Ready:   spotifyClient.Ready,
	}, logger.Named("http"))

	return svcs, nil
}

func createHistory(ctx context.Context, svcs *services) (core.PlayHistory, error) {
	if config.Storage.HistoryDBPath == "" {
		return store.NewMemoryHistory(), nil
	}
	sqlite, err := store.OpenSQLiteHistory(ctx, config.Storage.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	svcs.sqlite = sqlite
	return sqlite, nil
}

// createLLMProvider returns nil when no provider is configured so the
// auto-filler uses its plain search query.
func createLLMProvider() (core.LLMProvider, error) {
	if config.LLM.Provider == llm.ProviderNone || config.LLM.Provider == "" {
		return nil, nil
	}
	provider, err := llm.NewProvider(&config.LLM, logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.autoFiller.Run(gCtx)
	})

	session := svcs.party.Session()
	logger.Info("partymix started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.String("session", session.Display),
		zap.String("guest_url", strings.TrimRight(config.Server.PublicURL, "/")+"/guest.html?key="+session.Key))

	if err := g.Wait(); err != nil {
		logger.Error("partymix stopped with error", zap.Error(err))
		return err
	}

	logger.Info("partymix stopped gracefully")
	return nil
}

func validateConfig() error {
	if err := validateSpotifyConfig(); err != nil {
		return err
	}

	if err := validateLLMConfig(); err != nil {
		return err
	}

	if config.Spotify.FeaturesSource == core.FeaturesSourceSongBPM && config.SongBPM.APIKey == "" {
		return fmt.Errorf("songbpm API key is required when features source is %s", core.FeaturesSourceSongBPM)
	}

	return nil
}

func validateSpotifyConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	return nil
}

func validateLLMConfig() error {
	if config.LLM.Provider != llm.ProviderNone && config.LLM.Provider != "" {
		if config.LLM.APIKey == "" && config.LLM.Provider != "ollama" {
			return fmt.Errorf("LLM API key is required for provider: %s", config.LLM.Provider)
		}
	}
	return nil
}
