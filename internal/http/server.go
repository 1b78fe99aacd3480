package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"partymix/internal/core"
	"partymix/internal/photos"
)

const shutdownTimeout = 10 * time.Second

// PartyService is the party behaviour served over HTTP.
type PartyService interface {
	AddTrack(ctx context.Context, req core.AddRequest) (*core.QueueItem, error)
	RemoveTrack(trackID string) error
	NextTrack(ctx context.Context) (*core.QueueItem, error)
	Skip(ctx context.Context) (*core.QueueItem, error)
	TogglePlay(ctx context.Context) (bool, error)
	Current(ctx context.Context) (*core.NowPlaying, error)
	Queue() core.QueueSnapshot
	Search(ctx context.Context, q string, limit int) ([]core.Track, error)
	AudioFeatures(ctx context.Context, trackID string) (*core.AudioFeatures, error)
	CurrentFeatures(ctx context.Context) (*core.CurrentFeatures, error)
	Suggest(ctx context.Context, name, artists string, limit int) ([]core.Suggestion, error)
	ResetSession(ctx context.Context, name string) (core.Session, error)
	Session() core.Session
	Sessions() []core.Session
	ValidSession(key string) bool
}

// PhotoStore keeps the photo albums of each session.
type PhotoStore interface {
	Save(session, guest, filename string, r io.Reader) (*photos.Photo, error)
	List(session string) ([]photos.Photo, error)
	Open(session, name string) (io.ReadCloser, *photos.Photo, error)
	ExportZip(session string, w io.Writer) (int, error)
}

// HostLogin runs the Spotify login of the host account in the browser.
type HostLogin interface {
	LoginURL() string
	CompleteLogin(ctx context.Context, r *http.Request) error
}

// ServerDeps groups the collaborators of a Server. Photos, Login and Ready are optional.
type ServerDeps struct {
	Party   PartyService
	Photos  PhotoStore
	Login   HostLogin
	Metrics *Metrics
	// Ready reports whether Spotify can be queried.
	Ready func() bool
}

type Server struct {
	config        *core.ServerConfig
	logger        *zap.Logger
	server        *http.Server
	party         PartyService
	photos        PhotoStore
	login         HostLogin
	metrics       *Metrics
	ready         func() bool
	translator    *translator
	password      string
	maxPhotoBytes int64
}

func NewServer(config *core.Config, deps ServerDeps, logger *zap.Logger) *Server {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	ready := deps.Ready
	if ready == nil {
		ready = func() bool { return true }
	}

	s := &Server{
		config:        &config.Server,
		logger:        logger,
		party:         deps.Party,
		photos:        deps.Photos,
		login:         deps.Login,
		metrics:       metrics,
		ready:         ready,
		translator:    newTranslator(config.App.Language),
		password:      config.Server.PlayerPassword,
		maxPhotoBytes: config.Storage.MaxPhotoBytes,
	}
	s.server = createHTTPServer(&config.Server, s.Routes())
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

// Routes builds the router for every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	if s.login != nil {
		r.With(s.requireAdmin).Get("/login", s.handleLogin)
		r.Get("/callback", s.handleLoginCallback)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/search", s.handleSearch)
			r.Get("/queue", s.handleQueue)
			r.Get("/current", s.handleCurrent)
			r.Post("/add", s.handleAdd)
			r.Post("/photos", s.handleUploadPhoto)
			r.Get("/session", s.handleSession)
			r.Get("/audio-features", s.handleAudioFeatures)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/next-track", s.handleNextTrack)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/add", s.handleAdminAdd)
				r.Post("/remove", s.handleRemove)
				r.Post("/next", s.handleSkip)
				r.Post("/toggle-play", s.handleTogglePlay)
				r.Get("/session", s.handleAdminSession)
				r.Post("/session/reset", s.handleResetSession)
				r.Get("/photos", s.handleListPhotos)
				r.Get("/photos/export", s.handleExportPhotos)
				r.Get("/photos/{name}", s.handleGetPhoto)
			})
		})
	})

	r.Route("/ext", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/current-features", s.handleCurrentFeatures)
		r.Get("/suggest", s.handleSuggest)
	})

	s.staticRoutes(r)
	return r
}

// staticRoutes serves the browser pages. The player page needs the admin password.
func (s *Server) staticRoutes(r chi.Router) {
	dir := s.config.StaticDir
	player := s.requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(dir, "player.html"))
	}))
	r.Method(http.MethodGet, "/", player)
	r.Method(http.MethodGet, "/player.html", player)

	for _, page := range []string{"guest", "display", "remote"} {
		target := "/" + page + ".html"
		r.Get("/"+page, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, target, http.StatusFound)
		})
	}

	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Static directory not found", zap.String("dir", dir))
	}
	files := http.FileServer(http.Dir(dir))
	r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(path.Base(r.URL.Path), "player.html") {
			player.ServeHTTP(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "partymix"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "service": "partymix"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "partymix"})
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}
