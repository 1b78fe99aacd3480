package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"partymix/internal/core"
)

const (
	// AuthRealm is announced to browsers when the player password is required
	AuthRealm = "Spotify Party Mix"
	// SessionKeyHeader carries the guest session key
	SessionKeyHeader = "X-Session-Key"
)

type contextKey string

const sessionKeyContext contextKey = "sessionKey"

func sessionKeyFrom(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(SessionKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("key"))
}

// requireSession rejects guest requests without the active session key.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := sessionKeyFrom(r)
		if !s.party.ValidSession(key) {
			s.writeError(w, r, core.ErrInvalidSession)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKeyContext, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionKey(ctx context.Context) string {
	key, _ := ctx.Value(sessionKeyContext).(string)
	return key
}

// requireAdmin asks for HTTP basic auth with the player password. Any user
// name is accepted. Without a configured password the admin routes are open.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.password == "" {
			next.ServeHTTP(w, r)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+AuthRealm+`"`)
			s.writeMessage(w, r, http.StatusUnauthorized, "error.auth.required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionKeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every request and counts it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestID", middleware.GetReqID(r.Context())))
	})
}
