package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"partymix/internal/core"
	"partymix/internal/i18n"
	"partymix/internal/photos"
	"partymix/internal/spotify"
)

type errorBody struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	RetryAfterMins int    `json:"retryAfterMins,omitempty"`
}

// translator picks the localizer for a request from its Accept-Language
// header, falling back to the configured language.
type translator struct {
	fallback   *i18n.Localizer
	localizers []*i18n.Localizer
	matcher    language.Matcher
}

func newTranslator(defaultLanguage string) *translator {
	codes := i18n.GetSupportedLanguages()
	tags := make([]language.Tag, 0, len(codes))
	localizers := make([]*i18n.Localizer, 0, len(codes))
	for _, code := range codes {
		tags = append(tags, language.Make(code))
		localizers = append(localizers, i18n.NewLocalizer(code))
	}
	return &translator{
		fallback:   i18n.NewLocalizer(defaultLanguage),
		localizers: localizers,
		matcher:    language.NewMatcher(tags),
	}
}

func (t *translator) For(r *http.Request) *i18n.Localizer {
	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return t.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return t.fallback
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No || idx >= len(t.localizers) {
		return t.fallback
	}
	return t.localizers[idx]
}

// errorStatus maps domain errors to an HTTP status and a message key.
func errorStatus(err error) (status int, key string, args []interface{}) {
	var cooldown *core.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return http.StatusConflict, "error.queue.cooldown", []interface{}{cooldown.Remaining}
	case errors.Is(err, core.ErrAlreadyQueued):
		return http.StatusConflict, "error.queue.already_queued", nil
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, "error.queue.rate_limited", nil
	case errors.Is(err, core.ErrInvalidSession):
		return http.StatusForbidden, "error.session.invalid", nil
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "error.spotify.not_found", nil
	case errors.Is(err, photos.ErrNotFound):
		return http.StatusNotFound, "error.photo.not_found", nil
	case errors.Is(err, core.ErrSuggestUnavailable):
		return http.StatusBadRequest, "error.suggest.unavailable", nil
	case errors.Is(err, core.ErrEmptyRequest), errors.Is(err, photos.ErrBadSession):
		return http.StatusBadRequest, "error.request.invalid", nil
	case errors.Is(err, photos.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "error.photo.too_large", nil
	case errors.Is(err, photos.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "error.photo.unsupported", nil
	case errors.Is(err, spotify.ErrNotAuthenticated), errors.Is(err, spotify.ErrNoActiveDevice):
		return http.StatusServiceUnavailable, "error.spotify.unavailable", nil
	default:
		return http.StatusInternalServerError, "error.generic", nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, key string, args ...interface{}) {
	s.writeJSON(w, status, errorBody{
		Error: s.translator.For(r).T(key, args...),
		Code:  key,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, key, args := errorStatus(err)
	if key == "error.photo.too_large" {
		args = []interface{}{s.maxPhotoBytes >> 20}
	}

	body := errorBody{
		Error: s.translator.For(r).T(key, args...),
		Code:  key,
	}
	var cooldown *core.CooldownError
	var limited *core.RateLimitError
	switch {
	case errors.As(err, &cooldown):
		body.RetryAfterMins = cooldown.Remaining
	case errors.As(err, &limited):
		body.RetryAfterMins = limited.Remaining
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		s.logger.Debug("Request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	s.writeJSON(w, status, body)
}
