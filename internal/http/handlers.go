package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"partymix/internal/core"
)

const (
	maxJSONBody = 64 << 10
	// multipart overhead allowed on top of the photo size limit
	multipartSlack = 1 << 20
	// photoMemory is how much of a multipart upload is held in memory
	photoMemory = 8 << 20
)

type trackResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Artist     string   `json:"artist"`
	Album      string   `json:"album,omitempty"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	DurationMs int64    `json:"durationMs"`
	URI        string   `json:"uri"`
	URL        string   `json:"url,omitempty"`
}

func newTrackResponse(t core.Track) trackResponse {
	return trackResponse{
		ID:         t.ID,
		Name:       t.Title,
		Artists:    t.Artists,
		Artist:     t.Artist(),
		Album:      t.Album,
		ImageURL:   t.ImageURL,
		DurationMs: t.Duration.Milliseconds(),
		URI:        t.URI(),
		URL:        t.URL,
	}
}

func newTrackList(tracks []core.Track) []trackResponse {
	out := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, newTrackResponse(t))
	}
	return out
}

type queueItemResponse struct {
	Track   trackResponse `json:"track"`
	AddedBy string        `json:"addedBy,omitempty"`
	Source  string        `json:"source"`
	AddedAt time.Time     `json:"addedAt"`
}

func newQueueItemResponse(item *core.QueueItem) *queueItemResponse {
	if item == nil {
		return nil
	}
	return &queueItemResponse{
		Track:   newTrackResponse(item.Track),
		AddedBy: item.AddedBy,
		Source:  item.Source,
		AddedAt: item.AddedAt,
	}
}

func newQueueItemList(items []core.QueueItem) []queueItemResponse {
	out := make([]queueItemResponse, 0, len(items))
	for i := range items {
		out = append(out, *newQueueItemResponse(&items[i]))
	}
	return out
}

type queueResponse struct {
	Current  *queueItemResponse  `json:"current"`
	Priority []queueItemResponse `json:"priority"`
	UpNext   []queueItemResponse `json:"upNext"`
	Length   int                 `json:"length"`
}

// featuresResponse uses null for unknown values.
type featuresResponse struct {
	Tempo        *float64 `json:"tempo"`
	Key          *string  `json:"key"`
	Mode         *int     `json:"mode"`
	Energy       *float64 `json:"energy,omitempty"`
	Danceability *float64 `json:"danceability,omitempty"`
}

func newFeaturesResponse(f *core.AudioFeatures) *featuresResponse {
	if f == nil {
		return nil
	}
	out := &featuresResponse{}
	if f.HasTempo() {
		tempo := f.Tempo
		out.Tempo = &tempo
	}
	if f.HasKey() {
		key := f.Key
		mode := 1
		if strings.HasSuffix(key, "m") {
			mode = 0
		}
		out.Key = &key
		out.Mode = &mode
	}
	if f.HasEnergy {
		energy, dance := f.Energy, f.Danceability
		out.Energy = &energy
		out.Danceability = &dance
	}
	return out
}

type suggestionResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	URI      string  `json:"uri"`
	ImageURL string  `json:"imageUrl,omitempty"`
	Reason   string  `json:"reason"`
	Dist     float64 `json:"dist"`
}

type sessionResponse struct {
	Key       string    `json:"key,omitempty"`
	Name      string    `json:"name"`
	Display   string    `json:"display"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	GuestURL  string    `json:"guestUrl,omitempty"`
}

func (s *Server) newSessionResponse(session core.Session, withKey bool) sessionResponse {
	out := sessionResponse{
		Name:      session.Name,
		Display:   session.Display,
		Status:    session.Status,
		CreatedAt: session.CreatedAt,
	}
	if withKey {
		out.Key = session.Key
		if session.Status == core.SessionActive {
			out.GuestURL = strings.TrimRight(s.config.PublicURL, "/") + "/guest.html?key=" + session.Key
		}
	}
	return out
}

type addRequestBody struct {
	TrackID string `json:"trackId"`
	URI     string `json:"uri"`
	URL     string `json:"url"`
	Query   string `json:"query"`
	Guest   string `json:"guest"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func intParam(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.missing", "q")
		return
	}
	tracks, err := s.party.Search(r.Context(), q, intParam(r, "limit", core.DefaultSearchLimit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newTrackList(tracks))
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	snap := s.party.Queue()
	s.writeJSON(w, http.StatusOK, queueResponse{
		Current:  newQueueItemResponse(snap.Current),
		Priority: newQueueItemList(snap.Priority),
		UpNext:   newQueueItemList(snap.UpNext),
		Length:   len(snap.Priority) + len(snap.UpNext),
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	np, err := s.party.Current(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if np == nil {
		s.writeJSON(w, http.StatusOK, map[string]bool{"playing": false})
		return
	}
	track := newTrackResponse(np.Track)
	s.writeJSON(w, http.StatusOK, struct {
		Playing    bool          `json:"playing"`
		IsPlaying  bool          `json:"isPlaying"`
		ProgressMs int64         `json:"progressMs"`
		Track      trackResponse `json:"track"`
	}{true, np.IsPlaying, np.Progress.Milliseconds(), track})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	s.addTrack(w, r, false)
}

func (s *Server) handleAdminAdd(w http.ResponseWriter, r *http.Request) {
	s.addTrack(w, r, true)
}

func (s *Server) addTrack(w http.ResponseWriter, r *http.Request, admin bool) {
	var body addRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.invalid")
		return
	}

	trackID := body.TrackID
	if trackID == "" {
		trackID = body.URI
	}
	req := core.AddRequest{
		SessionKey: sessionKey(r.Context()),
		Guest:      strings.TrimSpace(body.Guest),
		TrackID:    trackID,
		URL:        body.URL,
		Query:      body.Query,
		Admin:      admin,
	}
	if admin && req.Guest == "" {
		req.Guest = "host"
	}

	item, err := s.party.AddTrack(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	loc := s.translator.For(r)
	s.writeJSON(w, http.StatusCreated, struct {
		Message string             `json:"message"`
		Item    *queueItemResponse `json:"item"`
	}{
		Message: loc.T("success.track_added", item.Track.Artist(), item.Track.Title),
		Item:    newQueueItemResponse(item),
	})
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	if s.photos == nil {
		s.writeMessage(w, r, http.StatusNotFound, "error.photo.not_found")
		return
	}
	if s.maxPhotoBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxPhotoBytes+multipartSlack)
	}
	if err := r.ParseMultipartForm(photoMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeMessage(w, r, http.StatusRequestEntityTooLarge, "error.photo.too_large", s.maxPhotoBytes>>20)
			return
		}
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.invalid")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Debug("Failed to remove multipart files", zap.Error(err))
		}
	}()

	file, header, err := r.FormFile("photo")
	if err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.missing", "photo")
		return
	}
	defer file.Close()

	photo, err := s.photos.Save(sessionKey(r.Context()), r.FormValue("guest"), header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, struct {
		Message string      `json:"message"`
		Photo   interface{} `json:"photo"`
	}{s.translator.For(r).T("success.photo_uploaded"), photo})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.newSessionResponse(s.party.Session(), false))
}

func (s *Server) handleAudioFeatures(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.missing", "id")
		return
	}
	f, err := s.party.AudioFeatures(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		ID       string            `json:"id"`
		Features *featuresResponse `json:"features"`
	}{id, newFeaturesResponse(f)})
}

func (s *Server) handleCurrentFeatures(w http.ResponseWriter, r *http.Request) {
	cf, err := s.party.CurrentFeatures(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !cf.Playing || cf.Track == nil {
		s.writeJSON(w, http.StatusOK, map[string]bool{"playing": false})
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Playing  bool              `json:"playing"`
		Track    trackResponse     `json:"track"`
		Features *featuresResponse `json:"features"`
	}{true, newTrackResponse(*cf.Track), newFeaturesResponse(cf.Features)})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := s.party.Suggest(r.Context(), q.Get("name"), q.Get("artists"), intParam(r, "limit", core.DefaultSuggestLimit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]suggestionResponse, 0, len(suggestions))
	for _, sg := range suggestions {
		out = append(out, suggestionResponse{
			ID:       sg.Track.ID,
			Name:     sg.Track.Title,
			Artist:   sg.Track.Artist(),
			URI:      sg.Track.URI(),
			ImageURL: sg.Track.ImageURL,
			Reason:   sg.Reason,
			Dist:     sg.Distance,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.login.LoginURL(), http.StatusFound)
}

// handleLoginCallback receives the Spotify redirect and sends the host back to the player.
func (s *Server) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.login.CompleteLogin(r.Context(), r); err != nil {
		s.logger.Warn("Spotify login failed", zap.Error(err))
		s.writeMessage(w, r, http.StatusBadRequest, "error.auth.login_failed")
		return
	}
	s.logger.Info("Spotify login completed")
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleNextTrack is polled by the player page, which plays the track itself.
// An empty queue answers 204.
func (s *Server) handleNextTrack(w http.ResponseWriter, r *http.Request) {
	item, err := s.party.NextTrack(r.Context())
	if errors.Is(err, core.ErrNotFound) || (err == nil && item == nil) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newQueueItemResponse(item))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackID string `json:"trackId"`
	}
	if err := decodeJSON(r, &body); err != nil || strings.TrimSpace(body.TrackID) == "" {
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.missing", "trackId")
		return
	}
	if err := s.party.RemoveTrack(body.TrackID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": s.translator.For(r).T("success.track_removed")})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	item, err := s.party.Skip(r.Context())
	if item == nil && errors.Is(err, core.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil && item == nil {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		// the queue advanced but playback did not start
		s.logger.Warn("Skipped without playback", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Item    *queueItemResponse `json:"item"`
		Playing bool               `json:"playing"`
	}{newQueueItemResponse(item), err == nil})
}

func (s *Server) handleTogglePlay(w http.ResponseWriter, r *http.Request) {
	playing, err := s.party.TogglePlay(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"playing": playing})
}

func (s *Server) handleAdminSession(w http.ResponseWriter, _ *http.Request) {
	sessions := s.party.Sessions()
	past := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		past = append(past, s.newSessionResponse(session, true))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Active   sessionResponse   `json:"active"`
		Sessions []sessionResponse `json:"sessions"`
	}{s.newSessionResponse(s.party.Session(), true), past})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeMessage(w, r, http.StatusBadRequest, "error.request.invalid")
		return
	}

	session, err := s.party.ResetSession(r.Context(), body.Name)
	if err != nil {
		// the new session is active even if clearing history failed
		s.logger.Error("Session reset incomplete", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Message string          `json:"message"`
		Session sessionResponse `json:"session"`
	}{s.translator.For(r).T("success.session_reset", session.Display), s.newSessionResponse(session, true)})
}

// albumSession is the session named by ?session=, else the active one.
func (s *Server) albumSession(r *http.Request) string {
	if session := strings.TrimSpace(r.URL.Query().Get("session")); session != "" {
		return session
	}
	return s.party.Session().Key
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	if s.photos == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	list, err := s.photos.List(s.albumSession(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	if s.photos == nil {
		s.writeMessage(w, r, http.StatusNotFound, "error.photo.not_found")
		return
	}
	rc, photo, err := s.photos.Open(s.albumSession(r), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(photo.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("Failed to send photo", zap.String("name", photo.Name), zap.Error(err))
	}
}

func (s *Server) handleExportPhotos(w http.ResponseWriter, r *http.Request) {
	if s.photos == nil {
		s.writeMessage(w, r, http.StatusNotFound, "error.photo.not_found")
		return
	}
	session := s.albumSession(r)
	list, err := s.photos.List(session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(list) == 0 {
		s.writeMessage(w, r, http.StatusNotFound, "error.photo.not_found")
		return
	}

	filename := fmt.Sprintf("partymix-photos-%s.zip", time.Now().Format("20060102-1504"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := s.photos.ExportZip(session, w); err != nil {
		// headers are already sent
		s.logger.Error("Photo export failed", zap.String("session", session), zap.Error(err))
	}
}
