package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":              "Something went wrong. Please try again.",
	"error.request.invalid":      "Invalid request.",
	"error.request.missing":      "Missing parameter: %s",
	"error.session.invalid":      "This party link is no longer valid. Ask the host for the new one.",
	"error.auth.required":        "Authentication required.",
	"error.auth.login_failed":    "Spotify login failed. Please try again.",
	"error.queue.already_queued": "This track is already in the queue.",
	"error.queue.cooldown":       "This track was played recently. Try again in %d min.",
	"error.queue.rate_limited":   "You added a lot of tracks. Please wait a little before adding more.",
	"error.spotify.not_found":    "Couldn't find that track on Spotify.",
	"error.spotify.unavailable":  "Spotify is not reachable right now.",
	"error.suggest.unavailable":  "Suggestions are unavailable: no Last.fm API key is configured.",
	"error.photo.too_large":      "Photo is too large (max %d MB).",
	"error.photo.unsupported":    "Unsupported photo format.",
	"error.photo.not_found":      "No photos found.",

	// Success messages
	"success.track_added":    "Added: %s - %s",
	"success.track_removed":  "Removed from the queue.",
	"success.session_reset":  "New session started: %s",
	"success.photo_uploaded": "Photo uploaded. Thanks!",

	// Format helpers
	"format.reason.similar": "Similar",
	"format.reason.tempo":   "tempo ~%d (Δ≈%d)",
	"format.reason.key":     "key %s ↔ %s",
}
