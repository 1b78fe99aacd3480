package core

import "errors"

var (
	ErrAlreadyQueued      = errors.New("track already queued")
	ErrCooldown           = errors.New("track played recently")
	ErrRateLimited        = errors.New("guest rate limit exceeded")
	ErrInvalidSession     = errors.New("invalid session key")
	ErrNotFound           = errors.New("not found")
	ErrSuggestUnavailable = errors.New("suggestions unavailable: no Last.fm API key")
	ErrEmptyRequest       = errors.New("no track, link or query given")
)

// CooldownError carries the time left before a track may be queued again.
type CooldownError struct {
	TrackID   string
	Remaining int // minutes, rounded up
}

func (e *CooldownError) Error() string {
	return ErrCooldown.Error()
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldown
}

// RateLimitError carries the time left before a guest may add again.
type RateLimitError struct {
	Remaining int // minutes, rounded up
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
