// Package musiclink turns links from other music services into something the
// Spotify catalogue can be searched with.
package musiclink

import (
	"context"
	"strings"
)

// TrackInfo is what a provider page tells us about a track.
type TrackInfo struct {
	Title  string
	Artist string
}

// Query returns a Spotify search query for the track.
func (t TrackInfo) Query() string {
	title := strings.TrimSpace(t.Title)
	artist := strings.TrimSpace(t.Artist)
	switch {
	case title != "" && artist != "":
		return "track:" + title + " artist:" + artist
	case title != "":
		return title
	default:
		return artist
	}
}

// Resolver extracts track information from one provider's links.
type Resolver interface {
	Name() string
	CanResolve(url string) bool
	Resolve(ctx context.Context, url string) (*TrackInfo, error)
}
