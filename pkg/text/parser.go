// Package text normalizes what guests type into the add box and finds the music link in it.
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind tells how an add box input should be resolved.
type Kind int

const (
	// KindQuery is free text used as a catalog search.
	KindQuery Kind = iota
	// KindSpotifyLink is a Spotify track URL or URI.
	KindSpotifyLink
	// KindMusicLink is a link to another music service.
	KindMusicLink
)

func (k Kind) String() string {
	switch k {
	case KindSpotifyLink:
		return "spotify_link"
	case KindMusicLink:
		return "music_link"
	default:
		return "query"
	}
}

// Input is a classified add box entry.
type Input struct {
	Kind Kind
	// Text is the normalized input.
	Text string
	// Link is the cleaned link or URI, empty for KindQuery.
	Link string
}

var (
	urlRegex        = regexp.MustCompile(`https?://\S+`)
	spotifyURIRegex = regexp.MustCompile(`spotify:track:[A-Za-z0-9]+`)
	spaceRegex      = regexp.MustCompile(`\s+`)

	spotifyDomains = map[string]bool{
		"open.spotify.com": true,
		"spotify.com":      true,
		"spotify.link":     true,
		"spotify.app.link": true,
	}

	// Short link hosts redirect to a track and carry no path hint.
	spotifyShortLinks = map[string]bool{
		"spotify.link":     true,
		"spotify.app.link": true,
	}

	musicDomains = map[string]bool{
		"youtube.com":       true,
		"music.youtube.com": true,
		"youtu.be":          true,
		"soundcloud.com":    true,
		"on.soundcloud.com": true,
		"deezer.com":        true,
		"deezer.page.link":  true,
		"link.deezer.com":   true,
		"music.apple.com":   true,
		"itunes.apple.com":  true,
	}

	trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "si", "feature"}
)

// Classify normalizes input and picks the first link in it. Spotify links win over other links.
func Classify(input string) Input {
	normalized := Normalize(input)
	in := Input{Kind: KindQuery, Text: normalized}

	if uri := spotifyURIRegex.FindString(normalized); uri != "" {
		in.Kind = KindSpotifyLink
		in.Link = uri
		return in
	}

	links := ExtractURLs(normalized)
	for _, link := range links {
		if IsSpotifyURL(link) {
			in.Kind = KindSpotifyLink
			in.Link = link
			return in
		}
	}
	for _, link := range links {
		if IsMusicURL(link) {
			in.Kind = KindMusicLink
			in.Link = link
			return in
		}
	}
	return in
}

// Normalize applies NFKC and collapses whitespace, including newlines.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

// ExtractURLs returns the cleaned http(s) links found in s.
func ExtractURLs(s string) []string {
	var links []string
	for _, match := range urlRegex.FindAllString(s, -1) {
		if cleaned := CleanURL(match); cleaned != "" {
			links = append(links, cleaned)
		}
	}
	return links
}

// CleanURL drops trailing punctuation and tracking parameters. It returns "" for anything
// that is not an absolute http(s) URL.
func CleanURL(rawURL string) string {
	rawURL = strings.TrimRight(strings.TrimSpace(rawURL), ".,!?;)")
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	if u.RawQuery != "" {
		q := u.Query()
		for _, param := range trackingParams {
			q.Del(param)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimPrefix(host, "m.")
}

// IsSpotifyURL reports whether rawURL points at a Spotify track or is a Spotify short link.
func IsSpotifyURL(rawURL string) bool {
	host := hostname(rawURL)
	if !spotifyDomains[host] {
		return false
	}
	if spotifyShortLinks[host] {
		return true
	}
	u, _ := url.Parse(rawURL)
	return strings.Contains(u.Path, "/track/")
}

// IsMusicURL reports whether rawURL belongs to a known non-Spotify music service.
func IsMusicURL(rawURL string) bool {
	return musicDomains[hostname(rawURL)]
}
