package text

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantLink string
		wantText string
	}{
		{
			"Spotify track link",
			"Check this out: https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc",
			KindSpotifyLink,
			"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			"Check this out: https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc",
		},
		{
			"Spotify URI",
			"spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			KindSpotifyLink,
			"spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			"spotify:track:4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			"Spotify short link",
			"https://spotify.link/AbCdEf",
			KindSpotifyLink,
			"https://spotify.link/AbCdEf",
			"https://spotify.link/AbCdEf",
		},
		{
			"Spotify app short link",
			"https://spotify.app.link/4xQpKgU9wAb",
			KindSpotifyLink,
			"https://spotify.app.link/4xQpKgU9wAb",
			"https://spotify.app.link/4xQpKgU9wAb",
		},
		{
			"YouTube link",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&feature=share",
			KindMusicLink,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&feature=share",
		},
		{
			"Deezer link with trailing punctuation",
			"play this! https://www.deezer.com/track/3135556.",
			KindMusicLink,
			"https://www.deezer.com/track/3135556",
			"play this! https://www.deezer.com/track/3135556.",
		},
		{
			"Spotify wins over other links",
			"https://youtu.be/abc https://open.spotify.com/track/xyz",
			KindSpotifyLink,
			"https://open.spotify.com/track/xyz",
			"https://youtu.be/abc https://open.spotify.com/track/xyz",
		},
		{
			"Spotify album is not a track",
			"https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3",
			KindQuery,
			"",
			"https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3",
		},
		{
			"unknown site",
			"https://example.com/song",
			KindQuery,
			"",
			"https://example.com/song",
		},
		{
			"free text",
			"  daft punk\n\tone   more time ",
			KindQuery,
			"",
			"daft punk one more time",
		},
		{
			"fullwidth characters",
			"ＡＢＢＡ dancing queen",
			KindQuery,
			"",
			"ABBA dancing queen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.input)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Link != tt.wantLink {
				t.Errorf("Link = %q, want %q", got.Link, tt.wantLink)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips utm", "https://open.spotify.com/track/abc?utm_source=x&utm_medium=y", "https://open.spotify.com/track/abc"},
		{"keeps other params", "https://www.youtube.com/watch?v=abc&si=zzz", "https://www.youtube.com/watch?v=abc"},
		{"no query", "https://youtu.be/abc", "https://youtu.be/abc"},
		{"not http", "ftp://example.com/file", ""},
		{"no host", "https:///path", ""},
		{"plain text", "hello", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanURL(tt.input); got != tt.expected {
				t.Errorf("CleanURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsMusicURL(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"https://m.youtube.com/watch?v=abc", true},
		{"https://music.youtube.com/watch?v=abc", true},
		{"https://soundcloud.com/artist/track", true},
		{"https://music.apple.com/us/album/x/1?i=2", true},
		{"https://open.spotify.com/track/abc", false},
		{"https://example.com", false},
		{"::not a url", false},
	}

	for _, tt := range tests {
		if got := IsMusicURL(tt.input); got != tt.expected {
			t.Errorf("IsMusicURL(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestIsSpotifyURL(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"https://open.spotify.com/track/abc", true},
		{"https://open.spotify.com/intl-de/track/abc", true},
		{"https://spotify.link/xyz", true},
		{"https://spotify.app.link/xyz", true},
		{"https://open.spotify.com/playlist/abc", false},
		{"https://youtu.be/abc", false},
		{"daft punk one more time", false},
	}

	for _, tt := range tests {
		if got := IsSpotifyURL(tt.input); got != tt.expected {
			t.Errorf("IsSpotifyURL(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindQuery.String() != "query" || KindSpotifyLink.String() != "spotify_link" || KindMusicLink.String() != "music_link" {
		t.Error("unexpected Kind names")
	}
}
