// Package fuzzy matches loosely written track titles and artist names, so that
// "Song (Remastered 2011)" and "song - radio edit" compare as the same song.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const decorationWords = `feat\.?|ft\.?|featuring|remix|remaster|remastered|deluxe|extended|radio edit|edit|version|live|mono|stereo|explicit|clean`

var (
	bracketDecorationRegex = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*\b(?:` + decorationWords + `)[^\)\]]*[\)\]]`)
	dashDecorationRegex    = regexp.MustCompile(`(?i)\s+-\s+[^-]*\b(?:` + decorationWords + `).*$`)
	featTailRegex          = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)
	punctRegex             = regexp.MustCompile(`[^\p{L}\p{N}\s&]+`)
	whitespaceRegex        = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeArtist lowercases, strips accents and punctuation, and unifies
// the usual collaboration separators.
func (n *Normalizer) NormalizeArtist(artist string) string {
	artist = " " + n.basicNormalize(artist) + " "

	artist = strings.ReplaceAll(artist, " and ", " & ")
	artist = strings.ReplaceAll(artist, " et ", " & ")
	artist = strings.ReplaceAll(artist, " x ", " & ")

	return strings.TrimSpace(artist)
}

// NormalizeTitle drops featuring credits and remix/remaster/edit decorations.
func (n *Normalizer) NormalizeTitle(title string) string {
	title = bracketDecorationRegex.ReplaceAllString(title, "")
	title = dashDecorationRegex.ReplaceAllString(title, "")
	title = featTailRegex.ReplaceAllString(title, "")
	return n.basicNormalize(title)
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}

	text = punctRegex.ReplaceAllString(b.String(), " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(strings.ToLower(text))
}

// TrackKey is a version-insensitive identity for a song.
func (n *Normalizer) TrackKey(title, artist string) string {
	return n.NormalizeArtist(artist) + "|" + n.NormalizeTitle(title)
}

// CalculateSimilarity returns the longest-common-subsequence ratio of two strings, in [0,1].
func (n *Normalizer) CalculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}
	longest := len(r1)
	if len(r2) > longest {
		longest = len(r2)
	}
	return float64(lcsLength(r1, r2)) / float64(longest)
}

// MatchScore rates how well a track matches a free-text search query.
func (n *Normalizer) MatchScore(query, title, artist string) float64 {
	q := n.NormalizeTitle(query)
	t := n.NormalizeTitle(title)
	combined := n.NormalizeArtist(artist) + " " + t
	return 0.7*n.CalculateSimilarity(t, q) + 0.3*n.CalculateSimilarity(combined, q)
}

// lcsLength keeps two rows of the dynamic programming table.
func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
