package core

import (
	"math"
	"strings"

	"partymix/internal/i18n"
)

const (
	missingTempoPenalty = 50.0
	missingKeyPenalty   = 5.0
	unknownKeyDistance  = 3
	tempoScoreRange     = 60.0
)

var keyNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var pitchClasses = map[string]int{
	"C": 0, "C#": 1, "DB": 1, "D": 2, "D#": 3, "EB": 3, "E": 4, "F": 5,
	"F#": 6, "GB": 6, "G": 7, "G#": 8, "AB": 8, "A": 9, "A#": 10, "BB": 10, "B": 11,
}

// KeyName converts a Spotify pitch class and mode into "C#" or "C#m".
// Pitch classes outside 0..11 (Spotify uses -1 for "no key") yield "".
func KeyName(pitchClass, mode int) string {
	if pitchClass < 0 || pitchClass > 11 {
		return ""
	}
	if mode == 1 {
		return keyNames[pitchClass]
	}
	return keyNames[pitchClass] + "m"
}

// NormalizeKey rewrites a free-form key ("c#M", "Eb", "F♯m") into the
// canonical "C#"/"C#m" spelling. Unparseable keys yield "".
func NormalizeKey(key string) string {
	pitch, minor, ok := parseKey(key)
	if !ok {
		return ""
	}
	if minor {
		return keyNames[pitch] + "m"
	}
	return keyNames[pitch]
}

func parseKey(key string) (pitch int, minor bool, ok bool) {
	k := strings.NewReplacer("♯", "#", "♭", "b").Replace(strings.TrimSpace(key))
	if k == "" {
		return 0, false, false
	}
	if strings.HasSuffix(k, "m") || strings.HasSuffix(k, "M") {
		minor = true
		k = k[:len(k)-1]
	}
	pitch, ok = pitchClasses[strings.ToUpper(k)]
	return pitch, minor, ok
}

// KeyDistance is a coarse harmonic distance between two keys:
// 0 identical, 1 same root with the other mode, 2 a semitone or a fourth/fifth apart,
// 3 when either key cannot be parsed, 4 otherwise.
func KeyDistance(k1, k2 string) int {
	n1, minor1, ok1 := parseKey(k1)
	n2, minor2, ok2 := parseKey(k2)
	if !ok1 || !ok2 {
		return unknownKeyDistance
	}
	if n1 == n2 {
		if minor1 == minor2 {
			return 0
		}
		return 1
	}
	interval := (12 + n1 - n2) % 12
	if other := 12 - interval; other < interval {
		interval = other
	}
	if interval == 1 || interval == 5 {
		return 2
	}
	return 4
}

// tempoDelta is the smallest tempo gap allowing the candidate to be played at half or double time.
func tempoDelta(target, candidate float64) float64 {
	return math.Min(
		math.Abs(target-candidate),
		math.Min(math.Abs(target-candidate*2), math.Abs(target-candidate/2)),
	)
}

// CompatibilityDistance scores how well candidate mixes after target. Lower is better.
func CompatibilityDistance(target, candidate AudioFeatures) float64 {
	var d float64
	if target.HasTempo() && candidate.HasTempo() {
		d += tempoDelta(target.Tempo, candidate.Tempo) / 2
	} else {
		d += missingTempoPenalty
	}
	if target.HasKey() && candidate.HasKey() {
		d += float64(KeyDistance(target.Key, candidate.Key))
	} else {
		d += missingKeyPenalty
	}
	return d
}

// ReasonText explains a suggestion in the localizer's language,
// e.g. "tempo ~128 (Δ≈2) • key Am ↔ C".
func ReasonText(l *i18n.Localizer, target, candidate AudioFeatures) string {
	var parts []string
	if target.HasTempo() && candidate.HasTempo() {
		parts = append(parts, l.T("format.reason.tempo",
			int(math.Round(target.Tempo)), int(math.Round(tempoDelta(target.Tempo, candidate.Tempo)))))
	}
	if target.HasKey() && candidate.HasKey() {
		parts = append(parts, l.T("format.reason.key", target.Key, candidate.Key))
	}
	if len(parts) == 0 {
		return l.T("format.reason.similar")
	}
	return strings.Join(parts, " • ")
}

// ScoreSimilarity returns a similarity in [0,1] from energy, danceability and tempo.
// Unknown values take the full penalty of their weight.
func ScoreSimilarity(seed, candidate AudioFeatures) float64 {
	penalty := 0.0
	if seed.HasEnergy && candidate.HasEnergy {
		penalty += 0.4*math.Abs(seed.Energy-candidate.Energy) +
			0.4*math.Abs(seed.Danceability-candidate.Danceability)
	} else {
		penalty += 0.8
	}
	if seed.HasTempo() && candidate.HasTempo() {
		penalty += 0.2 * math.Min(tempoDelta(seed.Tempo, candidate.Tempo)/tempoScoreRange, 1)
	} else {
		penalty += 0.2
	}
	return math.Max(0, math.Min(1, 1-penalty))
}
