package i18n

import (
	"sort"
	"strings"
	"testing"
)

// TestI18nCompleteness verifies that all language profiles contain all message keys
func TestI18nCompleteness(t *testing.T) {
	languages := GetSupportedLanguages()
	if len(languages) == 0 {
		t.Fatal("No supported languages found")
	}

	referenceMessages := getMessages(DefaultLanguage)
	if len(referenceMessages) == 0 {
		t.Fatal("No reference messages found in default language")
	}

	var referenceKeys []string
	for key := range referenceMessages {
		referenceKeys = append(referenceKeys, key)
	}
	sort.Strings(referenceKeys)

	for _, lang := range languages {
		t.Run("Language_"+lang, func(t *testing.T) {
			messages := getMessages(lang)

			var missingKeys []string
			for _, refKey := range referenceKeys {
				if _, exists := messages[refKey]; !exists {
					missingKeys = append(missingKeys, refKey)
				}
			}
			if len(missingKeys) > 0 {
				t.Errorf("Language %s is missing %d keys: %v", lang, len(missingKeys), missingKeys)
			}

			for key := range messages {
				if _, exists := referenceMessages[key]; !exists {
					t.Errorf("Language %s has key %q that is not in the reference", lang, key)
				}
			}
		})
	}
}

// TestI18nKeyConsistency verifies that all message keys follow expected patterns
func TestI18nKeyConsistency(t *testing.T) {
	expectedPrefixes := []string{"error.", "success.", "format."}

	for key := range getMessages(DefaultLanguage) {
		hasValidPrefix := false
		for _, prefix := range expectedPrefixes {
			if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
				hasValidPrefix = true
				break
			}
		}
		if !hasValidPrefix {
			t.Errorf("Message key '%s' does not follow expected naming convention (%v)", key, expectedPrefixes)
		}
	}
}

// TestI18nPlaceholders verifies translations keep the same placeholders as English
func TestI18nPlaceholders(t *testing.T) {
	reference := getMessages(DefaultLanguage)
	for _, lang := range GetSupportedLanguages() {
		messages := getMessages(lang)
		for key, refMessage := range reference {
			msg, ok := messages[key]
			if !ok {
				continue
			}
			if countPlaceholders(msg) != countPlaceholders(refMessage) {
				t.Errorf("%s/%s: placeholder mismatch %q vs %q", lang, key, msg, refMessage)
			}
		}
	}
}

func countPlaceholders(message string) int {
	count := 0
	for i := 0; i < len(message)-1; i++ {
		if message[i] == '%' && (message[i+1] == 's' || message[i+1] == 'd') {
			count++
		}
	}
	return count
}

func TestLocalizerFunctionality(t *testing.T) {
	localizer := NewLocalizer(DefaultLanguage)

	result := localizer.T("error.generic")
	if result == "" || result == "error.generic" {
		t.Errorf("Expected translated message for 'error.generic', got: %s", result)
	}

	nonExistentKey := "this.key.does.not.exist"
	if result = localizer.T(nonExistentKey); result != nonExistentKey {
		t.Errorf("Expected fallback to key name for non-existent key, got: %s", result)
	}

	if result = localizer.T("success.track_added", "Daft Punk", "One More Time"); result != "Added: Daft Punk - One More Time" {
		t.Errorf("unexpected formatted message: %q", result)
	}

	fr := NewLocalizer(FrenchMessages)
	if got := fr.T("error.queue.cooldown", 12); got != "Ce morceau a été joué récemment. Réessaie dans 12 min." {
		t.Errorf("unexpected french message: %q", got)
	}
}

func TestNewLocalizerNormalizesLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", DefaultLanguage},
		{"fr", FrenchMessages},
		{"FR-ca", FrenchMessages},
		{"fr_FR", FrenchMessages},
		{"de", DefaultLanguage},
		{"", DefaultLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NewLocalizer(tt.in).Language(); got != tt.want {
				t.Errorf("NewLocalizer(%q).Language() = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func BenchmarkLocalizerWithArgs(b *testing.B) {
	localizer := NewLocalizer(DefaultLanguage)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = localizer.T("success.track_added", "Artist", "Title")
	}
}
