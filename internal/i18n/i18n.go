// Package i18n provides internationalization support for user-facing messages
package i18n

import (
	"fmt"
	"strings"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	// FrenchMessages is the language code for French
	FrenchMessages = "fr"
)

// Localizer provides translation functionality
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a new localizer for the specified language.
// Region suffixes are ignored, so "fr-CA" and "fr_FR" both resolve to French.
func NewLocalizer(language string) *Localizer {
	lang := normalizeLanguage(language)
	return &Localizer{
		language: lang,
		messages: getMessages(lang),
	}
}

// Language returns the resolved language code.
func (l *Localizer) Language() string {
	return l.language
}

// T translates a message key, with optional parameters for formatting
func (l *Localizer) T(key string, args ...interface{}) string {
	if message, exists := l.messages[key]; exists {
		return format(message, args)
	}

	// Fallback to English if key not found in current language
	if l.language != DefaultLanguage {
		if fallbackMessage, exists := getMessages(DefaultLanguage)[key]; exists {
			return format(fallbackMessage, args)
		}
	}

	return key
}

func format(message string, args []interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}

// GetSupportedLanguages returns list of supported language codes
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, FrenchMessages}
}

func normalizeLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	for _, supported := range GetSupportedLanguages() {
		if lang == supported {
			return lang
		}
	}
	return DefaultLanguage
}

func getMessages(language string) map[string]string {
	switch language {
	case FrenchMessages:
		return frenchMessages
	default:
		return englishMessages
	}
}
