package transcribe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLanguage indicates a language code the transcription API does
// not recognize.
var ErrInvalidLanguage = errors.New("invalid language code")

// languages maps the ISO 639-1 codes accepted by the transcription API to
// their English names. Not exhaustive.
var languages = map[string]string{
	"af": "Afrikaans", "ar": "Arabic", "bg": "Bulgarian", "bn": "Bengali",
	"ca": "Catalan", "cs": "Czech", "da": "Danish", "de": "German",
	"el": "Greek", "en": "English", "es": "Spanish", "et": "Estonian",
	"fa": "Persian", "fi": "Finnish", "fr": "French", "gu": "Gujarati",
	"he": "Hebrew", "hi": "Hindi", "hr": "Croatian", "hu": "Hungarian",
	"id": "Indonesian", "it": "Italian", "ja": "Japanese", "kn": "Kannada",
	"ko": "Korean", "lt": "Lithuanian", "lv": "Latvian", "mk": "Macedonian",
	"ml": "Malayalam", "mr": "Marathi", "ms": "Malay", "nl": "Dutch",
	"no": "Norwegian", "pa": "Punjabi", "pl": "Polish", "pt": "Portuguese",
	"ro": "Romanian", "ru": "Russian", "sk": "Slovak", "sl": "Slovenian",
	"sr": "Serbian", "sv": "Swedish", "sw": "Swahili", "ta": "Tamil",
	"te": "Telugu", "th": "Thai", "tl": "Tagalog", "tr": "Turkish",
	"uk": "Ukrainian", "ur": "Urdu", "vi": "Vietnamese", "zh": "Chinese",
}

// ValidateLanguage accepts "" (auto-detect), a base code ("fr") or a locale
// whose base is known ("pt-BR", "en_US").
func ValidateLanguage(code string) error {
	if code == "" {
		return nil
	}
	if _, ok := languages[baseLanguage(code)]; !ok {
		return fmt.Errorf("%w %q (use ISO 639-1 codes like 'en', 'fr', 'pt-BR')", ErrInvalidLanguage, code)
	}
	return nil
}

// LanguageName returns the English name of code's base language, or code
// itself when unknown.
func LanguageName(code string) string {
	if name, ok := languages[baseLanguage(code)]; ok {
		return name
	}
	return code
}

// baseLanguage reduces "pt-BR" or "en_US" to the ISO 639-1 base code the
// API accepts.
func baseLanguage(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}
