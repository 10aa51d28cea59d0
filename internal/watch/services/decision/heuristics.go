package decision

import (
	"strings"
	"unicode"
)

// Minimum content required before the language identifier is trusted.
const (
	minLetters = 5
	minWords   = 3
)

// englishMisdetections are codes the identifier commonly returns for short
// English text.
var englishMisdetections = map[string]struct{}{
	"so": {}, "tl": {}, "zu": {}, "cy": {}, "id": {},
}

var playlistMarkers = []string{"list=", "start_radio="}

// isMix reports whether the title or source URL marks an auto-generated
// mix or playlist. "mix" matches anywhere in the title, including words
// like "Mixtape".
func isMix(lowerTitle, sourceURL string) bool {
	if strings.Contains(lowerTitle, "mix") {
		return true
	}
	for _, m := range playlistMarkers {
		if strings.Contains(sourceURL, m) {
			return true
		}
	}
	return false
}

// hasArabic reports whether s contains a rune from the Arabic or Arabic
// Supplement blocks.
func hasArabic(s string) bool {
	for _, r := range s {
		if (r >= 0x0600 && r <= 0x06FF) || (r >= 0x0750 && r <= 0x077F) {
			return true
		}
	}
	return false
}

// stripAstral drops every rune at or above U+10000 (emoji and friends).
func stripAstral(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x10000 {
			return -1
		}
		return r
	}, s)
}

// detectable reports whether cleaned carries enough letters and words for
// the identifier to be meaningful.
func detectable(cleaned string) bool {
	if len(strings.Fields(cleaned)) < minWords {
		return false
	}
	letters := 0
	for _, r := range cleaned {
		if unicode.IsLetter(r) {
			letters++
			if letters >= minLetters {
				return true
			}
		}
	}
	return false
}

// remapEnglish maps a known English misdetection back to "en" when the
// cleaned text still contains a Latin "a".
func remapEnglish(code, cleaned string) string {
	if _, ok := englishMisdetections[code]; ok && strings.ContainsRune(strings.ToLower(cleaned), 'a') {
		return "en"
	}
	return code
}
