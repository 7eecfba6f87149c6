package phone

import (
	"regexp"
	"strings"
	"unicode"
)

// digitRun matches an E.164-ish number: optional plus sign and 5 to 15 digits
var digitRun = regexp.MustCompile(`\+?\d{5,15}`)

// Normalize canonicalizes a phone-number-like string into a comparable key.
//
// The first digit run in raw is returned with a leading "+". When raw holds no
// such run, whitespace is stripped and the run search is repeated on the
// stripped text, so "+1 555 123 4567" and "+15551234567" share a key. If
// nothing matches, the stripped text itself is the key. An empty result
// returns ok=false.
//
// Normalize is idempotent for every key it returns.
func Normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	if key, ok := firstRun(raw); ok {
		return key, true
	}

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if stripped == "" {
		return "", false
	}

	if key, ok := firstRun(stripped); ok {
		return key, true
	}
	return stripped, true
}

// NormalizeOrRaw returns the normalized key for raw, or raw unchanged when it
// cannot be normalized.
func NormalizeOrRaw(raw string) string {
	if key, ok := Normalize(raw); ok {
		return key
	}
	return raw
}

func firstRun(s string) (string, bool) {
	match := digitRun.FindString(s)
	if match == "" {
		return "", false
	}
	if !strings.HasPrefix(match, "+") {
		match = "+" + match
	}
	return match, true
}
