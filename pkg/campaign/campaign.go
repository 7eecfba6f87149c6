// Package campaign recognizes personalized bulk sends of the form
// "Hi <Name>, <shared template body>".
package campaign

import (
	"strings"
	"unicode/utf8"

	"callreport-server/pkg/records"
)

// DefaultThreshold is the minimum occurrence count for a template to be
// reported as a campaign
const DefaultThreshold = 10

// MinTemplateLength is the exclusive lower bound, in characters, for the
// trimmed text after the first comma to count as a template
const MinTemplateLength = 30

// Template returns the campaign template of an outbound message body. The
// template is everything after the first comma, trimmed, and must be longer
// than MinTemplateLength characters. Later commas stay in the template.
func Template(direction records.Direction, body string) (string, bool) {
	if direction != records.DirectionOutbound {
		return "", false
	}

	_, rest, found := strings.Cut(body, ",")
	if !found {
		return "", false
	}

	tmpl := strings.TrimSpace(rest)
	if utf8.RuneCountInString(tmpl) <= MinTemplateLength {
		return "", false
	}
	return tmpl, true
}

// Qualifies reports whether a template seen count times is reported as a campaign
func Qualifies(count, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return count >= threshold
}
