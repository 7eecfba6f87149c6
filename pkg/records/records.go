package records

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Direction of a call or message relative to the provider account
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionUnknown  Direction = "unknown"
)

// StatusCompleted is the only call status counted toward volume and talk time
const StatusCompleted = "completed"

// ParseDirection maps provider direction strings such as "outbound-api",
// "outbound-dial" or "inbound" onto a Direction. Matching is by substring
// and case-insensitive; "outbound" is checked first.
func ParseDirection(raw string) Direction {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "outbound"):
		return DirectionOutbound
	case strings.Contains(lower, "inbound"):
		return DirectionInbound
	default:
		return DirectionUnknown
	}
}

// CallRecord is one call leg as exported by the telephony provider
type CallRecord struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Direction string    `json:"direction,omitempty"`
	Status    string    `json:"status,omitempty"`
	Duration  int       `json:"duration"`
	ParentID  string    `json:"parent_call_sid,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
}

// IsChildLeg reports whether the call is a sub-leg of another call
func (c CallRecord) IsChildLeg() bool {
	return strings.TrimSpace(c.ParentID) != ""
}

// IsCompleted reports whether the call status is "completed", ignoring case
func (c CallRecord) IsCompleted() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), StatusCompleted)
}

// MessageRecord is one SMS/MMS as exported by the telephony provider
type MessageRecord struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Direction string    `json:"direction,omitempty"`
	Status    string    `json:"status,omitempty"`
	Body      string    `json:"body,omitempty"`
	SentAt    time.Time `json:"sent_at,omitempty"`
}

// ParseDuration converts a provider duration field to whole seconds.
// Empty, unparsable, negative or non-finite values yield 0.
func ParseDuration(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}

	// Some exports write "125.0"
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
