package source

import (
	"strings"
	"time"

	"callreport-server/pkg/errors"
)

// Window is a half-open time range [Start, End). A zero Start or End leaves
// that side unbounded.
type Window struct {
	Label string    `json:"label"`
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Window presets offered to report users
const (
	WindowToday     = "today"
	WindowYesterday = "yesterday"
	Window7Days     = "7d"
	Window30Days    = "30d"
	WindowAll       = "all"
)

// WindowLabels lists the presets in display order
var WindowLabels = []string{WindowToday, WindowYesterday, Window7Days, Window30Days, WindowAll}

// ParseWindow builds the window for a preset label relative to now, with day
// boundaries computed in loc
func ParseWindow(label string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case WindowToday:
		return Window{Label: label, Start: midnight, End: midnight.AddDate(0, 0, 1)}, nil
	case WindowYesterday:
		return Window{Label: label, Start: midnight.AddDate(0, 0, -1), End: midnight}, nil
	case Window7Days:
		return Window{Label: label, Start: local.AddDate(0, 0, -7), End: local}, nil
	case Window30Days:
		return Window{Label: label, Start: local.AddDate(0, 0, -30), End: local}, nil
	case WindowAll:
		return Window{Label: label}, nil
	default:
		return Window{}, errors.NewInvalidWindow(label)
	}
}

// Bounded reports whether the window restricts time at all
func (w Window) Bounded() bool {
	return !w.Start.IsZero() || !w.End.IsZero()
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}
