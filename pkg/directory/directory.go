package directory

import (
	"callreport-server/pkg/phone"
)

// UnknownName is returned by Resolve for numbers outside the directory
const UnknownName = "Unknown"

// Entry maps a configured phone number, as written by an operator, to a display name
type Entry struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

// Directory resolves normalized numbers to the people who own them.
// It is immutable once built and safe for concurrent use.
type Directory struct {
	names map[string]string
	order []string
}

// New builds a directory by normalizing every entry's number. Entries whose
// number does not normalize are dropped. When two entries normalize to the
// same key the later name wins, but the key keeps its first position.
func New(entries []Entry) *Directory {
	d := &Directory{
		names: make(map[string]string, len(entries)),
	}

	for _, e := range entries {
		key, ok := phone.Normalize(e.Number)
		if !ok {
			continue
		}
		if _, exists := d.names[key]; !exists {
			d.order = append(d.order, key)
		}
		d.names[key] = e.Name
	}

	return d
}

// Resolve returns the display name for a normalized number, or UnknownName
func (d *Directory) Resolve(number string) string {
	if name, ok := d.names[number]; ok {
		return name
	}
	return UnknownName
}

// IsTracked reports whether a normalized number belongs to the directory
func (d *Directory) IsTracked(number string) bool {
	if number == "" {
		return false
	}
	_, ok := d.names[number]
	return ok
}

// Len returns the number of distinct normalized numbers
func (d *Directory) Len() int {
	return len(d.names)
}

// Numbers returns the normalized numbers in configuration order
func (d *Directory) Numbers() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}
