package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"empty", "", "", false},
		{"e164", "+15551234567", "+15551234567", true},
		{"missing plus", "15551234567", "+15551234567", true},
		{"sip uri", "sip:+15551234567@pbx.example.com", "+15551234567", true},
		{"client address", "client:agent42", "client:agent42", true},
		{"spaced digits", "+1 555 123 4567", "+15551234567", true},
		{"too short", "1234", "1234", true},
		{"only whitespace", " \t\n", "", false},
		{"long run is truncated", "12345678901234567890", "+123456789012345", true},
		{"first run wins", "from 55512 to 55598", "+55512", true},
		{"dashed", "555-123-4567", "555-123-4567", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"+15551234567",
		"(555) 123-4567",
		"123 45",
		"tel:+44 20 7946 0958",
		"client:agent42",
		"abc",
		"  +1 2 3 4 5  ",
		"++12345",
		"0000000000000000000000",
		"Ω 12345",
	}

	for _, in := range inputs {
		first, ok := Normalize(in)
		if !ok {
			continue
		}
		second, ok := Normalize(first)
		assert.True(t, ok, "renormalizing %q", first)
		assert.Equal(t, first, second, "Normalize not idempotent for %q", in)
	}
}

func TestNormalizeOrRaw(t *testing.T) {
	assert.Equal(t, "+15557654321", NormalizeOrRaw("15557654321"))
	assert.Equal(t, "", NormalizeOrRaw(""))
	assert.Equal(t, "   ", NormalizeOrRaw("   "))
}
