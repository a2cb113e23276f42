package filename

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain title", "Example", "Example"},
		{"spaces become dashes", "The Long Movie", "The-Long-Movie"},
		{"punctuation collapses", "Mission: Impossible - Fallout", "Mission-Impossible-Fallout"},
		{"unicode replaced", "Amélie", "Am-lie"},
		{"underscores kept", "some_file_name", "some_file_name"},
		{"leading and trailing stripped", "...Weird Title!!!", "Weird-Title"},
		{"run of mixed junk", "A///B:::C", "A-B-C"},
		{"digits kept", "2001: A Space Odyssey", "2001-A-Space-Odyssey"},
		{"empty", "", ""},
		{"only junk", "???", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"Mission: Impossible", "The Office (US)", "a - b - c"}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once))
	}
}
