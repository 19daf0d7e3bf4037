package serialmux

import (
	"testing"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		// Valid commands
		{"hello", "HELLO", true},
		{"hello with newline", "HELLO\n", true},
		{"tilt level", "TILT 0", true},
		{"tilt down", "TILT -30", true},
		{"tilt max", "TILT 31", true},
		{"calibration", "CAL 1 3q2+7w==", true},

		// Invalid commands
		{"empty", "", false},
		{"lower case", "hello", false},
		{"hello with args", "HELLO there", false},
		{"tilt missing angle", "TILT", false},
		{"tilt not a number", "TILT up", false},
		{"tilt too far", "TILT 32", false},
		{"tilt too low", "TILT -40", false},
		{"calibration missing blob", "CAL 1", false},
		{"calibration bad id", "CAL zero AAAA", false},
		{"calibration zero id", "CAL 0 AAAA", false},
		{"calibration bad base64", "CAL 1 !!!", false},
		{"unknown", "RESET", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.cmd)
			if got := err == nil; got != tt.expected {
				t.Errorf("ValidateCommand(%q) error = %v, want valid=%v", tt.cmd, err, tt.expected)
			}
		})
	}
}
