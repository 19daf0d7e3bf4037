package depth

import (
	"encoding/binary"
	"testing"
)

func rawSamples(vals ...uint16) []byte {
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

func TestGammaTable(t *testing.T) {
	c := NewColorizer()
	tests := []struct {
		raw  uint16
		want uint16
	}{
		{0, 0},
		{100, 1},
		{700, 367},
		{1000, 1072},
		{2047, 9202},
	}
	for _, tt := range tests {
		if got := c.Gamma(tt.raw); got != tt.want {
			t.Errorf("Gamma(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestGammaOutOfRange(t *testing.T) {
	c := NewColorizer()
	if got := c.Gamma(MaxRaw); got>>8 <= 5 {
		t.Errorf("Gamma(%d) = %d, want a value beyond the colour bands", MaxRaw, got)
	}
}

func TestColorize(t *testing.T) {
	c := NewColorizer()
	raw := rawSamples(0, 700, 1000, 2047, 4000)
	dst := make([]byte, RGBSize(5))

	if err := c.Colorize(dst, raw); err != nil {
		t.Fatalf("Colorize: %v", err)
	}

	want := [][3]byte{
		{255, 255, 255}, // band 0, lb 0
		{255, 111, 0},   // band 1, lb 111
		{0, 255 - 48, 255},
		{0, 0, 0},
		{0, 0, 0},
	}
	for i, px := range want {
		got := [3]byte{dst[3*i], dst[3*i+1], dst[3*i+2]}
		if got != px {
			t.Errorf("pixel %d = %v, want %v", i, got, px)
		}
	}
}

func TestColorizeErrors(t *testing.T) {
	c := NewColorizer()

	if err := c.Colorize(make([]byte, 3), []byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd-length payload")
	}
	if err := c.Colorize(make([]byte, 2), rawSamples(1)); err == nil {
		t.Error("expected error for short destination")
	}
}
