// Package depth converts raw 11-bit depth samples into an RGB preview image.
package depth

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxRaw is one past the largest raw depth value the sensor reports.
const MaxRaw = 2048

// BytesPerPixel is the size of one colorized pixel.
const BytesPerPixel = 3

// Colorizer maps raw depth samples through a cubic gamma table into six
// colour bands (near is white/red, far is blue, out of range is black).
type Colorizer struct {
	gamma [MaxRaw]uint16
}

// NewColorizer builds the gamma lookup table.
func NewColorizer() *Colorizer {
	c := &Colorizer{}
	for i := range c.gamma {
		v := float64(i) / MaxRaw
		v = math.Pow(v, 3) * 6
		c.gamma[i] = uint16(v * 6 * 256)
	}
	return c
}

// Gamma returns the table entry for a raw sample. Samples outside the sensor
// range map to a value past the last colour band.
func (c *Colorizer) Gamma(raw uint16) uint16 {
	if int(raw) >= MaxRaw {
		return math.MaxUint16
	}
	return c.gamma[raw]
}

// RGBSize returns the number of bytes Colorize writes for n samples.
func RGBSize(n int) int { return n * BytesPerPixel }

// Colorize writes one RGB triple per little-endian uint16 sample of raw into
// dst. dst must be at least RGBSize(len(raw)/2) bytes long.
func (c *Colorizer) Colorize(dst, raw []byte) error {
	n := len(raw) / 2
	if len(raw)%2 != 0 {
		return fmt.Errorf("depth payload has odd length %d", len(raw))
	}
	if len(dst) < RGBSize(n) {
		return fmt.Errorf("rgb buffer too small: %d bytes for %d samples", len(dst), n)
	}
	for i := 0; i < n; i++ {
		c.pixel(dst[3*i:3*i+3], binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return nil
}

func (c *Colorizer) pixel(px []byte, raw uint16) {
	pval := int(c.Gamma(raw))
	lb := byte(pval & 0xff)
	switch pval >> 8 {
	case 0:
		px[0], px[1], px[2] = 255, 255-lb, 255-lb
	case 1:
		px[0], px[1], px[2] = 255, lb, 0
	case 2:
		px[0], px[1], px[2] = 255-lb, 255, 0
	case 3:
		px[0], px[1], px[2] = 0, 255, lb
	case 4:
		px[0], px[1], px[2] = 0, 255-lb, 255
	case 5:
		px[0], px[1], px[2] = 0, 0, 255-lb
	default:
		px[0], px[1], px[2] = 0, 0, 0
	}
}
