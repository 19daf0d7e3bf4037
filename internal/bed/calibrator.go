// Package bed tracks where the patient's bed is and whether they have left it.
package bed

import (
	"math"

	"github.com/banshee-data/bedside/internal/posture"
)

// DefaultTolerance is the lateral distance, in millimetres, the torso may
// move from the bed reference before the patient counts as out of bed.
const DefaultTolerance = 400.0

// Calibrator fixes the bed reference the first time the patient is seen
// laying and then reports lateral displacement against it.
//
// The reference is set once per session. If the first laying observation was
// not actually in bed the reference stays wrong until Reset is called.
type Calibrator struct {
	tolerance float64

	bedSet    bool
	reference float64
	outOfBed  bool
}

// NewCalibrator creates an uncalibrated Calibrator. A non-positive tolerance
// selects DefaultTolerance.
func NewCalibrator(tolerance float64) *Calibrator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Calibrator{tolerance: tolerance}
}

// Observe feeds one classified cycle into the calibrator and returns the
// updated out-of-bed flag.
func (c *Calibrator) Observe(pos posture.Position, torsoX float64) bool {
	if !c.bedSet {
		if pos != posture.Laying {
			return false
		}
		c.reference = torsoX
		c.bedSet = true
		c.outOfBed = false
		return false
	}
	c.outOfBed = math.Abs(torsoX-c.reference) > c.tolerance
	return c.outOfBed
}

// BedSet reports whether the bed reference has been fixed.
func (c *Calibrator) BedSet() bool { return c.bedSet }

// Reference returns the bed reference X and whether it has been set.
func (c *Calibrator) Reference() (float64, bool) { return c.reference, c.bedSet }

// OutOfBed returns the flag computed by the last Observe. It is always false
// before the bed reference is set.
func (c *Calibrator) OutOfBed() bool { return c.outOfBed }

// Displacement returns |torsoX - reference| and false when uncalibrated.
func (c *Calibrator) Displacement(torsoX float64) (float64, bool) {
	if !c.bedSet {
		return 0, false
	}
	return math.Abs(torsoX - c.reference), true
}

// Tolerance returns the configured out-of-bed tolerance.
func (c *Calibrator) Tolerance() float64 { return c.tolerance }

// Reset returns the calibrator to the uncalibrated state.
func (c *Calibrator) Reset() {
	c.bedSet = false
	c.reference = 0
	c.outOfBed = false
}
