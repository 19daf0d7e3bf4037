// Package posture classifies a patient's body position from joint depths.
package posture

import (
	"math"

	"github.com/banshee-data/bedside/internal/skeleton"
)

// Position is the coarse body position of the tracked patient.
type Position string

const (
	Laying  Position = "laying"
	Turned  Position = "turned"  // shoulders skewed: sitting up or rolling
	Forward Position = "forward" // upright and facing the sensor
	Unknown Position = "unknown" // no sample available yet
)

// Tolerances are the depth thresholds, in millimetres, that separate the
// positions.
type Tolerances struct {
	// Laying is how much deeper the head may sit than the torso before the
	// body counts as horizontal.
	Laying float64
	// Turned is the largest shoulder depth difference still considered
	// square to the sensor.
	Turned float64
}

// DefaultTolerances are used when no tuning file overrides them.
var DefaultTolerances = Tolerances{Laying: 200, Turned: 150}

// Classify reduces the joint depths of one sample to a Position. A body that
// is both horizontal and skewed is reported as Laying. Classify never
// returns Unknown.
func Classify(s skeleton.Sample, tol Tolerances) Position {
	return ClassifyDepths(s.Head.Z, s.Torso.Z, s.LeftShoulder.Z, s.RightShoulder.Z, tol)
}

// ClassifyDepths is Classify over raw Z coordinates.
func ClassifyDepths(headZ, torsoZ, leftZ, rightZ float64, tol Tolerances) Position {
	if headZ-torsoZ > tol.Laying {
		return Laying
	}
	if math.Abs(leftZ-rightZ) > tol.Turned {
		return Turned
	}
	return Forward
}

// Valid reports whether p is one of the defined positions.
func (p Position) Valid() bool {
	switch p {
	case Laying, Turned, Forward, Unknown:
		return true
	}
	return false
}
