// Package testutil provides shared test helpers and skeleton fixtures.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/bedside/internal/skeleton"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// DecodeJSON decodes the recorder body into v, failing the test on error.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// Pose describes a skeleton by the coordinates the classifier and bed
// calibrator read.
type Pose struct {
	HeadZ, TorsoZ, LeftZ, RightZ float64
	TorsoX                       float64
	Confidence                   float64 // zero means 1
}

// Common poses, in millimetres from the sensor.
var (
	LayingPose  = Pose{HeadZ: 2500, TorsoZ: 2200, LeftZ: 2200, RightZ: 2200, TorsoX: 1000}
	TurnedPose  = Pose{HeadZ: 2000, TorsoZ: 2000, LeftZ: 2200, RightZ: 2000, TorsoX: 1000}
	ForwardPose = Pose{HeadZ: 2000, TorsoZ: 2000, LeftZ: 2000, RightZ: 2000, TorsoX: 1000}
)

// At returns a copy of p with the torso moved to x.
func (p Pose) At(x float64) Pose {
	p.TorsoX = x
	return p
}

// Joints expands p into the joint map stored by a skeleton.Table.
func (p Pose) Joints() map[skeleton.Joint]skeleton.Position {
	c := p.Confidence
	if c == 0 {
		c = 1
	}
	at := func(x, z float64) skeleton.Position {
		return skeleton.Position{Vector: r3.Vector{X: x, Z: z}, Confidence: c}
	}
	return map[skeleton.Joint]skeleton.Position{
		skeleton.Head:          at(p.TorsoX, p.HeadZ),
		skeleton.Torso:         at(p.TorsoX, p.TorsoZ),
		skeleton.LeftShoulder:  at(p.TorsoX-200, p.LeftZ),
		skeleton.RightShoulder: at(p.TorsoX+200, p.RightZ),
	}
}
