// Package skeleton describes the joint positions reported by the external
// body-tracking engine and how they are sampled for one person.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
)

// PersonID identifies a person recognized by the tracking engine.
type PersonID int

// Joint names a tracked anatomical landmark.
type Joint string

const (
	Head          Joint = "head"
	Torso         Joint = "torso"
	LeftShoulder  Joint = "left_shoulder"
	RightShoulder Joint = "right_shoulder"
)

// MonitoredJoints are the joints a Sample is built from, in fetch order.
var MonitoredJoints = []Joint{Head, Torso, LeftShoulder, RightShoulder}

// ErrNotTracked is returned by a Sampler when the person has no skeleton in
// the current frame.
var ErrNotTracked = errors.New("person not tracked")

// Position is a joint location in real-world millimetres together with the
// engine's confidence in it.
type Position struct {
	r3.Vector
	Confidence float64
}

// Sampler returns the position of one joint of one person for the current
// frame.
type Sampler interface {
	Joint(id PersonID, joint Joint) (Position, error)
}

// SnapshotSampler returns every monitored joint of one person from a single
// frame. Take prefers it over per-joint calls.
type SnapshotSampler interface {
	Sample(id PersonID) (Sample, error)
}

// Sample holds the four joints the posture classifier consumes.
type Sample struct {
	Head          Position
	Torso         Position
	LeftShoulder  Position
	RightShoulder Position
}

// Take fetches all monitored joints for id from s. Samplers that can also
// implement SnapshotSampler so the joints cannot span two frames.
func Take(s Sampler, id PersonID) (Sample, error) {
	if ss, ok := s.(SnapshotSampler); ok {
		return ss.Sample(id)
	}
	var out Sample
	for _, j := range MonitoredJoints {
		p, err := s.Joint(id, j)
		if err != nil {
			return Sample{}, fmt.Errorf("sample %s of person %d: %w", j, id, err)
		}
		out.set(j, p)
	}
	return out, nil
}

// MinConfidence returns the lowest confidence across the four joints.
func (s Sample) MinConfidence() float64 {
	m := s.Head.Confidence
	for _, p := range []Position{s.Torso, s.LeftShoulder, s.RightShoulder} {
		if p.Confidence < m {
			m = p.Confidence
		}
	}
	return m
}

// Get returns the position of joint within the sample.
func (s Sample) Get(joint Joint) (Position, bool) {
	switch joint {
	case Head:
		return s.Head, true
	case Torso:
		return s.Torso, true
	case LeftShoulder:
		return s.LeftShoulder, true
	case RightShoulder:
		return s.RightShoulder, true
	}
	return Position{}, false
}

func (s *Sample) set(joint Joint, p Position) {
	switch joint {
	case Head:
		s.Head = p
	case Torso:
		s.Torso = p
	case LeftShoulder:
		s.LeftShoulder = p
	case RightShoulder:
		s.RightShoulder = p
	}
}

// ParseJoint maps a wire name to a Joint.
func ParseJoint(name string) (Joint, bool) {
	for _, j := range MonitoredJoints {
		if string(j) == name {
			return j, true
		}
	}
	return "", false
}

// ShoulderSkew is the depth difference between the two shoulders.
func (s Sample) ShoulderSkew() float64 {
	return s.LeftShoulder.Z - s.RightShoulder.Z
}

// ShoulderWidth is the straight-line distance between the shoulders.
func (s Sample) ShoulderWidth() float64 {
	return s.LeftShoulder.Vector.Sub(s.RightShoulder.Vector).Norm()
}
