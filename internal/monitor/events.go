package monitor

import (
	"time"

	"github.com/banshee-data/bedside/internal/posture"
	"github.com/banshee-data/bedside/internal/skeleton"
)

// AlertKind names the condition an Alert reports.
type AlertKind string

const (
	AlertTurning  AlertKind = "turning"
	AlertOutOfBed AlertKind = "out_of_bed"
)

// Alert is raised on a position change that needs a carer's attention.
type Alert struct {
	SessionID string            `json:"session_id"`
	Kind      AlertKind         `json:"kind"`
	PersonID  skeleton.PersonID `json:"person_id"`
	Cycle     uint64            `json:"cycle"`
	Position  posture.Position  `json:"position"`
	TorsoX    float64           `json:"torso_x"`
	BedX      *float64          `json:"bed_x,omitempty"`
	At        time.Time         `json:"at"`
}

// Transition records a cycle where the classified position changed.
type Transition struct {
	SessionID string            `json:"session_id"`
	Cycle     uint64            `json:"cycle"`
	PersonID  skeleton.PersonID `json:"person_id"`
	Previous  posture.Position  `json:"previous"`
	Current   posture.Position  `json:"current"`
	OutOfBed  bool              `json:"out_of_bed"`
	TorsoX    float64           `json:"torso_x"`
	At        time.Time         `json:"at"`
}

// SessionInfo describes a session when it starts.
type SessionInfo struct {
	ID            string             `json:"id"`
	StartedAt     time.Time          `json:"started_at"`
	Tolerances    posture.Tolerances `json:"tolerances"`
	BedTolerance  float64            `json:"bed_tolerance"`
	MinConfidence float64            `json:"min_confidence"`
}

// Summary describes a session when it ends.
type Summary struct {
	SessionID    string            `json:"session_id"`
	EndedAt      time.Time         `json:"ended_at"`
	Cycles       uint64            `json:"cycles"`
	BedX         *float64          `json:"bed_x,omitempty"`
	Displacement DisplacementStats `json:"displacement"`
}
