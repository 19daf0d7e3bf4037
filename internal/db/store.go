package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/bedside/internal/monitor"
	"github.com/banshee-data/bedside/internal/posture"
	"github.com/banshee-data/bedside/internal/skeleton"
)

var _ monitor.Sink = (*DB)(nil)

// SessionRow is a stored session.
type SessionRow struct {
	ID            string                    `json:"id"`
	StartedAt     time.Time                 `json:"started_at"`
	EndedAt       *time.Time                `json:"ended_at,omitempty"`
	Tolerances    posture.Tolerances        `json:"tolerances"`
	BedTolerance  float64                   `json:"bed_tolerance"`
	MinConfidence float64                   `json:"min_confidence"`
	Cycles        uint64                    `json:"cycles"`
	BedX          *float64                  `json:"bed_x,omitempty"`
	Displacement  monitor.DisplacementStats `json:"displacement"`
}

func unixNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// StartSession implements monitor.Sink.
func (db *DB) StartSession(info monitor.SessionInfo) error {
	_, err := db.Exec(`
		INSERT INTO sessions (
			session_id, started_at, laying_tolerance, turned_tolerance,
			bed_tolerance, min_confidence
		) VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, unixNanos(info.StartedAt), info.Tolerances.Laying, info.Tolerances.Turned,
		info.BedTolerance, info.MinConfidence,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", info.ID, err)
	}
	return nil
}

// EndSession implements monitor.Sink.
func (db *DB) EndSession(sum monitor.Summary) error {
	d := sum.Displacement
	res, err := db.Exec(`
		UPDATE sessions SET
			ended_at = ?, cycles = ?, bed_x = ?,
			displacement_n = ?, displacement_mean = ?, displacement_sd = ?, displacement_max = ?
		WHERE session_id = ?`,
		unixNanos(sum.EndedAt), int64(sum.Cycles), nullFloat(sum.BedX),
		d.Samples, d.Mean, d.StdDev, d.Max,
		sum.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sum.SessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update session %s: %w", sum.SessionID, sql.ErrNoRows)
	}
	return nil
}

// RecordTransition implements monitor.Sink.
func (db *DB) RecordTransition(tr monitor.Transition) error {
	_, err := db.Exec(`
		INSERT INTO transitions (
			session_id, cycle, person_id, previous, current, out_of_bed, torso_x, at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.SessionID, int64(tr.Cycle), int(tr.PersonID), string(tr.Previous), string(tr.Current),
		tr.OutOfBed, tr.TorsoX, unixNanos(tr.At),
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// RecordAlert implements monitor.Sink.
func (db *DB) RecordAlert(a monitor.Alert) error {
	_, err := db.Exec(`
		INSERT INTO alerts (
			session_id, kind, person_id, cycle, position, torso_x, bed_x, at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, string(a.Kind), int(a.PersonID), int64(a.Cycle), string(a.Position),
		a.TorsoX, nullFloat(a.BedX), unixNanos(a.At),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts of the given kind, newest first.
// An empty kind matches every alert.
func (db *DB) RecentAlerts(limit int, kind monitor.AlertKind) ([]monitor.Alert, error) {
	rows, err := db.Query(`
		SELECT session_id, kind, person_id, cycle, position, torso_x, bed_x, at
		FROM alerts
		WHERE ? = '' OR kind = ?
		ORDER BY at DESC, alert_id DESC LIMIT ?`, string(kind), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []monitor.Alert
	for rows.Next() {
		var (
			a        monitor.Alert
			kind     string
			position string
			personID int
			cycle    int64
			bedX     sql.NullFloat64
			at       int64
		)
		if err := rows.Scan(&a.SessionID, &kind, &personID, &cycle, &position, &a.TorsoX, &bedX, &at); err != nil {
			return nil, err
		}
		a.Kind = monitor.AlertKind(kind)
		a.Position = posture.Position(position)
		a.PersonID = skeleton.PersonID(personID)
		a.Cycle = uint64(cycle)
		a.BedX = floatPtr(bedX)
		a.At = fromNanos(at)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// RecentTransitions returns up to limit transitions, newest first.
func (db *DB) RecentTransitions(limit int) ([]monitor.Transition, error) {
	rows, err := db.Query(`
		SELECT session_id, cycle, person_id, previous, current, out_of_bed, torso_x, at
		FROM transitions ORDER BY at DESC, transition_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []monitor.Transition
	for rows.Next() {
		var (
			tr       monitor.Transition
			cycle    int64
			personID int
			previous string
			current  string
			at       int64
		)
		if err := rows.Scan(&tr.SessionID, &cycle, &personID, &previous, &current, &tr.OutOfBed, &tr.TorsoX, &at); err != nil {
			return nil, err
		}
		tr.Cycle = uint64(cycle)
		tr.PersonID = skeleton.PersonID(personID)
		tr.Previous = posture.Position(previous)
		tr.Current = posture.Position(current)
		tr.At = fromNanos(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Sessions returns up to limit sessions, most recently started first.
func (db *DB) Sessions(limit int) ([]SessionRow, error) {
	rows, err := db.Query(`
		SELECT session_id, started_at, ended_at, laying_tolerance, turned_tolerance,
			bed_tolerance, min_confidence, cycles, bed_x,
			displacement_n, displacement_mean, displacement_sd, displacement_max
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			s       SessionRow
			started int64
			ended   sql.NullInt64
			cycles  int64
			bedX    sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.Tolerances.Laying, &s.Tolerances.Turned,
			&s.BedTolerance, &s.MinConfidence, &cycles, &bedX,
			&s.Displacement.Samples, &s.Displacement.Mean, &s.Displacement.StdDev, &s.Displacement.Max); err != nil {
			return nil, err
		}
		s.StartedAt = fromNanos(started)
		if ended.Valid {
			t := fromNanos(ended.Int64)
			s.EndedAt = &t
		}
		s.Cycles = uint64(cycles)
		s.BedX = floatPtr(bedX)
		out = append(out, s)
	}
	return out, rows.Err()
}
