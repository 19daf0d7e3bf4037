package monitor

import (
	"errors"
	"slices"
	"sync"

	"github.com/banshee-data/bedside/internal/monitoring"
)

// Sink receives the events of a session. Errors are logged by the session
// and never stop the loop.
type Sink interface {
	StartSession(SessionInfo) error
	RecordTransition(Transition) error
	RecordAlert(Alert) error
	EndSession(Summary) error
}

// MultiSink fans every event out to each of its sinks.
type MultiSink []Sink

func (m MultiSink) StartSession(info SessionInfo) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.StartSession(info))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordTransition(tr Transition) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordTransition(tr))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordAlert(a Alert) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordAlert(a))
	}
	return errors.Join(errs...)
}

func (m MultiSink) EndSession(sum Summary) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.EndSession(sum))
	}
	return errors.Join(errs...)
}

// LogSink writes alerts and session boundaries through monitoring.Logf.
// Transitions are only logged when debug output is on.
type LogSink struct{}

func (LogSink) StartSession(info SessionInfo) error {
	monitoring.Logf("session %s started (laying=%.0f turned=%.0f bed=%.0f min_confidence=%.2f)",
		info.ID, info.Tolerances.Laying, info.Tolerances.Turned, info.BedTolerance, info.MinConfidence)
	return nil
}

func (LogSink) RecordTransition(tr Transition) error {
	monitoring.Debugf("person %d: %s -> %s at cycle %d (torso.x=%.0f out_of_bed=%t)",
		tr.PersonID, tr.Previous, tr.Current, tr.Cycle, tr.TorsoX, tr.OutOfBed)
	return nil
}

func (LogSink) RecordAlert(a Alert) error {
	if a.BedX != nil {
		monitoring.Logf("ALERT %s person=%d cycle=%d position=%s torso.x=%.0f bed.x=%.0f",
			a.Kind, a.PersonID, a.Cycle, a.Position, a.TorsoX, *a.BedX)
		return nil
	}
	monitoring.Logf("ALERT %s person=%d cycle=%d position=%s torso.x=%.0f",
		a.Kind, a.PersonID, a.Cycle, a.Position, a.TorsoX)
	return nil
}

func (LogSink) EndSession(sum Summary) error {
	d := sum.Displacement
	monitoring.Logf("session %s ended after %d cycles (displacement n=%d mean=%.1f sd=%.1f max=%.1f)",
		sum.SessionID, sum.Cycles, d.Samples, d.Mean, d.StdDev, d.Max)
	return nil
}

// Recorder keeps the most recent events in memory. It backs the status API
// when no database is configured and is handy in tests.
type Recorder struct {
	limit int

	mu          sync.Mutex
	sessions    []SessionInfo
	summaries   []Summary
	transitions []Transition
	alerts      []Alert
}

// NewRecorder creates a Recorder holding up to limit transitions and alerts.
// A non-positive limit keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) StartSession(info SessionInfo) error {
	r.mu.Lock()
	r.sessions = append(r.sessions, info)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) RecordTransition(tr Transition) error {
	r.mu.Lock()
	r.transitions = appendBounded(r.transitions, tr, r.limit)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) RecordAlert(a Alert) error {
	r.mu.Lock()
	r.alerts = appendBounded(r.alerts, a, r.limit)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) EndSession(sum Summary) error {
	r.mu.Lock()
	r.summaries = append(r.summaries, sum)
	r.mu.Unlock()
	return nil
}

// Alerts returns every retained alert, oldest first.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Transitions returns every retained transition, oldest first.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

// Sessions returns the started sessions.
func (r *Recorder) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionInfo(nil), r.sessions...)
}

// Summaries returns the ended sessions.
func (r *Recorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Summary(nil), r.summaries...)
}

// RecentAlerts returns up to limit alerts of the given kind, newest first.
// An empty kind matches every alert.
func (r *Recorder) RecentAlerts(limit int, kind AlertKind) ([]Alert, error) {
	alerts := r.Alerts()
	if kind != "" {
		alerts = slices.DeleteFunc(alerts, func(a Alert) bool { return a.Kind != kind })
	}
	return newestFirst(alerts, limit), nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (r *Recorder) RecentTransitions(limit int) ([]Transition, error) {
	return newestFirst(r.Transitions(), limit), nil
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if limit > 0 && len(s) > limit {
		s = append(s[:0], s[len(s)-limit:]...)
	}
	return s
}

func newestFirst[T any](s []T, limit int) []T {
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}
	out := make([]T, 0, limit)
	for i := len(s) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s[i])
	}
	return out
}
