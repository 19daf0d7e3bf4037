// Package monitor runs the bed monitoring loop: it waits for depth updates,
// classifies the patient's position and raises alerts on transitions.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bedside/internal/bed"
	"github.com/banshee-data/bedside/internal/config"
	"github.com/banshee-data/bedside/internal/framebuffer"
	"github.com/banshee-data/bedside/internal/monitoring"
	"github.com/banshee-data/bedside/internal/posture"
	"github.com/banshee-data/bedside/internal/skeleton"
	"github.com/banshee-data/bedside/internal/timeutil"
)

// Config holds the thresholds of a session.
type Config struct {
	Tolerances    posture.Tolerances
	BedTolerance  float64
	MinConfidence float64

	// RetryDelay is how long the loop pauses after a WaitForUpdate failure
	// before waiting again.
	RetryDelay time.Duration

	// Clock stamps events. Defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		Tolerances:    t.PostureTolerances(),
		BedTolerance:  t.GetBedTolerance(),
		MinConfidence: t.GetMinConfidence(),
		RetryDelay:    100 * time.Millisecond,
	}
}

// Status is a point-in-time copy of the session state.
type Status struct {
	SessionID  string                       `json:"session_id"`
	StartedAt  time.Time                    `json:"started_at"`
	UpdatedAt  time.Time                    `json:"updated_at,omitempty"`
	Cycles     uint64                       `json:"cycles"`
	Classified uint64                       `json:"classified"`
	Skipped    uint64                       `json:"skipped"`
	Tracked    int                          `json:"tracked"`
	PersonID   skeleton.PersonID            `json:"person_id,omitempty"`
	Position   posture.Position             `json:"position"`
	Previous   posture.Position             `json:"previous"`
	TorsoX     float64                      `json:"torso_x"`
	BedSet     bool                         `json:"bed_set"`
	BedX       *float64                     `json:"bed_x,omitempty"`
	OutOfBed   bool                         `json:"out_of_bed"`
	Alerts     map[AlertKind]int            `json:"alerts"`
	Frames     map[string]framebuffer.Stats `json:"frames,omitempty"`
}

// Session is one monitoring run over a single driver. All classification
// state is owned by the goroutine calling Run.
type Session struct {
	id     string
	cfg    Config
	clock  timeutil.Clock
	driver Driver
	sink   Sink

	calib    *bed.Calibrator
	previous posture.Position
	current  posture.Position
	cycles   uint64
	disp     displacement

	// loop-owned frames swapped with the driver's buffers
	depth framebuffer.Frame
	video framebuffer.Frame

	recalibrate chan struct{}
	startOnce   sync.Once
	closeOnce   sync.Once

	mu     sync.Mutex
	status Status
}

// New creates a session. Events go to every sink in order.
func New(cfg Config, d Driver, sinks ...Sink) *Session {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MinConfidence < 0 {
		cfg.MinConfidence = 0
	}
	s := &Session{
		id:          uuid.NewString(),
		cfg:         cfg,
		clock:       cfg.Clock,
		driver:      d,
		sink:        MultiSink(sinks),
		calib:       bed.NewCalibrator(cfg.BedTolerance),
		previous:    posture.Unknown,
		current:     posture.Unknown,
		recalibrate: make(chan struct{}, 1),
	}
	s.status = Status{
		SessionID: s.id,
		StartedAt: s.clock.Now(),
		Position:  posture.Unknown,
		Previous:  posture.Unknown,
		Alerts:    map[AlertKind]int{AlertTurning: 0, AlertOutOfBed: 0},
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Run processes updates until ctx is cancelled or the driver closes. It
// returns nil on cancellation and an error wrapping ErrDriverClosed when the
// device goes away. Per-cycle conditions are never returned.
func (s *Session) Run(ctx context.Context) error {
	s.startOnce.Do(func() {
		if err := s.sink.StartSession(s.info()); err != nil {
			monitoring.Logf("monitor: start session %s: %v", s.id, err)
		}
	})

	for {
		if err := s.driver.WaitForUpdate(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, ErrDriverClosed):
				return err
			}
			monitoring.Logf("monitor: wait for update: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(s.cfg.RetryDelay):
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		s.cycle()
	}
}

// Recalibrate asks the loop to forget the bed reference at the start of its
// next cycle. It never blocks.
func (s *Session) Recalibrate() {
	select {
	case s.recalibrate <- struct{}{}:
	default:
	}
}

// Status returns a copy of the state after the last cycle.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Alerts = make(map[AlertKind]int, len(s.status.Alerts))
	for k, v := range s.status.Alerts {
		st.Alerts[k] = v
	}
	if s.status.BedX != nil {
		x := *s.status.BedX
		st.BedX = &x
	}
	if frames := s.driver.Frames(); frames != nil {
		st.Frames = frames.Stats()
	}
	return st
}

// Close ends the session and reports its summary to the sinks. Run must have
// returned first.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sink.EndSession(s.summary())
	})
	return err
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:            s.id,
		StartedAt:     s.status.StartedAt,
		Tolerances:    s.cfg.Tolerances,
		BedTolerance:  s.calib.Tolerance(),
		MinConfidence: s.cfg.MinConfidence,
	}
}

func (s *Session) summary() Summary {
	sum := Summary{
		SessionID:    s.id,
		EndedAt:      s.clock.Now(),
		Cycles:       s.cycles,
		Displacement: s.disp.stats(),
	}
	if x, ok := s.calib.Reference(); ok {
		sum.BedX = &x
	}
	return sum
}

// cycle runs one iteration after an update was signalled.
func (s *Session) cycle() {
	select {
	case <-s.recalibrate:
		s.calib.Reset()
		s.disp.reset()
		monitoring.Logf("session %s: bed reference cleared", s.id)
	default:
	}

	if frames := s.driver.Frames(); frames != nil {
		frames.Depth.Consume(&s.depth)
		frames.Video.Consume(&s.video)
	}
	s.cycles++

	ids := s.driver.TrackedPersonIDs()
	if len(ids) != 1 {
		monitoring.Debugf("cycle %d: %d people tracked, skipping", s.cycles, len(ids))
		s.skipped(len(ids))
		return
	}
	id := ids[0]

	sample, err := skeleton.Take(s.driver, id)
	if err != nil {
		monitoring.Debugf("cycle %d: %v", s.cycles, err)
		s.skipped(1)
		return
	}
	if c := sample.MinConfidence(); c < s.cfg.MinConfidence {
		monitoring.Debugf("cycle %d: joint confidence %.2f below %.2f, skipping", s.cycles, c, s.cfg.MinConfidence)
		s.skipped(1)
		return
	}

	s.previous = s.current
	s.current = posture.Classify(sample, s.cfg.Tolerances)
	torsoX := sample.Torso.X
	outOfBed := s.calib.Observe(s.current, torsoX)
	if d, ok := s.calib.Displacement(torsoX); ok {
		s.disp.add(d)
	}

	var raised []AlertKind
	if s.previous != s.current {
		raised = s.transition(id, torsoX, outOfBed)
	}
	s.classified(id, torsoX, raised)
}

func (s *Session) transition(id skeleton.PersonID, torsoX float64, outOfBed bool) []AlertKind {
	now := s.clock.Now()
	tr := Transition{
		SessionID: s.id,
		Cycle:     s.cycles,
		PersonID:  id,
		Previous:  s.previous,
		Current:   s.current,
		OutOfBed:  outOfBed,
		TorsoX:    torsoX,
		At:        now,
	}
	if err := s.sink.RecordTransition(tr); err != nil {
		monitoring.Logf("monitor: record transition: %v", err)
	}

	var raised []AlertKind
	if s.current == posture.Turned && !outOfBed {
		raised = append(raised, AlertTurning)
	}
	if outOfBed && s.calib.BedSet() {
		raised = append(raised, AlertOutOfBed)
	}

	var bedX *float64
	if x, ok := s.calib.Reference(); ok {
		bedX = &x
	}
	for _, kind := range raised {
		a := Alert{
			SessionID: s.id,
			Kind:      kind,
			PersonID:  id,
			Cycle:     s.cycles,
			Position:  s.current,
			TorsoX:    torsoX,
			BedX:      bedX,
			At:        now,
		}
		if err := s.sink.RecordAlert(a); err != nil {
			monitoring.Logf("monitor: record alert: %v", err)
		}
	}
	return raised
}

func (s *Session) skipped(tracked int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Cycles = s.cycles
	s.status.Skipped++
	s.status.Tracked = tracked
	s.status.UpdatedAt = s.clock.Now()
}

func (s *Session) classified(id skeleton.PersonID, torsoX float64, raised []AlertKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.status
	st.Cycles = s.cycles
	st.Classified++
	st.Tracked = 1
	st.PersonID = id
	st.Position = s.current
	st.Previous = s.previous
	st.TorsoX = torsoX
	st.BedSet = s.calib.BedSet()
	st.BedX = nil
	if x, ok := s.calib.Reference(); ok {
		st.BedX = &x
	}
	st.OutOfBed = s.calib.OutOfBed()
	for _, k := range raised {
		st.Alerts[k]++
	}
	st.UpdatedAt = s.clock.Now()
}
