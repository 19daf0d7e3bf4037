// Package device drives the tracking bridge: it performs the start-up
// handshake, decodes the bridge's line protocol into frame buffers and the
// joint table, and signals the monitor loop when a depth frame arrives.
package device

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/bedside/internal/depth"
	"github.com/banshee-data/bedside/internal/framebuffer"
	"github.com/banshee-data/bedside/internal/fsutil"
	"github.com/banshee-data/bedside/internal/monitor"
	"github.com/banshee-data/bedside/internal/monitoring"
	"github.com/banshee-data/bedside/internal/serialmux"
	"github.com/banshee-data/bedside/internal/skeleton"
	"github.com/banshee-data/bedside/internal/timeutil"
)

// Sensor frame geometry used to size the buffers up front. Larger frames
// grow them on first publish.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Config holds the start-up parameters of a Driver.
type Config struct {
	// Tilt is applied once the handshake succeeds.
	Tilt int
	// HandshakeTimeout bounds the wait for the hello reply.
	HandshakeTimeout time.Duration
	// CalibrationPath is loaded into the engine for every new user that is
	// not already calibrated. Empty disables loading.
	CalibrationPath string
	// Files reads the calibration file. Defaults to the OS filesystem.
	Files fsutil.FileSystem
	// LineBuffer is the capacity of the driver's frame subscription. Hello and
	// user lines have their own subscription of ControlBuffer lines so a
	// frame burst cannot crowd them out.
	LineBuffer    int
	ControlBuffer int
	Clock      timeutil.Clock
}

// Info describes the bridge and the driver counters.
type Info struct {
	Caps         []string                     `json:"caps"`
	LastSeq      uint64                       `json:"last_seq"`
	Frames       uint64                       `json:"frames"`
	DecodeErrors uint64                       `json:"decode_errors"`
	Known        []skeleton.PersonID          `json:"known"`
	Buffers      map[string]framebuffer.Stats `json:"buffers"`
}

// Driver implements monitor.Driver over a tracking bridge reached through a
// serial mux.
type Driver struct {
	cfg       Config
	mux       serialmux.SerialMuxInterface
	frames    *framebuffer.Channels
	table     *skeleton.Table
	colorizer *depth.Colorizer

	// capacity 1: a pending signal already covers any later publish
	updates chan struct{}
	hello   chan Hello

	frameSub   string
	frameLines chan string
	ctrlSub    string
	ctrlLines  chan string
	cancel     context.CancelFunc
	done       chan struct{} // closed when both readers exit
	closed atomic.Bool
	once   sync.Once

	frameCount   atomic.Uint64
	decodeErrors atomic.Uint64
	lastSeq      atomic.Uint64

	mu         sync.Mutex
	caps       []string
	known      map[skeleton.PersonID]bool
	calibrated map[skeleton.PersonID]bool
}

var _ monitor.Driver = (*Driver)(nil)

// Open subscribes to mux, starts reading, greets the bridge and applies the
// configured tilt. Any failure is returned as an *InitError and leaves the
// mux closed.
func Open(ctx context.Context, mux serialmux.SerialMuxInterface, cfg Config) (*Driver, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.LineBuffer <= 0 {
		cfg.LineBuffer = 64
	}
	if cfg.ControlBuffer <= 0 {
		cfg.ControlBuffer = 64
	}
	cfg.Files = fsutil.OrOS(cfg.Files)

	d := newDriver(mux, cfg)
	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.frameSub, d.frameLines = mux.SubscribeTypes(cfg.LineBuffer, serialmux.EventTypeFrame)
	d.ctrlSub, d.ctrlLines = mux.SubscribeTypes(cfg.ControlBuffer, serialmux.EventTypeHello, serialmux.EventTypeUser)

	go d.monitor(runCtx)
	go d.read()

	if err := d.handshake(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.SetTilt(cfg.Tilt); err != nil {
		d.Close()
		return nil, Fatal(fmt.Errorf("set tilt: %w", err))
	}
	return d, nil
}

func newDriver(mux serialmux.SerialMuxInterface, cfg Config) *Driver {
	return &Driver{
		cfg:        cfg,
		mux:        mux,
		frames:     framebuffer.NewChannels(depth.RGBSize(FrameWidth*FrameHeight), FrameWidth*FrameHeight*3, cfg.Clock),
		table:      skeleton.NewTable(),
		colorizer:  depth.NewColorizer(),
		updates:    make(chan struct{}, 1),
		hello:      make(chan Hello, 1),
		done:       make(chan struct{}),
		known:      make(map[skeleton.PersonID]bool),
		calibrated: make(map[skeleton.PersonID]bool),
	}
}

func (d *Driver) handshake(ctx context.Context) error {
	if err := d.mux.Initialize(); err != nil {
		return Fatal(fmt.Errorf("greet bridge: %w", err))
	}

	var h Hello
	select {
	case h = <-d.hello:
	case <-d.done:
		return Fatal(fmt.Errorf("bridge closed during handshake: %w", ErrHandshakeTimeout))
	case <-d.cfg.Clock.After(d.cfg.HandshakeTimeout):
		return Fatal(fmt.Errorf("after %s: %w", d.cfg.HandshakeTimeout, ErrHandshakeTimeout))
	case <-ctx.Done():
		return Fatal(ctx.Err())
	}

	if h.Status != 0 {
		err := fmt.Errorf("status %d: %w", h.Status, ErrBridgeStatus)
		if h.Error != "" {
			err = fmt.Errorf("status %d (%s): %w", h.Status, h.Error, ErrBridgeStatus)
		}
		return &InitError{Code: h.Status, Err: err}
	}
	if !h.HasCap(CapSkeleton) {
		return Fatal(ErrNoSkeleton)
	}

	d.mu.Lock()
	d.caps = append([]string(nil), h.Caps...)
	d.mu.Unlock()
	monitoring.Logf("bridge ready (caps %v)", h.Caps)
	return nil
}

// monitor pumps the serial port until it ends, then closes the driver.
func (d *Driver) monitor(ctx context.Context) {
	err := d.mux.Monitor(ctx)
	if err != nil && ctx.Err() == nil {
		monitoring.Logf("bridge link lost: %v", err)
	}
	d.closed.Store(true)
	d.mux.Unsubscribe(d.frameSub)
	d.mux.Unsubscribe(d.ctrlSub)
}

// read is the callback context: it must never block on the monitor loop.
// Control lines are handled on their own goroutine so a slow frame decode
// never delays a handshake or user event.
func (d *Driver) read() {
	defer close(d.done)
	var wg sync.WaitGroup
	wg.Add(2)
	for _, lines := range []chan string{d.frameLines, d.ctrlLines} {
		go func() {
			defer wg.Done()
			for line := range lines {
				d.handleLine(line)
			}
		}()
	}
	wg.Wait()
}

func (d *Driver) handleLine(line string) {
	switch serialmux.PeekType(line) {
	case serialmux.EventTypeHello:
		var h Hello
		if err := json.Unmarshal([]byte(line), &h); err != nil {
			d.decodeError("hello", err)
			return
		}
		select {
		case d.hello <- h:
		default:
		}
	case serialmux.EventTypeUser:
		var ev UserEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			d.decodeError("user", err)
			return
		}
		d.handleUser(ev)
	case serialmux.EventTypeFrame:
		var f FrameMessage
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			d.decodeError("frame", err)
			return
		}
		d.handleFrame(&f)
	default:
		monitoring.Debugf("bridge: ignoring line %.64q", line)
	}
}

func (d *Driver) decodeError(kind string, err error) {
	d.decodeErrors.Add(1)
	monitoring.Debugf("bridge: decode %s: %v", kind, err)
}

func (d *Driver) handleUser(ev UserEvent) {
	switch ev.Event {
	case UserNew:
		d.mu.Lock()
		d.known[ev.ID] = true
		if ev.Calibrated {
			d.calibrated[ev.ID] = true
		}
		skip := d.calibrated[ev.ID]
		d.mu.Unlock()

		monitoring.Logf("person %d recognized", ev.ID)
		if !skip {
			d.loadCalibration(ev.ID)
		}
	case UserCalibrated:
		d.mu.Lock()
		d.calibrated[ev.ID] = true
		d.mu.Unlock()
		monitoring.Logf("person %d calibrated", ev.ID)
	case UserLost:
		d.mu.Lock()
		delete(d.known, ev.ID)
		delete(d.calibrated, ev.ID)
		d.mu.Unlock()
		monitoring.Logf("person %d lost", ev.ID)
	default:
		monitoring.Debugf("bridge: unknown user event %q for person %d", ev.Event, ev.ID)
	}
}

// loadCalibration hands the stored calibration blob to the engine. Failures
// are logged and the engine calibrates the user itself.
func (d *Driver) loadCalibration(id skeleton.PersonID) {
	if d.cfg.CalibrationPath == "" {
		return
	}
	blob, err := d.cfg.Files.ReadFile(d.cfg.CalibrationPath)
	if err != nil {
		monitoring.Logf("person %d: load calibration: %v", id, err)
		return
	}
	cmd := fmt.Sprintf("%s %d %s", serialmux.CalibrationCommand, id, base64.StdEncoding.EncodeToString(blob))
	if err := d.mux.SendCommand(cmd); err != nil {
		monitoring.Logf("person %d: send calibration: %v", id, err)
		return
	}
	monitoring.Logf("person %d: calibration loaded from %s", id, d.cfg.CalibrationPath)
}

func (d *Driver) handleFrame(f *FrameMessage) {
	d.lastSeq.Store(f.Seq)
	defer d.frameCount.Add(1)

	if f.Video != nil && len(f.Video.Data) > 0 {
		d.frames.Video.Publish(f.Video.Data)
	}

	// Joints first so the loop never samples people older than the frame
	// that woke it.
	d.table.Replace(f.People())

	if f.Depth == nil {
		return
	}
	if err := f.Depth.Validate(); err != nil {
		d.decodeError("depth", err)
		return
	}
	raw := f.Depth.Data
	d.frames.Depth.PublishFunc(depth.RGBSize(len(raw)/2), func(dst []byte) {
		// sizes were checked by Validate
		_ = d.colorizer.Colorize(dst, raw)
	})

	select {
	case d.updates <- struct{}{}:
	default:
	}
}

// WaitForUpdate blocks until a depth frame has been published since the last
// call, ctx is done or the bridge link ends.
func (d *Driver) WaitForUpdate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.updates:
		return nil
	case <-d.done:
		return fmt.Errorf("device: %w", monitor.ErrDriverClosed)
	}
}

// TrackedPersonIDs returns the people in the latest frame.
func (d *Driver) TrackedPersonIDs() []skeleton.PersonID { return d.table.IDs() }

// Joint implements skeleton.Sampler.
func (d *Driver) Joint(id skeleton.PersonID, joint skeleton.Joint) (skeleton.Position, error) {
	return d.table.Joint(id, joint)
}

// Sample implements skeleton.SnapshotSampler.
func (d *Driver) Sample(id skeleton.PersonID) (skeleton.Sample, error) {
	return d.table.Sample(id)
}

// Frames returns the depth and video buffers.
func (d *Driver) Frames() *framebuffer.Channels { return d.frames }

// SetTilt sends a tilt command. The bridge does not acknowledge it.
func (d *Driver) SetTilt(degrees int) error {
	cmd := fmt.Sprintf("%s %d", serialmux.TiltCommand, degrees)
	if err := serialmux.ValidateCommand(cmd); err != nil {
		return err
	}
	return d.mux.SendCommand(cmd)
}

// Info returns a snapshot of the driver counters.
func (d *Driver) Info() Info {
	d.mu.Lock()
	info := Info{Caps: append([]string(nil), d.caps...)}
	for id := range d.known {
		info.Known = append(info.Known, id)
	}
	d.mu.Unlock()
	slices.Sort(info.Known)

	info.LastSeq = d.lastSeq.Load()
	info.Frames = d.frameCount.Load()
	info.DecodeErrors = d.decodeErrors.Load()
	info.Buffers = d.frames.Stats()
	return info
}

// Closed reports whether the bridge link has ended.
func (d *Driver) Closed() bool { return d.closed.Load() }

// Close stops reading and closes the mux.
func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		d.cancel()
		err = d.mux.Close()
		<-d.done
	})
	return err
}
