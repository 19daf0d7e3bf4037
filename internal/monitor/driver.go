package monitor

import (
	"context"
	"errors"

	"github.com/banshee-data/bedside/internal/framebuffer"
	"github.com/banshee-data/bedside/internal/skeleton"
)

// ErrDriverClosed is returned (possibly wrapped) by WaitForUpdate once the
// device has shut down and no further updates will arrive.
var ErrDriverClosed = errors.New("monitor: driver closed")

// Driver is the view of the sensor the monitor loop needs.
type Driver interface {
	skeleton.Sampler
	// Sample returns the four monitored joints of one person from one frame.
	skeleton.SnapshotSampler

	// WaitForUpdate blocks until a new depth frame has been published or ctx
	// is done. It returns ctx.Err() on cancellation.
	WaitForUpdate(ctx context.Context) error

	// TrackedPersonIDs returns the people in the latest frame.
	TrackedPersonIDs() []skeleton.PersonID

	// Frames returns the buffers the driver publishes into. May be nil.
	Frames() *framebuffer.Channels
}
