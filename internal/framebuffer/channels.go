package framebuffer

import "github.com/banshee-data/bedside/internal/timeutil"

// Channel names used for the two device streams.
const (
	DepthChannel = "depth"
	VideoChannel = "video"
)

// Channels bundles the independent depth and video buffers of one device.
// The two buffers have separate guards and freshness flags; nothing orders a
// depth publish relative to a video publish.
type Channels struct {
	Depth *Buffer
	Video *Buffer
}

// NewChannels creates depth and video buffers sized for frames of the given
// byte lengths.
func NewChannels(depthBytes, videoBytes int, clock timeutil.Clock) *Channels {
	return &Channels{
		Depth: New(DepthChannel, depthBytes, clock),
		Video: New(VideoChannel, videoBytes, clock),
	}
}

// Stats returns the counters of both channels keyed by channel name.
func (c *Channels) Stats() map[string]Stats {
	return map[string]Stats{
		c.Depth.Name(): c.Depth.Stats(),
		c.Video.Name(): c.Video.Stats(),
	}
}
