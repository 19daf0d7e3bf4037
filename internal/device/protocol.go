package device

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/bedside/internal/skeleton"
)

// Capabilities a bridge may announce in its hello message.
const (
	CapDepth    = "depth"
	CapVideo    = "video"
	CapSkeleton = "skeleton"
)

// User event names.
const (
	UserNew        = "new"
	UserLost       = "lost"
	UserCalibrated = "calibrated"
)

// Hello is the bridge's answer to HELLO. A non-zero Status means the engine
// failed to start.
type Hello struct {
	Type   string   `json:"type"`
	Status int      `json:"status"`
	Caps   []string `json:"caps"`
	Error  string   `json:"error,omitempty"`
}

// HasCap reports whether the bridge announced capability c.
func (h Hello) HasCap(c string) bool {
	for _, have := range h.Caps {
		if have == c {
			return true
		}
	}
	return false
}

// UserEvent reports a person entering, leaving or finishing calibration.
// Calibrated is set on a new event when the engine already holds a
// calibration for the user.
type UserEvent struct {
	Type       string            `json:"type"`
	Event      string            `json:"event"`
	ID         skeleton.PersonID `json:"id"`
	Calibrated bool              `json:"calibrated,omitempty"`
}

// DepthImage is a frame of little-endian uint16 depth samples.
type DepthImage struct {
	Width  int    `json:"w"`
	Height int    `json:"h"`
	Data   []byte `json:"data"`
}

// VideoImage is a frame of packed RGB bytes.
type VideoImage struct {
	Width  int    `json:"w,omitempty"`
	Height int    `json:"h,omitempty"`
	Data   []byte `json:"data"`
}

// UserJoints carries the joints of one person. Each joint is [x, y, z,
// confidence] in millimetres.
type UserJoints struct {
	ID       skeleton.PersonID     `json:"id"`
	Tracking bool                  `json:"tracking"`
	Joints   map[string][4]float64 `json:"joints,omitempty"`
}

// FrameMessage is one sensor update.
type FrameMessage struct {
	Type  string       `json:"type"`
	Seq   uint64       `json:"seq"`
	Depth *DepthImage  `json:"depth,omitempty"`
	Video *VideoImage  `json:"video,omitempty"`
	Users []UserJoints `json:"users,omitempty"`
}

// Validate checks the depth payload matches its declared dimensions.
func (d *DepthImage) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("depth frame has invalid size %dx%d", d.Width, d.Height)
	}
	if want := d.Width * d.Height * 2; len(d.Data) != want {
		return fmt.Errorf("depth frame %dx%d has %d bytes, want %d", d.Width, d.Height, len(d.Data), want)
	}
	return nil
}

// People converts the tracked users of a frame into the joint table layout.
// Users that are not tracking and joints with unknown names are dropped.
func (f *FrameMessage) People() map[skeleton.PersonID]map[skeleton.Joint]skeleton.Position {
	out := make(map[skeleton.PersonID]map[skeleton.Joint]skeleton.Position, len(f.Users))
	for _, u := range f.Users {
		if !u.Tracking {
			continue
		}
		joints := make(map[skeleton.Joint]skeleton.Position, len(u.Joints))
		for name, v := range u.Joints {
			j, ok := skeleton.ParseJoint(name)
			if !ok {
				continue
			}
			joints[j] = skeleton.Position{Vector: r3.Vector{X: v[0], Y: v[1], Z: v[2]}, Confidence: v[3]}
		}
		out[u.ID] = joints
	}
	return out
}

// EncodeHello renders a hello line.
func EncodeHello(status int, caps ...string) string {
	return mustLine(Hello{Type: "hello", Status: status, Caps: caps})
}

// EncodeUser renders a user event line.
func EncodeUser(event string, id skeleton.PersonID, calibrated bool) string {
	return mustLine(UserEvent{Type: "user", Event: event, ID: id, Calibrated: calibrated})
}

// EncodeFrame renders a frame line. depth may be nil.
func EncodeFrame(seq uint64, width, height int, depth []uint16, video []byte, users ...UserJoints) string {
	msg := FrameMessage{Type: "frame", Seq: seq, Users: users}
	if depth != nil {
		raw := make([]byte, 2*len(depth))
		for i, v := range depth {
			binary.LittleEndian.PutUint16(raw[2*i:], v)
		}
		msg.Depth = &DepthImage{Width: width, Height: height, Data: raw}
	}
	if video != nil {
		msg.Video = &VideoImage{Width: width, Height: height, Data: video}
	}
	return mustLine(msg)
}

// TrackedUser builds a UserJoints from positions keyed by joint.
func TrackedUser(id skeleton.PersonID, joints map[skeleton.Joint]skeleton.Position) UserJoints {
	u := UserJoints{ID: id, Tracking: true, Joints: make(map[string][4]float64, len(joints))}
	for j, p := range joints {
		u.Joints[string(j)] = [4]float64{p.X, p.Y, p.Z, p.Confidence}
	}
	return u
}

func mustLine(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("device: encode %T: %v", v, err))
	}
	return string(b)
}
