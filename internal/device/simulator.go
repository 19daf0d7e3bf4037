package device

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/bedside/internal/serialmux"
	"github.com/banshee-data/bedside/internal/skeleton"
)

// Simulated frame geometry, kept small so -dev runs cheaply.
const (
	simWidth  = 32
	simHeight = 24
)

// NewSimulatedPort returns a mock port that behaves like a tracking bridge:
// it answers HELLO, acknowledges CAL and replays lines every interval. An
// empty script plays SyntheticScript.
func NewSimulatedPort(script []string, interval time.Duration) *serialmux.MockSerialPort {
	if len(script) == 0 {
		script = SyntheticScript()
	}
	port := serialmux.NewMockSerialPort(simulatedReply)
	port.Play(script, interval)
	return port
}

func simulatedReply(cmd string) []string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case serialmux.HelloCommand:
		return []string{EncodeHello(0, CapDepth, CapVideo, CapSkeleton)}
	case serialmux.CalibrationCommand:
		if len(fields) < 3 {
			return nil
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil
		}
		return []string{EncodeUser(UserCalibrated, skeleton.PersonID(id), false)}
	}
	return nil
}

// SyntheticScript is a night in miniature: an empty room, the patient
// arriving and lying down, rolling over, getting up and walking away.
func SyntheticScript() []string {
	const id skeleton.PersonID = 1
	var lines []string
	seq := uint64(0)
	frame := func(users ...UserJoints) {
		seq++
		lines = append(lines, EncodeFrame(seq, simWidth, simHeight, simDepth(seq), simVideo(seq), users...))
	}
	repeat := func(n int, pose map[skeleton.Joint]skeleton.Position) {
		for i := 0; i < n; i++ {
			frame(TrackedUser(id, pose))
		}
	}

	for i := 0; i < 10; i++ {
		frame()
	}
	lines = append(lines, EncodeUser(UserNew, id, false))
	repeat(10, simPose(2200, 2200, 2200, 2200, 1000)) // sitting square to the sensor
	repeat(60, simPose(2500, 2200, 2200, 2200, 1000)) // laying
	repeat(20, simPose(2000, 2000, 2200, 2000, 1050)) // rolled onto one side
	repeat(20, simPose(2500, 2200, 2200, 2200, 1000)) // back to sleep
	repeat(20, simPose(2000, 2000, 2000, 2000, 1600)) // up and beside the bed
	lines = append(lines, EncodeUser(UserLost, id, false))
	for i := 0; i < 10; i++ {
		frame()
	}
	return lines
}

func simPose(headZ, torsoZ, leftZ, rightZ, torsoX float64) map[skeleton.Joint]skeleton.Position {
	at := func(x, y, z float64) skeleton.Position {
		return skeleton.Position{Vector: r3.Vector{X: x, Y: y, Z: z}, Confidence: 0.9}
	}
	return map[skeleton.Joint]skeleton.Position{
		skeleton.Head:          at(torsoX, 400, headZ),
		skeleton.Torso:         at(torsoX, 0, torsoZ),
		skeleton.LeftShoulder:  at(torsoX-180, 250, leftZ),
		skeleton.RightShoulder: at(torsoX+180, 250, rightZ),
	}
}

func simDepth(seq uint64) []uint16 {
	px := make([]uint16, simWidth*simHeight)
	for i := range px {
		px[i] = uint16((uint64(i)*7 + seq*13) % 2048)
	}
	return px
}

func simVideo(seq uint64) []byte {
	px := make([]byte, simWidth*simHeight*3)
	for i := range px {
		px[i] = byte(uint64(i) + seq)
	}
	return px
}

// LoadFixture reads a recorded bridge session: one protocol line per line
// of the file. Blank lines and lines starting with # are skipped.
func LoadFixture(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 64*1024), serialmux.DefaultMaxLineBytes)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture %s has no lines", path)
	}
	return lines, nil
}
