package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bedside/internal/monitor"
	"github.com/banshee-data/bedside/internal/posture"
	"github.com/banshee-data/bedside/internal/serialmux"
)

func TestSimulatedReply(t *testing.T) {
	assert.Equal(t, []string{EncodeHello(0, CapDepth, CapVideo, CapSkeleton)}, simulatedReply("HELLO"))
	assert.Equal(t, []string{EncodeUser(UserCalibrated, 4, false)}, simulatedReply("CAL 4 AAAA"))
	assert.Nil(t, simulatedReply("CAL x AAAA"))
	assert.Nil(t, simulatedReply("TILT -30"))
	assert.Nil(t, simulatedReply(""))
}

func TestSyntheticScript_DrivesAlerts(t *testing.T) {
	quiet(t)
	port := NewSimulatedPort(nil, time.Millisecond)
	d, err := Open(context.Background(), serialmux.NewSerialMux(port), Config{HandshakeTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer d.Close()

	rec := monitor.NewRecorder(0)
	s := monitor.New(monitor.DefaultConfig(), d, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.Alerts()) >= 2 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	alerts := rec.Alerts()
	assert.Equal(t, monitor.AlertTurning, alerts[0].Kind)
	assert.Equal(t, monitor.AlertOutOfBed, alerts[1].Kind)
	assert.Equal(t, posture.Forward, alerts[1].Position)
}

func TestLoadFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "night.jsonl")
	body := "# recorded on ward 3\n" + EncodeHello(0, CapSkeleton) + "\n\n" + EncodeUser(UserNew, 1, false) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	lines, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = LoadFixture(empty)
	assert.Error(t, err)

	_, err = LoadFixture(filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}
