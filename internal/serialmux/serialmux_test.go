package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func TestSerialMux_SubscribeUnique(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.SubscribeBuffered(0)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, DefaultSubscriberBuffer, cap(ch1))
	assert.Equal(t, 0, cap(ch2))

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribed channel should be closed")

	mux.Unsubscribe("missing") // no-op
	mux.Unsubscribe(id2)
}

func TestSerialMux_SendCommandAddsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("TILT -30"))
	require.NoError(t, mux.SendCommand("CAL 1 AAAA\n"))
	require.NoError(t, mux.Initialize())

	assert.Equal(t, "TILT -30\nCAL 1 AAAA\nHELLO\n", string(port.GetWrittenData()))
}

func TestSerialMux_SendCommandErrors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	port.WriteError = errors.New("unplugged")
	assert.EqualError(t, mux.SendCommand("HELLO"), "unplugged")

	port.ShortWrite = true
	assert.ErrorIs(t, mux.SendCommand("HELLO"), ErrWriteFailed)

	port.ShortWrite = false
	port.WriteError = errors.New("unplugged")
	assert.Error(t, mux.Initialize())
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("{\"type\":\"hello\"}\n{\"type\":\"user\"}\n"))
	mux := NewSerialMux(port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	err := mux.Monitor(context.Background())
	require.NoError(t, err, "EOF ends monitoring cleanly")

	assert.Equal(t, `{"type":"hello"}`, receive(t, a))
	assert.Equal(t, `{"type":"user"}`, receive(t, a))
	assert.Equal(t, `{"type":"hello"}`, receive(t, b))
	assert.Equal(t, uint64(0), mux.Dropped())
}

func TestSerialMux_MonitorDropsForFullSubscriber(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("1\n2\n3\n"))
	mux := NewSerialMux(port)

	_, ch := mux.SubscribeBuffered(1)
	require.NoError(t, mux.Monitor(context.Background()))

	assert.Equal(t, "1", receive(t, ch))
	assert.Equal(t, uint64(2), mux.Dropped())
}

func TestSerialMux_SubscribeTypesKeepsControlLinesPastFrameBurst(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte(`{"type":"frame","seq":1}` + "\n" +
		`{"type":"frame","seq":2}` + "\n" +
		`{"type":"user","event":"new","id":1}` + "\n" +
		`{"type":"frame","seq":3}` + "\n" +
		`{"type":"user","event":"lost","id":1}` + "\n"))
	mux := NewSerialMux(port)

	_, frames := mux.SubscribeTypes(1, EventTypeFrame)
	_, control := mux.SubscribeTypes(4, EventTypeHello, EventTypeUser)
	require.NoError(t, mux.Monitor(context.Background()))

	assert.Equal(t, `{"type":"frame","seq":1}`, receive(t, frames))
	assert.Equal(t, `{"type":"user","event":"new","id":1}`, receive(t, control))
	assert.Equal(t, `{"type":"user","event":"lost","id":1}`, receive(t, control))
	assert.Equal(t, uint64(2), mux.Dropped(), "only frame lines were dropped")
}

func TestSerialMux_MonitorLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	port := NewTestableSerialPort()
	port.AddReadData([]byte(long + "\n"))

	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()
	require.NoError(t, mux.Monitor(context.Background()))
	assert.Len(t, receive(t, ch), len(long))

	port = NewTestableSerialPort()
	port.AddReadData([]byte(long + "\n"))
	small := NewSerialMux(port, WithMaxLineBytes(1024))
	assert.Error(t, small.Monitor(context.Background()), "line over the limit")
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("framing error")
	mux := NewSerialMux(port)

	assert.EqualError(t, mux.Monitor(context.Background()), "framing error")
}

func TestSerialMux_MonitorCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
}

func TestSerialMux_CloseClosesSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close(), "second close is a no-op")

	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.Closed)
}

func TestSerialMux_AdminSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	h := newAdminMux(mux)

	form := url.Values{"command": {"TILT 10"}}
	req := httptest.NewRequest("POST", "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Equal(t, "TILT 10\n", string(port.GetWrittenData()))

	req = httptest.NewRequest("POST", "/debug/send-command-api", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)

	form = url.Values{"command": {"FORMAT"}}
	req = httptest.NewRequest("POST", "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "TILT 10\n", string(port.GetWrittenData()), "rejected command not written")

	req = httptest.NewRequest("GET", "/debug/send-command-api", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, 405, rec.Code)
}

func TestSerialMux_AdminPage(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	h := newAdminMux(mux)

	for _, path := range []string{"/debug/send-command", "/debug/tail.js"} {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, 200, rec.Code, path)
		assert.NotEmpty(t, rec.Body.String(), path)
	}
}

func TestSerialMux_AdminTail(t *testing.T) {
	port := NewMockSerialPort(nil)
	mux := NewSerialMux(port)
	h := newAdminMux(mux)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/debug/tail?type=user", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// wait for the handler to subscribe before emitting
	require.Eventually(t, func() bool {
		mux.subscriberMu.Lock()
		defer mux.subscriberMu.Unlock()
		return len(mux.subscribers) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, port.Emit(`{"type":"frame","seq":1}`))
	require.NoError(t, port.Emit(`{"type":"user","event":"new","id":1}`))

	buf := make([]byte, 4096)
	var got strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(got.String(), `"event":"new"`) && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, got.String(), "event: user\n")
	assert.NotContains(t, got.String(), "frame")
}

func newAdminMux[T SerialPorter](s *SerialMux[T]) *http.ServeMux {
	m := http.NewServeMux()
	s.AttachAdminRoutes(m)
	return m
}
