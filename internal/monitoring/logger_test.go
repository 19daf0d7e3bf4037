package monitoring

import (
	"fmt"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetDebug(false)
	})
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)

	Logf("person %d recognized", 1)
	if len(*lines) != 1 || (*lines)[0] != "person 1 recognized" {
		t.Fatalf("unexpected log lines: %q", *lines)
	}

	SetLogger(nil)
	Logf("dropped") // must not panic
	if len(*lines) != 1 {
		t.Errorf("no-op logger should not record, got %q", *lines)
	}
}

func TestDebugf(t *testing.T) {
	lines := capture(t)

	Debugf("skipped cycle %d", 3)
	if len(*lines) != 0 {
		t.Errorf("debug disabled but got %q", *lines)
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetDebug(true)")
	}
	Debugf("skipped cycle %d", 4)
	if len(*lines) != 1 || (*lines)[0] != "skipped cycle 4" {
		t.Errorf("unexpected log lines: %q", *lines)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}
