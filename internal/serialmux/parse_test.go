package serialmux

import (
	"strings"
	"testing"
)

func TestPeekType(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`{"type":"hello","status":0}`, EventTypeHello},
		{`{ "type" : "user", "event":"new","id":1}`, EventTypeUser},
		{`{"type":"frame","seq":1,"depth":{"data":"` + strings.Repeat("A", 10000) + `"}}`, EventTypeFrame},
		{`{"seq":1,"type":"frame"}`, EventTypeFrame},
		{`{"type":"mystery"}`, EventTypeUnknown},
		{`{"type":1}`, EventTypeUnknown},
		{`{"type":"hello`, EventTypeUnknown},
		{`OK`, EventTypeUnknown},
		{``, EventTypeUnknown},
		{`{"depth":"` + strings.Repeat("A", 300) + `","type":"frame"}`, EventTypeUnknown}, // beyond the peek window
	}

	for _, tt := range tests {
		if got := PeekType(tt.line); got != tt.want {
			name := tt.line
			if len(name) > 40 {
				name = name[:40]
			}
			t.Errorf("PeekType(%q) = %q, want %q", name, got, tt.want)
		}
	}
}
