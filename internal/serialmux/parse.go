package serialmux

import "strings"

// Message types sent by the tracking bridge.
const (
	EventTypeHello   = "hello"
	EventTypeUser    = "user"
	EventTypeFrame   = "frame"
	EventTypeUnknown = "unknown"
)

// PeekType returns the "type" field of a bridge line without decoding the
// whole message. Frame lines can be megabytes long, so only the first few
// hundred bytes are inspected.
func PeekType(line string) string {
	const window = 256
	head := line
	if len(head) > window {
		head = head[:window]
	}
	if !strings.HasPrefix(strings.TrimSpace(head), "{") {
		return EventTypeUnknown
	}
	i := strings.Index(head, `"type"`)
	if i < 0 {
		return EventTypeUnknown
	}
	rest := strings.TrimLeft(head[i+len(`"type"`):], " \t")
	if !strings.HasPrefix(rest, ":") {
		return EventTypeUnknown
	}
	rest = strings.TrimLeft(rest[1:], " \t")
	if !strings.HasPrefix(rest, `"`) {
		return EventTypeUnknown
	}
	rest = rest[1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return EventTypeUnknown
	}
	switch typ := rest[:end]; typ {
	case EventTypeHello, EventTypeUser, EventTypeFrame:
		return typ
	}
	return EventTypeUnknown
}
