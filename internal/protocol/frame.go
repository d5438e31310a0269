package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FrameType is the one-character tag that starts every inbound frame.
type FrameType byte

const (
	FrameOpen      FrameType = 'o'
	FrameArray     FrameType = 'a'
	FrameHeartbeat FrameType = 'h'
	FrameClose     FrameType = 'c'
)

func (t FrameType) String() string {
	switch t {
	case FrameOpen:
		return "open"
	case FrameArray:
		return "array"
	case FrameHeartbeat:
		return "heartbeat"
	case FrameClose:
		return "close"
	}
	return fmt.Sprintf("unknown(%q)", byte(t))
}

// Heartbeat is the keep-alive payload the client sends when idle.
const Heartbeat = "[]"

// ErrProtocol matches every *Error via errors.Is.
var ErrProtocol = errors.New("protocol error")

// Error reports a frame that could not be parsed.
type Error struct {
	Reason string
	Raw    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrProtocol }

// Frame is one decoded unit read from the socket.
type Frame struct {
	Type     FrameType
	Messages []Message // Only set for FrameArray
}

// Decode parses a raw inbound frame.
func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, &Error{Reason: "empty frame"}
	}

	t := FrameType(raw[0])
	switch t {
	case FrameOpen, FrameHeartbeat, FrameClose:
		return Frame{Type: t}, nil
	case FrameArray:
	default:
		return Frame{}, &Error{Reason: "unknown frame type " + strconv.QuoteRune(rune(raw[0])), Raw: truncate(raw)}
	}

	body := raw[1:]
	if len(strings.TrimSpace(string(body))) == 0 {
		return Frame{Type: FrameArray}, nil
	}

	var msgs []Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return Frame{}, &Error{Reason: "invalid array payload", Raw: truncate(raw), Err: err}
	}

	return Frame{Type: FrameArray, Messages: msgs}, nil
}

// Encode serializes an outbound request line. A nil body is sent as null.
func Encode(endpoint string, id int64, query string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body for %s: %w", endpoint, err)
	}

	var b strings.Builder
	b.Grow(len(endpoint) + len(query) + len(payload) + 24)
	b.WriteString(endpoint)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(id, 10))
	b.WriteByte('\n')
	b.WriteString(query)
	b.WriteByte('\n')
	b.Write(payload)
	return b.String(), nil
}

// truncate keeps error messages bounded for large market-data frames.
func truncate(raw []byte) string {
	const max = 256
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
