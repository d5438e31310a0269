package protocol

import (
	"bytes"
	"encoding/json"
)

// StatusOK is the status code of a successful response.
const StatusOK = 200

// MessageKind distinguishes responses to requests from server broadcasts.
type MessageKind int

const (
	KindEvent MessageKind = iota
	KindResponse
)

func (k MessageKind) String() string {
	if k == KindResponse {
		return "response"
	}
	return "event"
}

// Message is one element of an array frame.
type Message struct {
	ID     *int64          `json:"i,omitempty"`
	Status *int            `json:"s,omitempty"`
	Event  string          `json:"e,omitempty"`
	Data   json.RawMessage `json:"d,omitempty"`
}

// Kind reports whether the message answers a request or is a broadcast.
// The presence of i is the tag: servers never put it on broadcasts.
func (m Message) Kind() MessageKind {
	if m.ID != nil {
		return KindResponse
	}
	return KindEvent
}

// RequestID returns the correlation id and whether one was present.
func (m Message) RequestID() (int64, bool) {
	if m.ID == nil {
		return 0, false
	}
	return *m.ID, true
}

// StatusCode returns the response status and whether one was present.
func (m Message) StatusCode() (int, bool) {
	if m.Status == nil {
		return 0, false
	}
	return *m.Status, true
}

// HasData reports whether d is present and not JSON null.
func (m Message) HasData() bool {
	d := bytes.TrimSpace(m.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Fields decodes d as a JSON object. Non-object payloads yield nil.
func (m Message) Fields() map[string]json.RawMessage {
	if !m.HasData() {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Data, &fields); err != nil {
		return nil
	}
	return fields
}
