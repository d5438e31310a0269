package connection

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dearvn/tradovate-go/internal/protocol"
)

func response(id int64, status int, data string) protocol.Message {
	msg := protocol.Message{ID: &id, Status: &status}
	if data != "" {
		msg.Data = json.RawMessage(data)
	}
	return msg
}

type outcome struct {
	mu        sync.Mutex
	successes []protocol.Message
	failures  []error
}

func (o *outcome) onSuccess(m protocol.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successes = append(o.successes, m)
}

func (o *outcome) onFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func TestCorrelator_NextIDStartsAtZero(t *testing.T) {
	c := newCorrelator()
	for want := int64(0); want < 5; want++ {
		if got := c.NextID(); got != want {
			t.Fatalf("NextID() = %d, want %d", got, want)
		}
	}
}

func TestCorrelator_RegisterDuplicate(t *testing.T) {
	c := newCorrelator()
	o := &outcome{}

	if err := c.Register(3, outbound{endpoint: "a"}, o.onSuccess, o.onFailure); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	err := c.Register(3, outbound{endpoint: "b"}, o.onSuccess, o.onFailure)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("Register() duplicate error = %v, want ErrDuplicateRequest", err)
	}
}

func TestCorrelator_DispatchResolvesOnlyMatchingID(t *testing.T) {
	c := newCorrelator()
	first, second := &outcome{}, &outcome{}

	id0, _ := c.Track(outbound{endpoint: "one"}, first.onSuccess, first.onFailure)
	id1, _ := c.Track(outbound{endpoint: "two"}, second.onSuccess, second.onFailure)

	if !c.Dispatch(response(id1, 200, `{"ok":true}`)) {
		t.Fatal("Dispatch() = false, want consumed")
	}

	if len(second.successes) != 1 || string(second.successes[0].Data) != `{"ok":true}` {
		t.Errorf("second successes = %+v", second.successes)
	}
	if len(first.successes) != 0 || len(first.failures) != 0 {
		t.Errorf("first request touched: %+v", first)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	// id0 still pending
	if !c.Dispatch(response(id0, 200, "")) {
		t.Error("Dispatch() for id0 = false")
	}
}

func TestCorrelator_DispatchRejects(t *testing.T) {
	c := newCorrelator()
	o := &outcome{}
	body := map[string]any{"symbol": "ESZ2"}

	id, _ := c.Track(outbound{endpoint: "md/subscribequote", query: "q=1", body: body}, o.onSuccess, o.onFailure)

	if !c.Dispatch(response(id, 404, `"Unknown symbol"`)) {
		t.Fatal("Dispatch() = false, want consumed")
	}

	if len(o.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(o.failures))
	}
	var rejected *RequestRejected
	if !errors.As(o.failures[0], &rejected) {
		t.Fatalf("failure = %v, want *RequestRejected", o.failures[0])
	}
	if rejected.Endpoint != "md/subscribequote" || rejected.Query != "q=1" || rejected.Status != 404 {
		t.Errorf("rejected = %+v", rejected)
	}
	if string(rejected.Reason) != `"Unknown symbol"` {
		t.Errorf("Reason = %s", rejected.Reason)
	}
	if b, ok := rejected.Body.(map[string]any); !ok || b["symbol"] != "ESZ2" {
		t.Errorf("Body = %v", rejected.Body)
	}

	// A late duplicate is unmatched.
	if c.Dispatch(response(id, 200, "")) {
		t.Error("late duplicate response was consumed")
	}
	if len(o.successes) != 0 || len(o.failures) != 1 {
		t.Errorf("callbacks ran again: %+v", o)
	}
}

func TestCorrelator_DispatchIgnoresEventsAndUnknownIDs(t *testing.T) {
	c := newCorrelator()
	o := &outcome{}
	c.Track(outbound{}, o.onSuccess, o.onFailure)

	event := protocol.Message{Event: "md", Data: json.RawMessage(`{}`)}
	if c.Dispatch(event) {
		t.Error("event consumed by correlator")
	}
	if c.Dispatch(response(42, 200, "")) {
		t.Error("unknown id consumed by correlator")
	}

	id := int64(0)
	noStatus := protocol.Message{ID: &id}
	if c.Dispatch(noStatus) {
		t.Error("response without status consumed")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCorrelator_Forget(t *testing.T) {
	c := newCorrelator()
	o := &outcome{}
	id, _ := c.Track(outbound{}, o.onSuccess, o.onFailure)

	if !c.Forget(id) {
		t.Error("Forget() = false for pending id")
	}
	if c.Forget(id) {
		t.Error("Forget() = true for forgotten id")
	}
	if c.Dispatch(response(id, 200, "")) {
		t.Error("forgotten request was consumed")
	}
}

func TestCorrelator_FailAll(t *testing.T) {
	c := newCorrelator()
	outcomes := []*outcome{{}, {}, {}}
	for _, o := range outcomes {
		c.Track(outbound{}, o.onSuccess, o.onFailure)
	}

	cause := errors.New("read: reset by peer")
	c.FailAll(cause)

	for i, o := range outcomes {
		if len(o.failures) != 1 {
			t.Fatalf("request %d failures = %d, want 1", i, len(o.failures))
		}
		if !errors.Is(o.failures[0], ErrConnectionClosed) || !errors.Is(o.failures[0], cause) {
			t.Errorf("request %d failure = %v", i, o.failures[0])
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}

	if _, err := c.Track(outbound{}, func(protocol.Message) {}, func(error) {}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Track() after FailAll error = %v, want ErrConnectionClosed", err)
	}
}

func TestCorrelator_ConcurrentTrackUniqueIDs(t *testing.T) {
	c := newCorrelator()
	const workers, perWorker = 8, 100

	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := c.Track(outbound{}, func(protocol.Message) {}, func(error) {})
				if err != nil {
					t.Errorf("Track() error: %v", err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("unique ids = %d, want %d", len(seen), workers*perWorker)
	}
}

func TestCorrelator_IDsStrictlyIncreasingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("ids from any mix of NextID and Track increase by one", prop.ForAll(
		func(ops []bool) bool {
			c := newCorrelator()
			last := int64(-1)
			for _, useTrack := range ops {
				var id int64
				if useTrack {
					var err error
					id, err = c.Track(outbound{}, func(protocol.Message) {}, func(error) {})
					if err != nil {
						return false
					}
				} else {
					id = c.NextID()
				}
				if id != last+1 {
					return false
				}
				last = id
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
