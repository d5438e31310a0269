package connection

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/dearvn/tradovate-go/internal/protocol"
)

type subscription struct {
	kind     Kind
	spec     kindSpec
	key      int64
	listener Listener
	removed  atomic.Bool
}

// emitFunc hands one matching element to its listener. It reports whether
// the element was accepted.
type emitFunc func(sub *subscription, data json.RawMessage) bool

// registry holds the active subscriptions in registration order. The slice
// is replaced on every change, so dispatch works on a snapshot and
// listeners may cancel subscriptions (their own included) while being
// invoked.
type registry struct {
	mu   sync.RWMutex
	subs []*subscription
	emit emitFunc
}

func newRegistry() *registry {
	return &registry{emit: deliver}
}

func (r *registry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]*subscription, len(r.subs), len(r.subs)+1)
	copy(next, r.subs)
	r.subs = append(next, sub)
}

// remove marks sub removed and drops it. No invocation starts after
// remove returns.
func (r *registry) remove(sub *subscription) bool {
	sub.removed.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s != sub {
			continue
		}
		next := make([]*subscription, 0, len(r.subs)-1)
		next = append(next, r.subs[:i]...)
		r.subs = append(next, r.subs[i+1:]...)
		return true
	}
	return false
}

func (r *registry) clear() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.removed.Store(true)
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *registry) snapshot() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs
}

// dispatch emits every matching element of msg in registration order and
// returns the number of elements emitted.
func (r *registry) dispatch(msg protocol.Message) int {
	subs := r.snapshot()
	if len(subs) == 0 || !msg.HasData() {
		return 0
	}

	fields := msg.Fields()
	buckets := make(map[string][]keyedElement)

	delivered := 0
	for _, sub := range subs {
		if sub.kind == KindSync {
			_, hasUsers := fields["users"]
			if (hasUsers || msg.Event == "props") && r.emit(sub, msg.Data) {
				delivered++
			}
			continue
		}

		elems, ok := buckets[sub.spec.bucket]
		if !ok {
			elems = splitBucket(fields[sub.spec.bucket], sub.spec.keyField)
			buckets[sub.spec.bucket] = elems
		}
		for _, el := range elems {
			if el.hasKey && el.key == sub.key && r.emit(sub, el.raw) {
				delivered++
			}
		}
	}
	return delivered
}

// deliver invokes the listener unless sub was removed.
func deliver(sub *subscription, data json.RawMessage) bool {
	if sub.removed.Load() {
		return false
	}
	sub.listener(data)
	return true
}

type keyedElement struct {
	raw    json.RawMessage
	key    int64
	hasKey bool
}

// splitBucket decodes an array of objects and extracts keyField from each.
// Anything that is not an array of objects yields no elements.
func splitBucket(raw json.RawMessage, keyField string) []keyedElement {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]keyedElement, 0, len(items))
	for _, item := range items {
		el := keyedElement{raw: item}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err == nil {
			el.key, el.hasKey = intField(fields, keyField)
		}
		out = append(out, el)
	}
	return out
}

// intField reads an integral JSON number field.
func intField(fields map[string]json.RawMessage, name string) (int64, bool) {
	raw, ok := fields[name]
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}
