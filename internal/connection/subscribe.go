package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dearvn/tradovate-go/internal/auth"
	"github.com/dearvn/tradovate-go/internal/protocol"
)

// ErrNoSubscriptionID means a chart response named no subscription.
var ErrNoSubscriptionID = errors.New("chart response carries no realtimeId or subscriptionId")

// Subscribe starts a real-time feed and invokes listener for every matching
// element until the returned CancelFunc is called or the socket closes.
//
// Contract kinds resolve body["symbol"] to a contract id first. The
// listener is registered while the subscribe response is being handled,
// so no element sent right behind the response is missed.
func (s *Socket) Subscribe(ctx context.Context, kind Kind, body map[string]any, listener Listener) (CancelFunc, error) {
	spec, ok := kind.spec()
	if !ok {
		return nil, &SubscriptionMisuse{Kind: kind, Reason: "unknown subscription kind"}
	}
	if listener == nil {
		return nil, &SubscriptionMisuse{Kind: kind, Reason: "nil listener"}
	}
	if actual := s.Category(); actual != spec.category {
		return nil, &SubscriptionMisuse{Kind: kind, Expected: spec.category, Actual: actual}
	}
	if st := s.State(); st != StateAuthenticated {
		if st.Terminal() {
			return nil, s.closedErr()
		}
		return nil, ErrNotAuthenticated
	}

	sub := &subscription{kind: kind, spec: spec, listener: listener}

	if spec.byContract {
		id, err := s.resolveContract(ctx, kind, body["symbol"])
		if err != nil {
			return nil, err
		}
		sub.key = id
	}

	var (
		registered bool
		hookErr    error
	)
	// hook runs on the dispatch goroutine for each 200 response. Its writes
	// are visible to this goroutine once request returns.
	hook := func(msg protocol.Message) {
		if _, challenged := auth.ParseChallenge(msg.Data); challenged {
			return
		}
		fields := msg.Fields()

		switch kind {
		case KindChart:
			id, ok := intField(fields, "realtimeId")
			if !ok {
				id, ok = intField(fields, "subscriptionId")
			}
			if !ok {
				hookErr = ErrNoSubscriptionID
				return
			}
			sub.key = id
		case KindSync:
			if _, hasUsers := fields["users"]; hasUsers {
				s.enqueue(sub, msg.Data)
			}
		}

		s.reg.add(sub)
		registered = true
	}

	msg, err := s.request(ctx, spec.endpoint, "", body, hook, false)
	if err != nil {
		return nil, err
	}

	if _, challenged := auth.ParseChallenge(msg.Data); challenged {
		_, err = s.challenges.Resolve(ctx, msg.Data, func(ctx context.Context, ticket string) (json.RawMessage, error) {
			retry := make(map[string]any, len(body)+1)
			for k, v := range body {
				retry[k] = v
			}
			retry["p-ticket"] = ticket

			next, err := s.request(ctx, spec.endpoint, "", retry, hook, false)
			if err != nil {
				return nil, err
			}
			return next.Data, nil
		})
		if err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", kind, err)
		}
	}

	if hookErr != nil {
		return nil, fmt.Errorf("subscribe %s: %w", kind, hookErr)
	}
	if !registered {
		return nil, fmt.Errorf("subscribe %s: %w", kind, s.closedErr())
	}

	s.logger.Debug("subscribed", "kind", kind, "key", sub.key)
	return s.cancelFunc(sub, body), nil
}

func (s *Socket) resolveContract(ctx context.Context, kind Kind, symbolField any) (int64, error) {
	id, symbol, err := contractRef(symbolField)
	if errors.Is(err, errBadContractID) {
		return 0, &SubscriptionMisuse{Kind: kind, Reason: err.Error()}
	}
	if err != nil {
		return 0, &SymbolResolutionError{Symbol: fmt.Sprint(symbolField), Err: err}
	}
	if symbol == "" {
		return id, nil
	}
	if s.contracts == nil {
		return 0, &SymbolResolutionError{Symbol: symbol, Err: errors.New("no contract lookup configured")}
	}

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	return s.contracts.resolve(ctx, symbol, token)
}

// cancelFunc removes the listener immediately and sends the server-side
// cancel in the background. Cancel failures are logged only.
func (s *Socket) cancelFunc(sub *subscription, body map[string]any) CancelFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.reg.remove(sub)

			if sub.spec.cancelEndpoint == "" {
				return
			}
			select {
			case <-s.done:
				return
			default:
			}

			var cancelBody map[string]any
			if sub.kind == KindChart {
				cancelBody = map[string]any{"subscriptionId": sub.key}
			} else {
				cancelBody = map[string]any{"symbol": body["symbol"]}
			}

			go func() {
				if _, err := s.request(context.Background(), sub.spec.cancelEndpoint, "", cancelBody, nil, false); err != nil {
					s.logger.Warn("cancel subscription failed",
						"kind", sub.kind,
						"endpoint", sub.spec.cancelEndpoint,
						"error", err,
					)
					return
				}
				s.logger.Debug("subscription cancelled", "kind", sub.kind, "key", sub.key)
			}()
		})
	}
}
