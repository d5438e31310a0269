package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ErrCaptchaRequired is returned when the server demands a captcha.
var ErrCaptchaRequired = errors.New("captcha required: operator action needed")

// ChallengeRequired is returned when challenges keep arriving after the
// configured number of resubmissions.
type ChallengeRequired struct {
	Ticket   string
	Wait     time.Duration
	Attempts int
}

func (e *ChallengeRequired) Error() string {
	return fmt.Sprintf("challenge still required after %d attempts (wait %s)", e.Attempts, e.Wait)
}

// Challenge is the time-penalty part of a response payload.
type Challenge struct {
	Ticket  string
	Wait    time.Duration
	Captcha bool
}

// ParseChallenge extracts a challenge from payload. ok is false when the
// payload is not an object or carries no ticket. The other fields are read
// one at a time, so a malformed p-time or p-captcha never hides a ticket.
func ParseChallenge(payload json.RawMessage) (Challenge, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Challenge{}, false
	}
	var ticket string
	if err := json.Unmarshal(fields["p-ticket"], &ticket); err != nil || ticket == "" {
		return Challenge{}, false
	}
	return Challenge{
		Ticket:  ticket,
		Wait:    penaltyWait(fields["p-time"]),
		Captcha: captchaFlag(fields["p-captcha"]),
	}, true
}

// penaltyWait reads p-time in seconds, as a number or a numeric string.
// Anything else waits zero.
func penaltyWait(raw json.RawMessage) time.Duration {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	secs, err := n.Float64()
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func captchaFlag(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		b, _ = strconv.ParseBool(s)
	}
	return b
}

// ResubmitFunc repeats the original request with the ticket attached and
// returns the new response payload.
type ResubmitFunc func(ctx context.Context, ticket string) (json.RawMessage, error)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Resolver runs the challenge loop.
type Resolver struct {
	maxAttempts int
	wait        WaitFunc
	logger      *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxAttempts bounds the number of resubmissions. Zero means no bound.
func WithMaxAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		r.maxAttempts = n
	}
}

// WithWait replaces the penalty wait, mostly for tests.
func WithWait(wait WaitFunc) ResolverOption {
	return func(r *Resolver) {
		if wait != nil {
			r.wait = wait
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		wait:   sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns payload unchanged if it carries no challenge. Otherwise
// it waits and resubmits until a payload without a ticket comes back.
func (r *Resolver) Resolve(ctx context.Context, payload json.RawMessage, resubmit ResubmitFunc) (json.RawMessage, error) {
	attempts := 0
	for {
		ch, ok := ParseChallenge(payload)
		if !ok {
			return payload, nil
		}
		if ch.Captcha {
			return nil, ErrCaptchaRequired
		}
		if r.maxAttempts > 0 && attempts >= r.maxAttempts {
			return nil, &ChallengeRequired{Ticket: ch.Ticket, Wait: ch.Wait, Attempts: attempts}
		}
		attempts++

		r.logger.Warn("time penalty challenge, waiting before retry",
			"wait", ch.Wait,
			"attempt", attempts,
		)

		if err := r.wait(ctx, ch.Wait); err != nil {
			return nil, fmt.Errorf("wait for challenge: %w", err)
		}

		next, err := resubmit(ctx, ch.Ticket)
		if err != nil {
			return nil, fmt.Errorf("resubmit with ticket: %w", err)
		}
		payload = next
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
