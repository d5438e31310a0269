package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dearvn/tradovate-go/internal/api"
	"github.com/dearvn/tradovate-go/internal/session"
)

type fakeRequester struct {
	mu        sync.Mutex
	responses []string
	requests  []api.AccessTokenRequest
	err       error
	delay     time.Duration
}

func (f *fakeRequester) RequestAccessToken(ctx context.Context, req api.AccessTokenRequest) (json.RawMessage, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return json.RawMessage(next), nil
}

func testCreds() Credentials {
	return Credentials{Name: "trader", Password: "secret", AppID: "app", AppVersion: "1.0"}
}

func noWait() *Resolver {
	return NewResolver(WithWait(func(ctx context.Context, d time.Duration) error { return nil }))
}

func TestAuthenticator_RequestsAndPersists(t *testing.T) {
	rest := &fakeRequester{responses: []string{
		`{"accessToken":"abc","expirationTime":"2099-01-01T00:00:00Z","userId":7,"name":"trader","userStatus":"Active"}`,
	}}
	store := session.NewMemoryStore()
	sess := session.New(store, session.WithDeviceID("dev-1"))

	a := NewAuthenticator(rest, sess, testCreds(), noWait(), nil)

	tok, err := a.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}
	if tok.AccessToken != "abc" || tok.User.ID != 7 || tok.User.Status != "Active" {
		t.Errorf("token = %+v", tok)
	}

	if len(rest.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(rest.requests))
	}
	req := rest.requests[0]
	if req.Name != "trader" || req.Password != "secret" || req.DeviceID != "dev-1" || req.Ticket != "" {
		t.Errorf("request = %+v", req)
	}

	stored, ok, err := store.CurrentToken(context.Background())
	if err != nil || !ok || stored.AccessToken != "abc" {
		t.Errorf("stored = %+v, %v, %v", stored, ok, err)
	}

	// A second call reuses the session token.
	if _, err := a.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken() second call error: %v", err)
	}
	if len(rest.requests) != 1 {
		t.Errorf("requests = %d, want 1 after cached call", len(rest.requests))
	}
}

func TestAuthenticator_ResolvesChallenge(t *testing.T) {
	rest := &fakeRequester{responses: []string{
		`{"p-ticket":"T1","p-time":1}`,
		`{"accessToken":"abc","expirationTime":"2099-01-01T00:00:00Z"}`,
	}}
	a := NewAuthenticator(rest, session.New(nil), testCreds(), noWait(), nil)

	tok, err := a.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}
	if tok.AccessToken != "abc" {
		t.Errorf("AccessToken = %q, want abc", tok.AccessToken)
	}
	if len(rest.requests) != 2 || rest.requests[1].Ticket != "T1" {
		t.Errorf("requests = %+v, want retry with ticket T1", rest.requests)
	}
	if rest.requests[0].Ticket != "" {
		t.Error("first request must not carry a ticket")
	}
}

func TestAuthenticator_ErrorText(t *testing.T) {
	rest := &fakeRequester{responses: []string{`{"errorText":"Incorrect username or password"}`}}
	a := NewAuthenticator(rest, session.New(nil), testCreds(), noWait(), nil)

	_, err := a.AccessToken(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("AccessToken() error = %v, want *AuthError", err)
	}
	if authErr.Text != "Incorrect username or password" {
		t.Errorf("Text = %q", authErr.Text)
	}
}

func TestAuthenticator_Captcha(t *testing.T) {
	rest := &fakeRequester{responses: []string{`{"p-ticket":"T","p-captcha":true}`}}
	a := NewAuthenticator(rest, session.New(nil), testCreds(), noWait(), nil)

	if _, err := a.AccessToken(context.Background()); !errors.Is(err, ErrCaptchaRequired) {
		t.Errorf("AccessToken() error = %v, want ErrCaptchaRequired", err)
	}
}

func TestAuthenticator_TransportError(t *testing.T) {
	boom := errors.New("dial failed")
	rest := &fakeRequester{err: boom}
	a := NewAuthenticator(rest, session.New(nil), testCreds(), noWait(), nil)

	if _, err := a.AccessToken(context.Background()); !errors.Is(err, boom) {
		t.Errorf("AccessToken() error = %v, want %v", err, boom)
	}
}

func TestAuthenticator_ExpiredTokenIsRenewed(t *testing.T) {
	store := session.NewMemoryStore()
	store.PersistToken(context.Background(), session.Token{
		AccessToken: "old",
		ExpiresAt:   time.Now().Add(-time.Minute),
	})
	rest := &fakeRequester{responses: []string{
		`{"accessToken":"new","expirationTime":"2099-01-01T00:00:00Z"}`,
	}}
	a := NewAuthenticator(rest, session.New(store), testCreds(), noWait(), nil)

	tok, err := a.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error: %v", err)
	}
	if tok.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", tok.AccessToken)
	}
}

func TestAuthenticator_CallerCancelLeavesSharedRequest(t *testing.T) {
	rest := &fakeRequester{
		responses: []string{`{"accessToken":"abc","expirationTime":"2099-01-01T00:00:00Z","userId":7,"name":"trader"}`},
		delay:     150 * time.Millisecond,
	}
	a := NewAuthenticator(rest, session.New(session.NewMemoryStore()), testCreds(), noWait(), nil)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.AccessToken(first)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type outcome struct {
		tok session.Token
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		tok, err := a.AccessToken(context.Background())
		second <- outcome{tok, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("canceled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("canceled caller kept waiting for the shared request")
	}

	got := <-second
	if got.err != nil || got.tok.AccessToken != "abc" {
		t.Errorf("second caller = %+v, %v", got.tok, got.err)
	}
	rest.mu.Lock()
	defer rest.mu.Unlock()
	if len(rest.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(rest.requests))
	}
}
