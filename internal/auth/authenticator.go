package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/dearvn/tradovate-go/internal/api"
	"github.com/dearvn/tradovate-go/internal/config"
	"github.com/dearvn/tradovate-go/internal/session"
)

// AuthError is an access-token request the server refused.
type AuthError struct {
	Text string
}

func (e *AuthError) Error() string {
	return "access token request refused: " + e.Text
}

// Credentials are the fields of an access-token request.
type Credentials struct {
	Name       string
	Password   string
	AppID      string
	AppVersion string
	CID        string
	Sec        string
}

// CredentialsFromConfig copies the credentials section of the config.
func CredentialsFromConfig(cfg config.CredentialsConfig) Credentials {
	return Credentials{
		Name:       cfg.Name,
		Password:   cfg.Password,
		AppID:      cfg.AppID,
		AppVersion: cfg.AppVersion,
		CID:        cfg.CID,
		Sec:        cfg.Sec,
	}
}

func (c Credentials) request(deviceID string) api.AccessTokenRequest {
	return api.AccessTokenRequest{
		Name:       c.Name,
		Password:   c.Password,
		AppID:      c.AppID,
		AppVersion: c.AppVersion,
		CID:        c.CID,
		Sec:        c.Sec,
		DeviceID:   deviceID,
	}
}

// TokenRequester posts access-token requests. *api.Client implements it.
type TokenRequester interface {
	RequestAccessToken(ctx context.Context, req api.AccessTokenRequest) (json.RawMessage, error)
}

// Authenticator hands out access tokens, requesting a new one only when
// the session has no valid token.
type Authenticator struct {
	rest     TokenRequester
	session  *session.Session
	creds    Credentials
	resolver *Resolver
	logger   *slog.Logger

	group singleflight.Group
}

// NewAuthenticator creates an Authenticator. A nil resolver uses the
// default challenge settings.
func NewAuthenticator(rest TokenRequester, sess *session.Session, creds Credentials, resolver *Resolver, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = NewResolver(WithLogger(logger))
	}
	return &Authenticator{
		rest:     rest,
		session:  sess,
		creds:    creds,
		resolver: resolver,
		logger:   logger.With("component", "auth"),
	}
}

// AccessToken returns a valid token. Concurrent callers share one request.
func (a *Authenticator) AccessToken(ctx context.Context) (session.Token, error) {
	tok, err := a.session.Token(ctx)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, session.ErrNoToken) {
		return session.Token{}, err
	}

	// A caller giving up does not cancel the request others share.
	requestCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan("token", func() (any, error) {
		return a.requestToken(requestCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return session.Token{}, res.Err
		}
		return res.Val.(session.Token), nil
	case <-ctx.Done():
		return session.Token{}, ctx.Err()
	}
}

func (a *Authenticator) requestToken(ctx context.Context) (session.Token, error) {
	req := a.creds.request(a.session.DeviceID())

	raw, err := a.rest.RequestAccessToken(ctx, req)
	if err != nil {
		return session.Token{}, err
	}

	raw, err = a.resolver.Resolve(ctx, raw, func(ctx context.Context, ticket string) (json.RawMessage, error) {
		retry := req
		retry.Ticket = ticket
		return a.rest.RequestAccessToken(ctx, retry)
	})
	if err != nil {
		return session.Token{}, err
	}

	var resp api.AccessTokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return session.Token{}, fmt.Errorf("decode access token response: %w", err)
	}
	if resp.ErrorText != "" {
		return session.Token{}, &AuthError{Text: resp.ErrorText}
	}
	if resp.AccessToken == "" {
		return session.Token{}, &AuthError{Text: "no access token in response"}
	}

	tok := session.Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.ExpirationTime,
		User: session.User{
			ID:     resp.UserID,
			Name:   resp.Name,
			Status: resp.UserStatus,
		},
	}
	if err := a.session.SetToken(ctx, tok); err != nil {
		return session.Token{}, err
	}

	a.logger.Info("access token acquired", "user", resp.Name, "expires_at", resp.ExpirationTime)
	return tok, nil
}
