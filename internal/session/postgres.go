package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createTokensTable = `
CREATE TABLE IF NOT EXISTS access_tokens (
    profile      TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    user_id      BIGINT NOT NULL DEFAULT 0,
    user_name    TEXT NOT NULL DEFAULT '',
    user_status  TEXT NOT NULL DEFAULT '',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectToken = `
SELECT access_token, expires_at, user_id, user_name, user_status
FROM access_tokens
WHERE profile = $1`

const upsertToken = `
INSERT INTO access_tokens (profile, access_token, expires_at, user_id, user_name, user_status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (profile) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    expires_at   = EXCLUDED.expires_at,
    user_id      = EXCLUDED.user_id,
    user_name    = EXCLUDED.user_name,
    user_status  = EXCLUDED.user_status,
    updated_at   = now()`

// PostgresStore persists one token per profile in the access_tokens table.
type PostgresStore struct {
	db      DB
	profile string
}

// NewPostgresStore creates a store for the given profile, usually the
// login name. Call Migrate once before first use.
func NewPostgresStore(db DB, profile string) *PostgresStore {
	return &PostgresStore{db: db, profile: profile}
}

// Migrate creates the access_tokens table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTokensTable); err != nil {
		return fmt.Errorf("create access_tokens: %w", err)
	}
	return nil
}

func (p *PostgresStore) CurrentToken(ctx context.Context) (Token, bool, error) {
	var tok Token
	err := p.db.QueryRow(ctx, selectToken, p.profile).Scan(
		&tok.AccessToken,
		&tok.ExpiresAt,
		&tok.User.ID,
		&tok.User.Name,
		&tok.User.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("select token: %w", err)
	}
	return tok, true, nil
}

func (p *PostgresStore) PersistToken(ctx context.Context, tok Token) error {
	_, err := p.db.Exec(ctx, upsertToken,
		p.profile,
		tok.AccessToken,
		tok.ExpiresAt,
		tok.User.ID,
		tok.User.Name,
		tok.User.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}
