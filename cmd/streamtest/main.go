// streamtest authenticates, opens the market-data socket and prints one
// feed for a symbol until interrupted.
// Usage: go run ./cmd/streamtest --config configs/streamtest.example.yaml --symbol ESZ6 --feed md/subscribedom
//
// Credentials are read from the config, which expands ${VAR} references:
//
//	TRADOVATE_USER, TRADOVATE_PASSWORD, TRADOVATE_APP_ID, TRADOVATE_CID, TRADOVATE_SEC
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dearvn/tradovate-go/internal/api"
	"github.com/dearvn/tradovate-go/internal/auth"
	"github.com/dearvn/tradovate-go/internal/config"
	"github.com/dearvn/tradovate-go/internal/connection"
	"github.com/dearvn/tradovate-go/internal/database"
	"github.com/dearvn/tradovate-go/internal/session"
	"github.com/dearvn/tradovate-go/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamtest.example.yaml", "path to config file")
	symbol := flag.String("symbol", "ESZ6", "symbol to stream")
	feed := flag.String("feed", "md/subscribeQuote", "market data subscribe endpoint (quote, dom, histogram or getChart)")
	withSync := flag.Bool("sync", false, "also open the account socket and print user sync events")
	flag.Parse()

	kind, ok := connection.KindForEndpoint(*feed)
	if !ok || kind == connection.KindSync {
		fmt.Fprintf(os.Stderr, "unsupported feed %q\n", *feed)
		os.Exit(2)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(os.Stdout, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting streamtest",
		"version", version.Version,
		"commit", version.Commit,
		"env", cfg.API.Env,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, kind, *symbol, *withSync, logger); err != nil && ctx.Err() == nil {
		logger.Error("streamtest failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, kind connection.Kind, symbol string, withSync bool, logger *slog.Logger) error {
	store, closeStore, err := newStore(ctx, cfg.Session, cfg.Credentials.Name, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	proxy, err := cfg.API.ProxyURL()
	if err != nil {
		return err
	}
	if proxy != nil {
		logger.Info("using proxy", "host", proxy.Host)
	}

	sess := session.New(store)
	rest := api.NewClient(cfg.API.HTTPURL(),
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
		api.WithProxy(proxy),
	)

	creds := auth.CredentialsFromConfig(cfg.Credentials)
	if creds.AppVersion == "" {
		creds.AppVersion = version.UserAgent()
	}
	resolver := auth.NewResolver(
		auth.WithMaxAttempts(cfg.Auth.ChallengeMaxAttempts),
		auth.WithLogger(logger),
	)
	authenticator := auth.NewAuthenticator(rest, sess, creds, resolver, logger)

	tok, err := authenticator.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	logger.Info("authenticated", "user", tok.User.Name, "expires_at", tok.ExpiresAt)

	sockCfg := connection.ConfigFrom(cfg)
	md := connection.NewSocket(sockCfg,
		connection.WithLogger(logger),
		connection.WithContracts(rest),
		connection.WithChallengeResolver(resolver),
	)
	defer md.Close()

	if err := md.Connect(ctx, cfg.API.WSMarketData, tok.AccessToken); err != nil {
		return fmt.Errorf("connect market data: %w", err)
	}

	logger.Info("subscribing", "feed", kind.Endpoint(), "symbol", symbol)
	cancelFeed, err := md.Subscribe(ctx, kind, feedBody(kind, symbol), printPayload(kind.String()))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", kind, err)
	}
	if kind.Cancellable() {
		defer cancelFeed()
	}

	var account *connection.Socket
	if withSync {
		account = connection.NewSocket(sockCfg,
			connection.WithLogger(logger),
			connection.WithChallengeResolver(resolver),
		)
		defer account.Close()

		if err := account.Connect(ctx, cfg.API.AccountWSURL(), tok.AccessToken); err != nil {
			return fmt.Errorf("connect account: %w", err)
		}
		body := map[string]any{"users": []int64{tok.User.ID}}
		if _, err := account.Subscribe(ctx, connection.KindSync, body, printPayload("sync")); err != nil {
			return fmt.Errorf("subscribe user sync: %w", err)
		}
	}

	// Stats printer
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-md.Done():
			return md.Err()
		case <-accountDone(account):
			return account.Err()
		case <-ticker.C:
			stats := md.Stats()
			logger.Info("socket stats",
				"state", stats.State,
				"pending", stats.Pending,
				"subscriptions", stats.Subscriptions,
				"frames", stats.FramesReceived,
				"keep_alives", stats.KeepAlivesSent,
				"queue_len", stats.Queue.Len,
			)
		}
	}
}

func feedBody(kind connection.Kind, symbol string) map[string]any {
	body := map[string]any{"symbol": symbol}
	if kind == connection.KindChart {
		body["chartDescription"] = map[string]any{
			"underlyingType":  "MinuteBar",
			"elementSize":     1,
			"elementSizeUnit": "UnderlyingUnits",
		}
		body["timeRange"] = map[string]any{"asMuchAsElements": 20}
	}
	return body
}

func accountDone(s *connection.Socket) <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.Done()
}

func printPayload(label string) connection.Listener {
	return func(data json.RawMessage) {
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05.000"), label, data)
	}
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func newStore(ctx context.Context, cfg config.SessionConfig, profile string, logger *slog.Logger) (session.Store, func(), error) {
	if cfg.Store != "postgres" {
		return session.NewMemoryStore(), func() {}, nil
	}

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	store := session.NewPostgresStore(pool, profile)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate token store: %w", err)
	}
	return store, pool.Close, nil
}
