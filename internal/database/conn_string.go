package database

import (
	"fmt"
	"net/url"

	"github.com/dearvn/tradovate-go/internal/config"
)

// ApplicationName is reported to the server in pg_stat_activity.
const ApplicationName = "tradovate-go"

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	userInfo := url.QueryEscape(cfg.User)
	if cfg.Password != "" {
		// URL-encode password to handle special characters
		userInfo += ":" + url.QueryEscape(cfg.Password)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	params := url.Values{}
	params.Set("sslmode", sslMode)
	params.Set("application_name", ApplicationName)

	return fmt.Sprintf("postgres://%s@%s:%d/%s?%s",
		userInfo,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		params.Encode(),
	)
}
