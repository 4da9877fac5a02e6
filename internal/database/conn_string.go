package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/mediasync-events/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config. The
// application_name tags this process's sessions in pg_stat_activity.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&application_name=mediasync-events",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}
