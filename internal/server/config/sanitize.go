package config

import (
	"net/url"
	"slices"
	"strings"
)

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.HTTP.CORSOrigins = slices.Clone(cfg.HTTP.CORSOrigins)
	sanitized.HTTP.MetricsAllow = slices.Clone(cfg.HTTP.MetricsAllow)
	sanitized.Redis.Addrs = slices.Clone(cfg.Redis.Addrs)
	sanitized.Quotes.Sources = slices.Clone(cfg.Quotes.Sources)

	if sanitized.Storage.PostgresDSN != "" {
		sanitized.Storage.PostgresDSN = maskDSN(sanitized.Storage.PostgresDSN)
	}
	if sanitized.Storage.Snapshot.Passphrase != "" {
		sanitized.Storage.Snapshot.Passphrase = maskSecret(sanitized.Storage.Snapshot.Passphrase)
	}
	if sanitized.Redis.Password != "" {
		sanitized.Redis.Password = maskSecret(sanitized.Redis.Password)
	}
	return &sanitized
}

// maskDSN hides the password of a URL-style DSN. Keyword/value DSNs are
// masked entirely when they carry a password.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err == nil && u.Scheme != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
		return u.String()
	}
	if strings.Contains(dsn, "password=") {
		return maskSecret(dsn)
	}
	return dsn
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
