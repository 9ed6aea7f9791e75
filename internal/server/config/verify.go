package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyHTTP(&cfg.HTTP),
		verifyStorage(&cfg.Storage),
		verifyRedis(&cfg.Redis),
		verifyAuth(&cfg.Auth),
		verifyQuotes(&cfg.Quotes),
		verifyLog(&cfg.Log),
		verifyAdmin(&cfg.Admin),
	)
}

func verifyHTTP(cfg *HTTPSection) error {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("http.addr %q: %w", cfg.Addr, err)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("http.tls_cert_file and http.tls_key_file must be set together")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("http.shutdown_timeout must be positive")
	}
	for _, entry := range cfg.MetricsAllow {
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("http.metrics_allow: %q is not an IP or CIDR", entry)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case BackendMemory:
	case BackendBadger:
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger backend")
		}
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q: must be memory, badger or postgres", cfg.Backend)
	}
	if err := verifySnapshot(&cfg.Snapshot); err != nil {
		return err
	}
	if cfg.Snapshot.WAL.Enabled && (cfg.Backend != BackendMemory || cfg.Snapshot.Dir == "") {
		return errors.New("storage.snapshot.wal needs the memory backend and storage.snapshot.dir")
	}
	return nil
}

func verifySnapshot(cfg *SnapshotSection) error {
	if cfg.Dir == "" {
		return nil
	}
	if cfg.Interval < 0 {
		return errors.New("storage.snapshot.interval must not be negative")
	}
	if cfg.Retain < 1 {
		return errors.New("storage.snapshot.retain must be at least 1")
	}
	if cfg.Passphrase != "" && len(cfg.Passphrase) < MinSnapshotPassphrase {
		return fmt.Errorf("storage.snapshot.passphrase must be at least %d characters", MinSnapshotPassphrase)
	}
	switch cfg.Cipher {
	case "auto", "aes-gcm", "chacha20-poly1305":
	default:
		return fmt.Errorf("storage.snapshot.cipher %q: must be auto, aes-gcm or chacha20-poly1305", cfg.Cipher)
	}
	if !cfg.WAL.Enabled {
		return nil
	}
	switch cfg.WAL.Sync {
	case "batch":
		if cfg.WAL.SyncInterval <= 0 {
			return errors.New("storage.snapshot.wal.sync_interval must be positive")
		}
	case "sync":
	default:
		return fmt.Errorf("storage.snapshot.wal.sync %q: must be batch or sync", cfg.WAL.Sync)
	}
	return nil
}

func verifyRedis(cfg *RedisSection) error {
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.Addrs) == 0 {
		return errors.New("redis.addrs is required when redis is enabled")
	}
	for _, addr := range cfg.Addrs {
		if _, port, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("redis.addrs %q: %w", addr, err)
		} else if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("redis.addrs %q: invalid port", addr)
		}
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	if cfg.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if cfg.KeyCacheTTL < 0 {
		return errors.New("auth.key_cache_ttl must not be negative")
	}
	return nil
}

func verifyQuotes(cfg *QuotesSection) error {
	if len(cfg.Sources) == 0 {
		return errors.New("quotes.sources must name at least one source")
	}
	for _, s := range cfg.Sources {
		if !slices.Contains([]string{SourceYahoo, SourceStatic}, s) {
			return fmt.Errorf("quotes.sources: unknown source %q", s)
		}
	}
	if slices.Contains(cfg.Sources, SourceYahoo) {
		if u, err := url.Parse(cfg.YahooURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("quotes.yahoo_url %q is not an absolute URL", cfg.YahooURL)
		}
	}
	for name, price := range cfg.Static {
		if _, err := domain.ParseCommodity(name); err != nil {
			return fmt.Errorf("quotes.static: unknown commodity %q", name)
		}
		if price <= 0 {
			return fmt.Errorf("quotes.static.%s must be positive", name)
		}
	}
	if cfg.CacheTTL <= 0 || cfg.FetchTimeout <= 0 {
		return errors.New("quotes.cache_ttl and quotes.fetch_timeout must be positive")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: must be json or text", cfg.Format)
	}
	return nil
}

func verifyAdmin(cfg *AdminSection) error {
	if cfg.Socket != "" && !filepath.IsAbs(cfg.Socket) {
		return fmt.Errorf("admin.socket %q must be an absolute path", cfg.Socket)
	}
	return nil
}
