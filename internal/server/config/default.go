package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:8000"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultBackend         = BackendMemory
	DefaultDataDir         = "/var/lib/metalgate-server/data"
	DefaultPostgresTimeout = 5 * time.Second

	DefaultSnapshotInterval = 5 * time.Minute
	DefaultSnapshotRetain   = 3
	DefaultSnapshotCipher   = "auto"
	MinSnapshotPassphrase   = 8

	DefaultWALSync         = "batch"
	DefaultWALSyncInterval = time.Second

	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "metalgate:token:"

	DefaultTokenTTL    = 24 * time.Hour
	DefaultKeyCacheTTL = 10 * time.Second

	DefaultYahooURL      = "https://query1.finance.yahoo.com"
	DefaultQuoteCacheTTL = time.Minute
	DefaultFetchTimeout  = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		HTTP: HTTPSection{
			Addr:            DefaultHTTPAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			CORSOrigins:     []string{"*"},
		},
		Storage: StorageSection{
			Backend:         DefaultBackend,
			DataDir:         DefaultDataDir,
			PostgresTimeout: DefaultPostgresTimeout,
			Snapshot: SnapshotSection{
				Interval: DefaultSnapshotInterval,
				Retain:   DefaultSnapshotRetain,
				Cipher:   DefaultSnapshotCipher,
				WAL: WALSection{
					Sync:         DefaultWALSync,
					SyncInterval: DefaultWALSyncInterval,
				},
			},
		},
		Redis: RedisSection{
			Addrs:  []string{DefaultRedisAddr},
			Prefix: DefaultRedisPrefix,
		},
		Auth: AuthSection{
			TokenTTL:    DefaultTokenTTL,
			KeyCacheTTL: DefaultKeyCacheTTL,
		},
		Quotes: QuotesSection{
			Sources:      []string{SourceYahoo},
			YahooURL:     DefaultYahooURL,
			CacheTTL:     DefaultQuoteCacheTTL,
			FetchTimeout: DefaultFetchTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// defaults flattens Default into dotted keys so that every key is known to
// the environment loader.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"http.addr":                          d.HTTP.Addr,
		"http.tls_cert_file":                 d.HTTP.TLSCertFile,
		"http.tls_key_file":                  d.HTTP.TLSKeyFile,
		"http.read_timeout":                  d.HTTP.ReadTimeout,
		"http.write_timeout":                 d.HTTP.WriteTimeout,
		"http.shutdown_timeout":              d.HTTP.ShutdownTimeout,
		"http.cors_origins":                  d.HTTP.CORSOrigins,
		"http.metrics_allow":                 d.HTTP.MetricsAllow,
		"storage.backend":                    d.Storage.Backend,
		"storage.data_dir":                   d.Storage.DataDir,
		"storage.postgres_dsn":               d.Storage.PostgresDSN,
		"storage.postgres_timeout":           d.Storage.PostgresTimeout,
		"storage.snapshot.dir":               d.Storage.Snapshot.Dir,
		"storage.snapshot.interval":          d.Storage.Snapshot.Interval,
		"storage.snapshot.retain":            d.Storage.Snapshot.Retain,
		"storage.snapshot.passphrase":        d.Storage.Snapshot.Passphrase,
		"storage.snapshot.cipher":            d.Storage.Snapshot.Cipher,
		"storage.snapshot.wal.enabled":       d.Storage.Snapshot.WAL.Enabled,
		"storage.snapshot.wal.sync":          d.Storage.Snapshot.WAL.Sync,
		"storage.snapshot.wal.sync_interval": d.Storage.Snapshot.WAL.SyncInterval,
		"redis.enabled":                      d.Redis.Enabled,
		"redis.addrs":                        d.Redis.Addrs,
		"redis.password":                     d.Redis.Password,
		"redis.db":                           d.Redis.DB,
		"redis.prefix":                       d.Redis.Prefix,
		"auth.token_ttl":                     d.Auth.TokenTTL,
		"auth.key_cache_ttl":                 d.Auth.KeyCacheTTL,
		"quotes.sources":                     d.Quotes.Sources,
		"quotes.yahoo_url":                   d.Quotes.YahooURL,
		"quotes.cache_ttl":                   d.Quotes.CacheTTL,
		"quotes.fetch_timeout":               d.Quotes.FetchTimeout,
		"log.level":                          d.Log.Level,
		"log.format":                         d.Log.Format,
		"admin.socket":                       d.Admin.Socket,
	}
}
