package config

import "time"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Quote sources.
const (
	SourceYahoo  = "yahoo"
	SourceStatic = "static"
)

// ServerConfig is the root configuration for metalgate-server.
type ServerConfig struct {
	HTTP    HTTPSection    `koanf:"http" json:"http"`
	Storage StorageSection `koanf:"storage" json:"storage"`
	Redis   RedisSection   `koanf:"redis" json:"redis"`
	Auth    AuthSection    `koanf:"auth" json:"auth"`
	Quotes  QuotesSection  `koanf:"quotes" json:"quotes"`
	Log     LogSection     `koanf:"log" json:"log"`
	Admin   AdminSection   `koanf:"admin" json:"admin"`
}

// HTTPSection configures the HTTP server.
type HTTPSection struct {
	Addr            string        `koanf:"addr" json:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file" json:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`

	// CORSOrigins lists allowed browser origins. "*" allows any.
	CORSOrigins []string `koanf:"cors_origins" json:"cors_origins"`

	// MetricsAllow restricts /metrics to these IPs or CIDRs. Empty allows
	// any client.
	MetricsAllow []string `koanf:"metrics_allow" json:"metrics_allow"`
}

// StorageSection selects and configures the persistence backend.
type StorageSection struct {
	// Backend is one of memory, badger or postgres.
	Backend string `koanf:"backend" json:"backend"`

	// DataDir is the badger directory.
	DataDir string `koanf:"data_dir" json:"data_dir"`

	// PostgresDSN is the pgx connection string.
	PostgresDSN string `koanf:"postgres_dsn" json:"postgres_dsn"`

	// PostgresTimeout bounds each postgres statement.
	PostgresTimeout time.Duration `koanf:"postgres_timeout" json:"postgres_timeout"`

	// Snapshot persists the memory backend across restarts.
	Snapshot SnapshotSection `koanf:"snapshot" json:"snapshot"`
}

// SnapshotSection configures memory backend snapshots. An empty Dir
// disables them.
type SnapshotSection struct {
	Dir      string        `koanf:"dir" json:"dir"`
	Interval time.Duration `koanf:"interval" json:"interval"`
	Retain   int           `koanf:"retain" json:"retain"`

	// Passphrase enables encryption when set.
	Passphrase string `koanf:"passphrase" json:"passphrase"`
	Cipher     string `koanf:"cipher" json:"cipher"`

	// WAL logs writes between snapshots under Dir/wal.
	WAL WALSection `koanf:"wal" json:"wal"`
}

// WALSection configures the memory backend write-ahead log.
type WALSection struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Sync is "batch" or "sync".
	Sync         string        `koanf:"sync" json:"sync"`
	SyncInterval time.Duration `koanf:"sync_interval" json:"sync_interval"`
}

// RedisSection moves session tokens to Redis when enabled.
type RedisSection struct {
	Enabled  bool     `koanf:"enabled" json:"enabled"`
	Addrs    []string `koanf:"addrs" json:"addrs"`
	Password string   `koanf:"password" json:"password"`
	DB       int      `koanf:"db" json:"db"`
	Prefix   string   `koanf:"prefix" json:"prefix"`
}

// AuthSection configures session tokens and key validation.
type AuthSection struct {
	TokenTTL    time.Duration `koanf:"token_ttl" json:"token_ttl"`
	KeyCacheTTL time.Duration `koanf:"key_cache_ttl" json:"key_cache_ttl"`
}

// QuotesSection configures upstream quote sources.
type QuotesSection struct {
	// Sources are tried in order for every refresh.
	Sources      []string           `koanf:"sources" json:"sources"`
	YahooURL     string             `koanf:"yahoo_url" json:"yahoo_url"`
	CacheTTL     time.Duration      `koanf:"cache_ttl" json:"cache_ttl"`
	FetchTimeout time.Duration      `koanf:"fetch_timeout" json:"fetch_timeout"`
	Static       map[string]float64 `koanf:"static" json:"static"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// AdminSection configures the local administration socket. An empty
// Socket disables it.
type AdminSection struct {
	Socket string `koanf:"socket" json:"socket"`
}
