package storage

import (
	"context"
	"errors"
	"time"
)

// KV engine errors.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// KVEngine is an embedded key-value store with transactional updates.
//
// Implementations must be safe for concurrent use and durable across
// restarts.
type KVEngine interface {
	// Get returns the value of key or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores value under key. A positive ttl expires the entry.
	Set(ctx context.Context, key, value []byte, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key []byte) error

	// Scan iterates keys with prefix until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Update runs fn in a read-write transaction, committing when fn
	// returns nil.
	Update(ctx context.Context, fn func(tx KVTxn) error) error

	// GC reclaims space and returns an estimate of bytes reclaimed.
	GC(ctx context.Context) (uint64, error)

	// Stats returns storage statistics.
	Stats(ctx context.Context) (*KVStats, error)

	// Close releases the engine.
	Close() error
}

// KVTxn is the view of the store inside Update.
type KVTxn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte, ttl time.Duration) error
	Delete(key []byte) error
	Scan(prefix []byte, fn func(key, value []byte) bool) error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size.
	LSMSize uint64

	// ValueLogSize is the value log size.
	ValueLogSize uint64

	// LastGCTime is the last GC run (Unix milliseconds).
	LastGCTime int64

	// GCBytesReclaimed is the total estimated bytes reclaimed by GC.
	GCBytesReclaimed uint64
}

// KVConfig configures the embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory.
	Dir string

	// InMemory keeps all data in memory (tests). Dir is ignored.
	InMemory bool

	// GCInterval is the interval between automatic value-log GC runs.
	GCInterval time.Duration

	// GCThreshold is the discard ratio that triggers a value-log rewrite.
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64

	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// DefaultKVConfig returns the default KV configuration for dir.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}
