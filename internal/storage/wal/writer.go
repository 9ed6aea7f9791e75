package wal

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/metalgate/internal/storage/snapshot"
	"github.com/yndnr/metalgate/pkg/crypto/adaptive"
)

// Default configuration values.
const (
	DefaultBatchCount          = 100
	DefaultBatchBytes    int64 = 1 << 20 // 1MB
	DefaultSyncInterval        = time.Second
	DefaultMaxFileSize   int64 = 64 << 20 // 64MB
	DefaultMaxEntryCount       = 100000
)

// SyncMode defines how the log reaches the disk.
type SyncMode string

const (
	// SyncModeSync writes and fsyncs every entry before Append returns.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch buffers entries and writes them every SyncInterval or
	// when a batch fills up.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the writer.
type Config struct {
	Dir string

	SyncMode     SyncMode
	SyncInterval time.Duration

	BatchCount int
	BatchBytes int64

	MaxFileSize   int64
	MaxEntryCount int

	// Passphrase enables encryption when non-empty.
	Passphrase []byte
	Cipher     adaptive.CipherType
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		SyncMode:      SyncModeBatch,
		SyncInterval:  DefaultSyncInterval,
		BatchCount:    DefaultBatchCount,
		BatchBytes:    DefaultBatchBytes,
		MaxFileSize:   DefaultMaxFileSize,
		MaxEntryCount: DefaultMaxEntryCount,
	}
}

// Writer appends entries to segment files.
type Writer struct {
	cfg    Config
	cipher adaptive.Cipher
	header []byte

	mu sync.Mutex

	segmentID uint64
	file      *os.File
	filePath  string

	fileSize       int64 // bytes written excluding trailing checksum
	segmentEntries int
	hash           hash.Hash
	buffer         [][]byte
	bufferBytes    int64
	syncTicker     *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	closed         bool
}

// NewWriter opens a fresh segment after the newest one in cfg.Dir. A
// segment left open by a crash is never appended to.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	applyDefaults(&cfg)

	w := &Writer{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	hdr := segmentHeader{Version: HeaderVersion}
	if len(cfg.Passphrase) > 0 {
		if len(cfg.Passphrase) < snapshot.MinPassphraseLength {
			return nil, snapshot.ErrPassphraseTooWeak
		}
		salt, err := snapshot.NewSalt()
		if err != nil {
			return nil, err
		}
		key := snapshot.DeriveKey(cfg.Passphrase, salt)
		c, err := adaptive.NewWithType(key, cfg.Cipher)
		snapshot.ZeroKey(key)
		if err != nil {
			return nil, fmt.Errorf("wal: %w", err)
		}
		w.cipher = c
		hdr.Cipher = string(c.Type())
		hdr.Salt = salt
	}
	header, err := encodeSegmentHeader(hdr)
	if err != nil {
		return nil, err
	}
	w.header = header

	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	w.segmentID = 1
	if len(segs) > 0 {
		w.segmentID = segs[len(segs)-1].id + 1
	}
	if err := w.openNewSegment(); err != nil {
		return nil, err
	}

	if w.cfg.SyncMode == SyncModeBatch {
		w.startSyncLoop()
	}
	return w, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeBatch
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.BatchCount == 0 {
		cfg.BatchCount = DefaultBatchCount
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxEntryCount == 0 {
		cfg.MaxEntryCount = DefaultMaxEntryCount
	}
	if cfg.Cipher == "" {
		cfg.Cipher = adaptive.CipherAuto
	}
}

// Segment returns the ID of the segment being written.
func (w *Writer) Segment() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segmentID
}

// Encrypted reports whether entries are sealed.
func (w *Writer) Encrypted() bool {
	return w.cipher != nil
}

// Append buffers an entry and flushes depending on the sync mode and batch
// thresholds.
func (w *Writer) Append(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("wal: writer is closed")
	}

	frame, err := encodeEntryFrame(entry, w.cipher)
	if err != nil {
		return err
	}

	w.buffer = append(w.buffer, frame)
	w.bufferBytes += int64(len(frame))

	if w.cfg.SyncMode == SyncModeSync || len(w.buffer) >= w.cfg.BatchCount || w.bufferBytes >= w.cfg.BatchBytes {
		return w.flushLocked()
	}
	return nil
}

// Flush writes buffered entries to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Rotate flushes and finalizes the current segment, opens the next one and
// returns its ID. Entries appended after Rotate land in the new segment.
func (w *Writer) Rotate() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("wal: writer is closed")
	}
	if err := w.finalizeSegmentLocked(); err != nil {
		return 0, err
	}
	w.segmentID++
	if err := w.openNewSegment(); err != nil {
		return 0, err
	}
	return w.segmentID, nil
}

func (w *Writer) flushLocked() error {
	if w.file == nil {
		return fmt.Errorf("wal: file not open")
	}
	if len(w.buffer) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, frame := range w.buffer {
		buf.Write(frame)
	}

	// Rotate before writing if this batch would exceed segment limits.
	if w.segmentEntries > 0 &&
		(w.fileSize+int64(buf.Len()) > w.cfg.MaxFileSize || w.segmentEntries+len(w.buffer) > w.cfg.MaxEntryCount) {
		if err := w.finalizeSegmentWithoutFlushingLocked(); err != nil {
			return err
		}
		w.segmentID++
		if err := w.openNewSegment(); err != nil {
			return err
		}
	}

	if _, err := w.writeLocked(buf.Bytes()); err != nil {
		return fmt.Errorf("wal: write batch: %w", err)
	}

	w.segmentEntries += len(w.buffer)
	w.buffer = nil
	w.bufferBytes = 0

	if w.cfg.SyncMode == SyncModeSync {
		return w.file.Sync()
	}
	return nil
}

func (w *Writer) startSyncLoop() {
	w.syncTicker = time.NewTicker(w.cfg.SyncInterval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.syncTicker.C:
				w.mu.Lock()
				if err := w.flushLocked(); err == nil && w.file != nil {
					_ = w.file.Sync()
				}
				w.mu.Unlock()
			case <-w.stopCh:
				return
			}
		}
	}()
}

func (w *Writer) openNewSegment() error {
	path := filepath.Join(w.cfg.Dir, formatSegmentFilename(w.segmentID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}

	w.file = file
	w.filePath = path
	w.fileSize = 0
	w.segmentEntries = 0
	w.hash = sha256.New()

	if _, err := w.writeLocked(w.header); err != nil {
		file.Close()
		w.file = nil
		return fmt.Errorf("wal: write segment header: %w", err)
	}
	return nil
}

func (w *Writer) writeLocked(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if n > 0 {
		w.hash.Write(p[:n])
		w.fileSize += int64(n)
	}
	return n, err
}

func (w *Writer) finalizeSegmentLocked() error {
	if w.file == nil {
		return nil
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.finalizeSegmentWithoutFlushingLocked()
}

func (w *Writer) finalizeSegmentWithoutFlushingLocked() error {
	if _, err := w.file.Write(w.hash.Sum(nil)); err != nil {
		return fmt.Errorf("wal: write checksum: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	w.file = nil
	return nil
}

// Close flushes pending writes and finalizes the current segment with a
// checksum.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.syncTicker != nil {
		w.syncTicker.Stop()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finalizeSegmentLocked()
}
