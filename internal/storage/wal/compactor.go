package wal

import (
	"errors"
	"fmt"
	"os"
)

// DefaultRetainCount is the minimum number of segments left by Compact.
const DefaultRetainCount = 1

// Compactor removes segments that snapshots already cover.
type Compactor struct {
	walDir      string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the minimum number of segments to keep.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a compactor for walDir.
func NewCompactor(walDir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		walDir:      walDir,
		retainCount: DefaultRetainCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact removes segments older than segment, always leaving at least
// the retain count. It returns the number of files removed.
func (c *Compactor) Compact(segment uint64) (int, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}

	var toDelete []segmentInfo
	for _, s := range segs {
		if s.id < segment {
			toDelete = append(toDelete, s)
		}
	}
	if keep := len(segs) - len(toDelete); keep < c.retainCount {
		extra := min(c.retainCount-keep, len(toDelete))
		toDelete = toDelete[:len(toDelete)-extra]
	}

	return c.remove(toDelete)
}

// TotalSize returns the total size of all segments in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range segs {
		if fi, err := os.Stat(s.path); err == nil {
			total += fi.Size()
		}
	}
	return total, nil
}

// FileCount returns the number of segments.
func (c *Compactor) FileCount() (int, error) {
	segs, err := listSegments(c.walDir)
	return len(segs), err
}

// CleanAll removes every segment.
func (c *Compactor) CleanAll() (int, error) {
	segs, err := listSegments(c.walDir)
	if err != nil {
		return 0, err
	}
	return c.remove(segs)
}

func (c *Compactor) remove(segs []segmentInfo) (int, error) {
	var (
		removed int
		errs    []error
	)
	for _, s := range segs {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", s.path, err))
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("wal: failed to delete %d files: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}
