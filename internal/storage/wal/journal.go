package wal

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
)

// Journal logs every successful mutation of the wrapped backend. Reads go
// straight to the backend.
//
// Mutations are serialized so the log order matches the order they were
// applied in.
type Journal struct {
	storage.Backend

	w  *Writer
	mu sync.Mutex
}

// NewJournal wraps target. Closing the journal closes w and target.
func NewJournal(target storage.Backend, w *Writer) *Journal {
	return &Journal{Backend: target, w: w}
}

// Checkpoint rotates the log and runs fn with mutations blocked. fn
// receives the new segment ID; state captured inside fn plus the log from
// that segment on is the complete state.
func (j *Journal) Checkpoint(fn func(segment uint64) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	seg, err := j.w.Rotate()
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return fn(seg)
}

// Close finalizes the log and closes the backend.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.w.Close(), j.Backend.Close())
}

func (j *Journal) append(e *Entry) error {
	if err := j.w.Append(e); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

func (j *Journal) CreateUser(ctx context.Context, u *domain.User) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.Backend.CreateUser(ctx, u); err != nil {
		return err
	}
	e := newEntry(OpUserCreate)
	e.User = u
	return j.append(e)
}

func (j *Journal) Create(ctx context.Context, k *domain.APIKey) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.Backend.Create(ctx, k); err != nil {
		return err
	}
	e := newEntry(OpKeyCreate)
	rec := storage.NewKeyRecord(k)
	e.Key = &rec
	return j.append(e)
}

func (j *Journal) Toggle(ctx context.Context, owner, key string) (*domain.APIKey, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	k, err := j.Backend.Toggle(ctx, owner, key)
	if err != nil {
		return nil, err
	}
	e := newEntry(OpKeyToggle)
	e.Owner, e.Name = owner, key
	if err := j.append(e); err != nil {
		return nil, err
	}
	return k, nil
}

func (j *Journal) Delete(ctx context.Context, owner, key string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.Backend.Delete(ctx, owner, key); err != nil {
		return err
	}
	e := newEntry(OpKeyDelete)
	e.Owner, e.Name = owner, key
	return j.append(e)
}

func (j *Journal) ReplaceAll(ctx context.Context, owner string, keys []*domain.APIKey) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.Backend.ReplaceAll(ctx, owner, keys); err != nil {
		return err
	}
	e := newEntry(OpKeyReplace)
	e.Owner = owner
	e.Keys = make([]storage.KeyRecord, 0, len(keys))
	for _, k := range keys {
		e.Keys = append(e.Keys, storage.NewKeyRecord(k))
	}
	return j.append(e)
}

func (j *Journal) RecordUsage(ctx context.Context, key string, at time.Time) (*domain.APIKey, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	k, err := j.Backend.RecordUsage(ctx, key, at)
	if err != nil {
		return nil, err
	}
	e := &Entry{Op: OpKeyUsage, Time: at.UTC(), Name: key}
	if err := j.append(e); err != nil {
		return nil, err
	}
	return k, nil
}

func (j *Journal) SaveToken(ctx context.Context, t *domain.AuthToken) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.Backend.SaveToken(ctx, t); err != nil {
		return err
	}
	e := newEntry(OpTokenSave)
	e.Token = t
	return j.append(e)
}

func (j *Journal) DeleteToken(ctx context.Context, hash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.Backend.DeleteToken(ctx, hash); err != nil {
		return err
	}
	e := newEntry(OpTokenDelete)
	e.Name = hash
	return j.append(e)
}

var _ storage.Backend = (*Journal)(nil)

// ReplayStats summarizes a replay.
type ReplayStats struct {
	Applied   int
	Skipped   int
	Truncated int
}

// Replay applies every entry from r to target. Entries that no longer
// apply, such as a create for a user that already exists or a token that
// has since expired, are skipped.
func Replay(ctx context.Context, r *Reader, target storage.Backend, now time.Time) (ReplayStats, error) {
	var stats ReplayStats
	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			stats.Truncated = r.Truncated()
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		applied, err := apply(ctx, e, target, now)
		if err != nil {
			return stats, err
		}
		if applied {
			stats.Applied++
		} else {
			stats.Skipped++
		}
	}
}

func apply(ctx context.Context, e *Entry, target storage.Backend, now time.Time) (bool, error) {
	var err error
	switch e.Op {
	case OpUserCreate:
		if e.User == nil {
			return false, ErrCorruptedEntry
		}
		err = target.CreateUser(ctx, e.User)
	case OpKeyCreate:
		if e.Key == nil {
			return false, ErrCorruptedEntry
		}
		err = target.Create(ctx, e.Key.APIKey())
	case OpKeyToggle:
		_, err = target.Toggle(ctx, e.Owner, e.Name)
	case OpKeyDelete:
		err = target.Delete(ctx, e.Owner, e.Name)
	case OpKeyReplace:
		keys := make([]*domain.APIKey, 0, len(e.Keys))
		for _, r := range e.Keys {
			keys = append(keys, r.APIKey())
		}
		err = target.ReplaceAll(ctx, e.Owner, keys)
	case OpKeyUsage:
		_, err = target.RecordUsage(ctx, e.Name, e.Time)
	case OpTokenSave:
		if e.Token == nil {
			return false, ErrCorruptedEntry
		}
		if e.Token.IsExpired(now) {
			return false, nil
		}
		err = target.SaveToken(ctx, e.Token)
	case OpTokenDelete:
		err = target.DeleteToken(ctx, e.Name)
	default:
		return false, ErrInvalidOp
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrAPIKeyConflict),
		errors.Is(err, domain.ErrAPIKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}
