package wal

import (
	"errors"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
)

const (
	// headerSize is length (4) + crc (4).
	headerSize = 8

	// minFrameSize is crc (4) + op (1).
	minFrameSize = 5

	// maxFrameSize bounds a single entry; a larger length is corruption.
	maxFrameSize = 16 << 20
)

var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidOp        = errors.New("wal: invalid op")
)

// Op identifies the logged mutation.
type Op uint8

const (
	OpUnspecified Op = iota
	OpUserCreate
	OpKeyCreate
	OpKeyToggle
	OpKeyDelete
	OpKeyReplace
	OpKeyUsage
	OpTokenSave
	OpTokenDelete
)

var opNames = [...]string{
	OpUnspecified: "unspecified",
	OpUserCreate:  "user.create",
	OpKeyCreate:   "key.create",
	OpKeyToggle:   "key.toggle",
	OpKeyDelete:   "key.delete",
	OpKeyReplace:  "key.replace",
	OpKeyUsage:    "key.usage",
	OpTokenSave:   "token.save",
	OpTokenDelete: "token.delete",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

func (o Op) valid() bool {
	return o > OpUnspecified && o <= OpTokenDelete
}

// Entry is one logged mutation. Which fields are set depends on Op.
type Entry struct {
	Op   Op        `json:"-"`
	Time time.Time `json:"ts"`

	// Owner is the key owner for key operations.
	Owner string `json:"owner,omitempty"`
	// Name is the API key or token hash the operation targets.
	Name string `json:"name,omitempty"`

	User  *domain.User        `json:"user,omitempty"`
	Key   *storage.KeyRecord  `json:"key,omitempty"`
	Keys  []storage.KeyRecord `json:"keys,omitempty"`
	Token *domain.AuthToken   `json:"token,omitempty"`
}

func newEntry(op Op) *Entry {
	return &Entry{Op: op, Time: time.Now().UTC()}
}
