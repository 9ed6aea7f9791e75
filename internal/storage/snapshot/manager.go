package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/pkg/crypto/adaptive"
)

var magicBytes = []byte("MGSNAP01")

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"
	checksumSize  = sha256.Size
	headerVersion = 1

	// DefaultRetain is the number of snapshots kept by Prune.
	DefaultRetain = 3
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
)

// State is the complete content of an in-memory backend.
type State struct {
	Users  []domain.User       `json:"users"`
	Keys   []storage.KeyRecord `json:"keys"`
	Tokens []domain.AuthToken  `json:"tokens"`

	// WALSegment is the first log segment not covered by this state. Zero
	// when no log is kept.
	WALSegment uint64 `json:"wal_segment,omitempty"`
}

type header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Users     int       `json:"users"`
	Keys      int       `json:"keys"`
	Tokens    int       `json:"tokens"`
	WAL       uint64    `json:"wal_segment,omitempty"`
	Cipher    string    `json:"cipher,omitempty"`
	Salt      []byte    `json:"salt,omitempty"`
}

// Config configures the snapshot manager.
type Config struct {
	Dir    string
	Retain int

	// Passphrase enables encryption when non-empty.
	Passphrase []byte
	Cipher     adaptive.CipherType
}

// Manager writes and reads snapshots in one directory.
type Manager struct {
	cfg Config

	// Key material for Save, derived once.
	salt   []byte
	key    []byte
	cipher adaptive.Cipher
}

// NewManager creates the directory and, when a passphrase is set, derives
// the write key.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("snapshot: dir is required")
	}
	if cfg.Retain <= 0 {
		cfg.Retain = DefaultRetain
	}
	if cfg.Cipher == "" {
		cfg.Cipher = adaptive.CipherAuto
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	m := &Manager{cfg: cfg}
	if len(cfg.Passphrase) == 0 {
		return m, nil
	}
	if len(cfg.Passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}

	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	key := DeriveKey(cfg.Passphrase, salt)
	c, err := adaptive.NewWithType(key, cfg.Cipher)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	m.salt, m.key, m.cipher = salt, key, c
	return m, nil
}

// Encrypted reports whether Save seals snapshots.
func (m *Manager) Encrypted() bool {
	return m.cipher != nil
}

// Info describes a snapshot file.
type Info struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Users     int       `json:"users"`
	Keys      int       `json:"keys"`
	Tokens    int       `json:"tokens"`
	Encrypted bool      `json:"encrypted"`
	Checksum  string    `json:"checksum"`

	WALSegment uint64 `json:"wal_segment,omitempty"`
}

// Save writes st as a new snapshot.
func (m *Manager) Save(st *State) (*Info, error) {
	now := time.Now().UTC()
	id := filePrefix + strings.ToLower(ulid.Make().String())

	hdr := header{
		Version:   headerVersion,
		CreatedAt: now,
		Users:     len(st.Users),
		Keys:      len(st.Keys),
		Tokens:    len(st.Tokens),
		WAL:       st.WALSegment,
	}
	if m.cipher != nil {
		hdr.Cipher = string(m.cipher.Type())
		hdr.Salt = m.salt
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal state: %w", err)
	}
	if m.cipher != nil {
		if data, err = m.cipher.Encrypt(data, hdrJSON); err != nil {
			return nil, fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(magicBytes) + 8 + len(hdrJSON) + len(data) + checksumSize)
	buf.Write(magicBytes)
	writeBlock(&buf, hdrJSON)
	writeBlock(&buf, data)
	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := writeFileAtomic(finalPath, buf.Bytes()); err != nil {
		return nil, err
	}

	return &Info{
		ID:        id,
		Path:      finalPath,
		Size:      int64(buf.Len()),
		CreatedAt: now,
		Users:     hdr.Users,
		Keys:      hdr.Keys,
		Tokens:    hdr.Tokens,
		Encrypted: m.cipher != nil,
		Checksum:  hex.EncodeToString(sum[:]),

		WALSegment: hdr.WAL,
	}, nil
}

func writeBlock(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load reads the newest snapshot, falling back to older ones when a file
// is corrupt. Decryption problems are returned as is.
func (m *Manager) Load() (*State, *Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	for i := len(infos) - 1; i >= 0; i-- {
		st, info, err := m.loadFile(infos[i].Path)
		if err == nil {
			return st, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			continue
		}
		return nil, nil, err
	}
	return nil, nil, ErrNoSnapshots
}

func (m *Manager) loadFile(path string) (*State, *Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < len(magicBytes)+8+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	body, trailer := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(bytes.NewReader(body))
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(br)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}

	data, err := readBlock(br)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read data: %w", err)
	}

	switch {
	case hdr.Cipher != "":
		if len(m.cfg.Passphrase) == 0 {
			return nil, nil, ErrEncrypted
		}
		if data, err = m.open(hdr, hdrJSON, data); err != nil {
			return nil, nil, err
		}
	case m.cipher != nil:
		return nil, nil, ErrNotEncrypted
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal state: %w", err)
	}

	return &st, &Info{
		ID:        strings.TrimSuffix(filepath.Base(path), fileExtension),
		Path:      path,
		Size:      int64(len(raw)),
		CreatedAt: hdr.CreatedAt,
		Users:     hdr.Users,
		Keys:      hdr.Keys,
		Tokens:    hdr.Tokens,
		Encrypted: hdr.Cipher != "",
		Checksum:  hex.EncodeToString(trailer),

		WALSegment: hdr.WAL,
	}, nil
}

// open decrypts data, reusing the write key when the salt matches.
func (m *Manager) open(hdr header, hdrJSON, data []byte) ([]byte, error) {
	c := m.cipher
	if c == nil || !bytes.Equal(hdr.Salt, m.salt) || string(c.Type()) != hdr.Cipher {
		key := DeriveKey(m.cfg.Passphrase, hdr.Salt)
		defer ZeroKey(key)
		var err error
		if c, err = adaptive.NewWithType(key, adaptive.CipherType(hdr.Cipher)); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
	}
	plain, err := c.Decrypt(data, hdrJSON)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	b := make([]byte, binary.BigEndian.Uint32(n[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns snapshot files oldest first, with path, ID and size only.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []*Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:   strings.TrimSuffix(name, fileExtension),
			Path: filepath.Join(m.cfg.Dir, name),
			Size: fi.Size(),
		})
	}
	// ULIDs sort by creation time.
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Prune deletes all but the newest Retain snapshots.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	var removed int
	for i := 0; i < len(infos)-m.cfg.Retain; i++ {
		if err := os.Remove(infos[i].Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("snapshot: prune: %w", err)
		}
		removed++
	}
	return removed, nil
}

// OldestWALSegment returns the log segment recorded by the oldest snapshot
// on disk, the first segment that any fallback restore may need. Unreadable
// files are ignored. It returns 0 when no snapshot records a segment.
func (m *Manager) OldestWALSegment() (uint64, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	for _, info := range infos {
		hdr, err := readHeader(info.Path)
		if err != nil {
			continue
		}
		return hdr.WAL, nil
	}
	return 0, nil
}

// readHeader reads the plaintext header without verifying the checksum.
func readHeader(path string) (header, error) {
	var hdr header
	f, err := os.Open(path)
	if err != nil {
		return hdr, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return hdr, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return hdr, ErrInvalidMagic
	}
	hdrJSON, err := readBlock(br)
	if err != nil {
		return hdr, err
	}
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return hdr, err
	}
	return hdr, nil
}

// Close wipes the derived key.
func (m *Manager) Close() {
	ZeroKey(m.key)
}
