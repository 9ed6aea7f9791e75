package wal

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File format constants.
const (
	FilePrefix      = "wal-"
	FileExtension   = ".log"
	MagicBytes      = "MGWAL\x00\x00\x01"
	MagicBytesSize  = 8
	ChecksumSize    = sha256.Size
	HeaderVersion   = 1
	DefaultFilePerm = 0o600
	DefaultDirPerm  = 0o700
)

var (
	errInvalidMagic  = errors.New("wal: invalid magic bytes")
	errInvalidHeader = errors.New("wal: invalid segment header")
)

// segmentHeader follows the magic bytes of every segment.
type segmentHeader struct {
	Version int    `json:"version"`
	Cipher  string `json:"cipher,omitempty"`
	Salt    []byte `json:"salt,omitempty"`
}

type segmentInfo struct {
	id   uint64
	path string
}

func formatSegmentFilename(segmentID uint64) string {
	return fmt.Sprintf("%s%08d%s", FilePrefix, segmentID, FileExtension)
}

func parseSegmentFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExtension) {
		return 0, false
	}
	var id uint64
	_, err := fmt.Sscanf(name, FilePrefix+"%d"+FileExtension, &id)
	return id, err == nil
}

// listSegments returns the segments in dir, oldest first. A missing
// directory has no segments.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		segs = append(segs, segmentInfo{id: id, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

func encodeSegmentHeader(h segmentHeader) ([]byte, error) {
	js, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal segment header: %w", err)
	}
	out := make([]byte, 0, MagicBytesSize+2+len(js))
	out = append(out, MagicBytes...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(js)))
	return append(out, js...), nil
}

func readSegmentHeader(r io.Reader) (segmentHeader, error) {
	var h segmentHeader

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(r, magic); err != nil {
		return h, errInvalidMagic
	}
	if string(magic) != MagicBytes {
		return h, errInvalidMagic
	}

	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return h, errInvalidHeader
	}
	js := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, js); err != nil {
		return h, errInvalidHeader
	}
	if err := json.Unmarshal(js, &h); err != nil || h.Version != HeaderVersion {
		return h, errInvalidHeader
	}
	return h, nil
}

// verifyChecksumTrailer reports whether f ends with a valid SHA-256 of the
// bytes before it and returns the length of those bytes. An active or
// crashed segment has no trailer and its whole size is data.
func verifyChecksumTrailer(f *os.File, size int64) (closed bool, dataLen int64, err error) {
	if size < MagicBytesSize+ChecksumSize {
		return false, size, nil
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, size-ChecksumSize, ChecksumSize), trailer); err != nil {
		return false, 0, fmt.Errorf("wal: read checksum trailer: %w", err)
	}

	h := sha256.New()
	dataLen = size - ChecksumSize
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return false, 0, fmt.Errorf("wal: hash: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return false, size, nil
	}
	return true, dataLen, nil
}
