package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yndnr/metalgate/internal/storage/snapshot"
	"github.com/yndnr/metalgate/pkg/crypto/adaptive"
)

// ErrEncrypted is returned when an encrypted segment is read without a
// passphrase.
var ErrEncrypted = errors.New("wal: segment is encrypted")

// Reader reads entries across segments in order.
type Reader struct {
	passphrase []byte

	segments []segmentInfo
	segIndex int

	file   *os.File
	reader *bufio.Reader
	cipher adaptive.Cipher

	// Ciphers by salt, so each salt is derived once.
	ciphers map[string]adaptive.Cipher

	truncated int
}

// NewReader creates a reader over the segments in dir whose ID is at least
// from. Passphrase is required for encrypted segments.
func NewReader(dir string, from uint64, passphrase []byte) (*Reader, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	i := 0
	for i < len(segs) && segs[i].id < from {
		i++
	}
	return &Reader{
		passphrase: passphrase,
		segments:   segs[i:],
		ciphers:    map[string]adaptive.Cipher{},
	}, nil
}

// Read returns the next entry or io.EOF after the last segment.
//
// A segment whose tail is torn or fails its checksum ends early and reading
// continues with the next segment; Truncated counts such segments.
func (r *Reader) Read() (*Entry, error) {
	for {
		if r.reader == nil {
			if err := r.openNextSegment(); err != nil {
				return nil, err
			}
			if r.reader == nil {
				continue
			}
		}

		e, err := r.readOneEntry()
		switch {
		case err == nil:
			return e, nil
		case errors.Is(err, io.EOF):
			r.closeCurrent()
		case errors.Is(err, io.ErrUnexpectedEOF),
			errors.Is(err, ErrCorruptedEntry),
			errors.Is(err, ErrChecksumMismatch),
			errors.Is(err, ErrInvalidOp):
			r.truncated++
			r.closeCurrent()
		default:
			return nil, err
		}
	}
}

// ReadAll reads every remaining entry.
func (r *Reader) ReadAll() ([]*Entry, error) {
	var out []*Entry
	for {
		e, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, e)
	}
}

// Truncated returns the number of segments that ended in a torn or
// corrupt entry.
func (r *Reader) Truncated() int {
	return r.truncated
}

// Close closes any open segment file.
func (r *Reader) Close() error {
	return r.closeCurrent()
}

// openNextSegment leaves r.reader nil when the segment header is unusable,
// so the caller moves on.
func (r *Reader) openNextSegment() error {
	r.closeCurrent()

	if r.segIndex >= len(r.segments) {
		return io.EOF
	}
	seg := r.segments[r.segIndex]
	r.segIndex++

	f, err := os.Open(seg.path)
	if err != nil {
		return err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	_, dataLen, err := verifyChecksumTrailer(f, stat.Size())
	if err != nil {
		f.Close()
		return err
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))
	hdr, err := readSegmentHeader(br)
	if err != nil {
		f.Close()
		r.truncated++
		return nil
	}

	c, err := r.cipherFor(hdr)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s", err, seg.path)
	}

	r.file = f
	r.reader = br
	r.cipher = c
	return nil
}

func (r *Reader) cipherFor(hdr segmentHeader) (adaptive.Cipher, error) {
	if hdr.Cipher == "" {
		return nil, nil
	}
	if len(r.passphrase) == 0 {
		return nil, ErrEncrypted
	}
	if c, ok := r.ciphers[string(hdr.Salt)]; ok {
		return c, nil
	}
	key := snapshot.DeriveKey(r.passphrase, hdr.Salt)
	defer snapshot.ZeroKey(key)
	c, err := adaptive.NewWithType(key, adaptive.CipherType(hdr.Cipher))
	if err != nil {
		return nil, fmt.Errorf("wal: %w", err)
	}
	r.ciphers[string(hdr.Salt)] = c
	return c, nil
}

func (r *Reader) closeCurrent() error {
	r.reader = nil
	r.cipher = nil
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

func (r *Reader) readOneEntry() (*Entry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.reader, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minFrameSize || length > maxFrameSize {
		return nil, ErrCorruptedEntry
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r.reader, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return decodeEntryFrame(frame, r.cipher)
}
