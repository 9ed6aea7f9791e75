package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/yndnr/metalgate/pkg/crypto/adaptive"
)

func encodeEntryFrame(e *Entry, cipher adaptive.Cipher) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: entry is nil")
	}
	if !e.Op.valid() {
		return nil, ErrInvalidOp
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal entry: %w", err)
	}
	op := []byte{byte(e.Op)}
	if cipher != nil {
		if payload, err = cipher.Encrypt(payload, op); err != nil {
			return nil, fmt.Errorf("wal: encrypt entry: %w", err)
		}
	}

	length := uint32(minFrameSize + len(payload))
	out := make([]byte, headerSize, headerSize+1+len(payload))
	binary.BigEndian.PutUint32(out[0:4], length)
	out = append(out, op...)
	out = append(out, payload...)
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(out[headerSize:]))
	return out, nil
}

// decodeEntryFrame decodes [crc32:4][op:1][payload...].
func decodeEntryFrame(frame []byte, cipher adaptive.Cipher) (*Entry, error) {
	if len(frame) < minFrameSize {
		return nil, ErrCorruptedEntry
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	if crc32.ChecksumIEEE(frame[4:]) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	op := Op(frame[4])
	if !op.valid() {
		return nil, ErrInvalidOp
	}

	payload := frame[5:]
	if cipher != nil {
		plain, err := cipher.Decrypt(payload, frame[4:5])
		if err != nil {
			return nil, fmt.Errorf("wal: decrypt %s entry: %w", op, err)
		}
		payload = plain
	}

	e := &Entry{}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("wal: unmarshal %s entry: %w", op, err)
	}
	e.Op = op
	return e, nil
}
