package storage

import (
	"encoding/json"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// KeyRecord is the persisted form of an API key. Unlike the wire format it
// keeps the owner and full timestamp precision.
type KeyRecord struct {
	Key        string    `json:"key"`
	Owner      string    `json:"owner"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	UsageCount int64     `json:"usage_count"`
}

// NewKeyRecord converts a domain key.
func NewKeyRecord(k *domain.APIKey) KeyRecord {
	return KeyRecord{
		Key:        k.Key,
		Owner:      k.Owner,
		IsActive:   k.IsActive,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
		UsageCount: k.UsageCount,
	}
}

// APIKey converts back to the domain type.
func (r KeyRecord) APIKey() *domain.APIKey {
	return &domain.APIKey{
		Key:        r.Key,
		Owner:      r.Owner,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
		UsageCount: r.UsageCount,
	}
}

// EncodeKey serializes a key for KV backends.
func EncodeKey(k *domain.APIKey) ([]byte, error) {
	return json.Marshal(NewKeyRecord(k))
}

// DecodeKey deserializes a key written by EncodeKey.
func DecodeKey(data []byte) (*domain.APIKey, error) {
	var r KeyRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return r.APIKey(), nil
}
