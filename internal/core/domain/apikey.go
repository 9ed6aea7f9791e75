// Package domain defines the core domain models for metalgate.
package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/yndnr/metalgate/pkg/token"
)

// API key constants.
const (
	// APIKeyPrefix is the prefix of server-generated API keys.
	APIKeyPrefix = token.APIKeyPrefix

	// MinAPIKeyLength is the minimum length of a caller-supplied key.
	MinAPIKeyLength = 32

	// MaxAPIKeyLength bounds caller-supplied keys.
	MaxAPIKeyLength = 128
)

// APIKey is an access key for the metals-price API.
//
// Usage fields (UsageCount, LastUsedAt) are written by the server when the
// key is presented on a quote endpoint; clients treat them as read-only.
type APIKey struct {
	// Key is the unique opaque identifier, also the credential itself.
	Key string

	// Owner is the username owning the key. Populated server-side only.
	Owner string

	// IsActive reports whether the key may be used.
	IsActive bool

	// CreatedAt is the creation time.
	CreatedAt time.Time

	// LastUsedAt is the last usage time. Zero means never used.
	LastUsedAt time.Time

	// UsageCount is the number of recorded uses.
	UsageCount int64
}

// apiKeyWire is the JSON shape exchanged with the collaborator API.
// Timestamps are float Unix seconds; last_used of 0 or null means never.
type apiKeyWire struct {
	Key        string   `json:"key"`
	IsActive   bool     `json:"is_active"`
	CreatedAt  float64  `json:"created_at"`
	LastUsed   *float64 `json:"last_used"`
	UsageCount int64    `json:"usage_count"`
}

// MarshalJSON implements json.Marshaler.
func (k APIKey) MarshalJSON() ([]byte, error) {
	w := apiKeyWire{
		Key:        k.Key,
		IsActive:   k.IsActive,
		CreatedAt:  toUnixSeconds(k.CreatedAt),
		UsageCount: k.UsageCount,
	}
	lastUsed := toUnixSeconds(k.LastUsedAt)
	w.LastUsed = &lastUsed
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *APIKey) UnmarshalJSON(data []byte) error {
	var w apiKeyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k.Key = w.Key
	k.IsActive = w.IsActive
	k.CreatedAt = fromUnixSeconds(w.CreatedAt)
	k.LastUsedAt = time.Time{}
	if w.LastUsed != nil {
		k.LastUsedAt = fromUnixSeconds(*w.LastUsed)
	}
	k.UsageCount = w.UsageCount
	return nil
}

// NeverUsed reports whether the key has no recorded usage time.
func (k *APIKey) NeverUsed() bool {
	return k.LastUsedAt.IsZero()
}

// Clone creates a copy of the API key.
func (k *APIKey) Clone() *APIKey {
	clone := *k
	return &clone
}

// NewAPIKey creates an active key owned by owner. When key is empty a
// random key is generated; otherwise it must pass ValidateAPIKey.
func NewAPIKey(owner, key string) (*APIKey, error) {
	if key == "" {
		generated, err := GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		key = generated
	} else if err := ValidateAPIKey(key); err != nil {
		return nil, err
	}

	return &APIKey{
		Key:       key,
		Owner:     owner,
		IsActive:  true,
		CreatedAt: timeNow().UTC(),
	}, nil
}

// GenerateAPIKey returns a new random key (mgk_ + 43 base64url chars).
func GenerateAPIKey() (string, error) {
	key, err := token.Generate(APIKeyPrefix)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return key, nil
}

// ValidateAPIKey checks a caller-supplied key.
func ValidateAPIKey(key string) error {
	if len(key) < MinAPIKeyLength {
		return ErrValidation.WithDetails("API key must be at least 32 characters")
	}
	if len(key) > MaxAPIKeyLength {
		return ErrValidation.WithDetails("API key must be at most 128 characters")
	}
	if strings.ContainsAny(key, "/?#% \t\r\n") {
		return ErrValidation.WithDetails("API key contains invalid characters")
	}
	return nil
}

// UsageStats summarizes the keys of one user.
type UsageStats struct {
	TotalKeys  int64 `json:"total_keys"`
	TotalUsage int64 `json:"total_usage"`
}

// SummarizeUsage aggregates usage counters over keys.
func SummarizeUsage(keys []*APIKey) UsageStats {
	stats := UsageStats{TotalKeys: int64(len(keys))}
	for _, k := range keys {
		stats.TotalUsage += k.UsageCount
	}
	return stats
}

func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}

// timeNow is a hook for testing.
var timeNow = time.Now
