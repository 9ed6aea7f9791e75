package logger

import (
	"log/slog"
	"strings"

	"github.com/yndnr/metalgate/pkg/token"
)

// Values carrying these prefixes are partially masked wherever they appear.
var sensitiveValuePrefixes = []string{
	token.SessionPrefix,
	token.APIKeyPrefix,
}

// Attributes whose key contains one of these are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"api-key",
	"apikey",
	"credential",
	"authorization",
	"bearer",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if IsSensitiveValue(v) {
			return slog.String(a.Key, token.Mask(v))
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactString masks v when it looks like a token or API key.
func RedactString(v string) string {
	if IsSensitiveValue(v) {
		return token.Mask(v)
	}
	return v
}

// IsSensitiveKey reports whether an attribute name suggests a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether v carries a token or API key prefix.
func IsSensitiveValue(v string) bool {
	for _, p := range sensitiveValuePrefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}
