package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveFragments mark attribute keys whose values never reach a sink.
// Matching is case-insensitive on substrings so "hmacSecret" and
// "webhook_secret_env" are both caught.
var sensitiveFragments = []string{"secret", "passphrase", "password", "token", "authorization", "privatekey"}

// plainKeys are emitted verbatim by MaskField.
var plainKeys = map[string]struct{}{
	"component": {},
	"op":        {},
	"account":   {},
	"type":      {},
	"error":     {},
}

// Sensitive reports whether values logged under key are redacted by Setup.
func Sensitive(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(key, "_", ""))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns an attribute whose value is redacted unless key is one of
// the plain vault keys. Empty values pass through so a missing secret is
// visible as such.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || attr.Value.String() == "" || attr.Value.String() == RedactedValue {
		return attr
	}
	if Sensitive(attr.Key) {
		return slog.String(attr.Key, RedactedValue)
	}
	return attr
}
