package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential values in log output.
const RedactedValue = "[REDACTED]"

// Key fragments that mark an attribute as a credential: RPC bearer tokens,
// JWT secrets and keystore passphrases.
var sensitiveFragments = []string{"token", "secret", "passphrase", "password", "privatekey", "private_key", "authorization"}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField logs value under key, masking it when key names a credential.
// Empty values are kept so operators can see a credential is unset.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr masks non-empty string credentials that reach the handler
// without going through MaskField.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || attr.Value.String() == RedactedValue {
		return attr
	}
	return MaskField(attr.Key, attr.Value.String())
}
