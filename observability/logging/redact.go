package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces values of keys that are neither allowlisted nor
// identities.
const RedactedValue = "[REDACTED]"

// identityTail is the number of trailing address characters kept when an
// identity is masked.
const identityTail = 6

// Keys emitted verbatim: service metadata plus the call and node attributes the
// daemon logs.
var redactionAllowlist = map[string]struct{}{
	"service":            {},
	"env":                {},
	"message":            {},
	"severity":           {},
	"timestamp":          {},
	"error":              {},
	"component":          {},
	"op":                 {},
	"outcome":            {},
	"method":             {},
	"code":               {},
	"hash":               {},
	"events":             {},
	"chainid":            {},
	"network":            {},
	"rpc":                {},
	"token":              {},
	"paused":             {},
	"accounts":           {},
	"allocations":        {},
	"minimumstakeperiod": {},
}

// Keys holding bech32 identities. Their values keep the prefix and tail so
// lines about the same staker can be correlated.
var identityKeys = map[string]struct{}{
	"addr":    {},
	"account": {},
	"owner":   {},
	"from":    {},
	"to":      {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key is logged without masking.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// RedactionAllowlist returns the allowlisted keys, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns RedactedValue for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskIdentity shortens a bech32 address to its prefix and last characters,
// e.g. "lsd1…k3x9qa". Values that are not addresses are fully redacted.
func MaskIdentity(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	sep := strings.LastIndexByte(trimmed, '1')
	if sep <= 0 || len(trimmed)-sep-1 <= identityTail {
		return RedactedValue
	}
	return trimmed[:sep+1] + "…" + trimmed[len(trimmed)-identityTail:]
}

// MaskField builds a slog attribute for key, masking the value unless the key
// is allowlisted.
func MaskField(key, value string) slog.Attr {
	normalized := normalizeKey(key)
	if strings.TrimSpace(value) == "" || IsAllowlisted(normalized) {
		return slog.String(key, value)
	}
	if _, ok := identityKeys[normalized]; ok {
		return slog.String(key, MaskIdentity(value))
	}
	return slog.String(key, RedactedValue)
}
