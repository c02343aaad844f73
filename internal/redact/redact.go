// Package redact strips credential material from structured snapshots before
// they are persisted in the audit trail or returned to a client.
package redact

import (
	"encoding/json"
	"strings"
)

// sensitive holds normalized field names (lower case, no separators).
// password_hash, passwordHash and PasswordHash all normalize to "passwordhash".
var sensitive = map[string]struct{}{
	"password":        {},
	"passwordhash":    {},
	"confirmpassword": {},
	"token":           {},
	"accesstoken":     {},
	"refreshtoken":    {},
}

// IsSensitive reports whether a field name denotes credential material.
func IsSensitive(field string) bool {
	_, ok := sensitive[normalize(field)]
	return ok
}

// Map converts v to its JSON object form and removes every sensitive field at
// any depth. Values that are nil or do not encode to a JSON object yield nil:
// an opaque snapshot is dropped, never kept unredacted.
func Map(v any) map[string]any {
	if v == nil {
		return nil
	}

	var obj map[string]any
	switch t := v.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(t, &obj); err != nil {
			return nil
		}
	case []byte:
		if err := json.Unmarshal(t, &obj); err != nil {
			return nil
		}
	default:
		// Round-trip even for maps so nested structs are flattened before scrubbing.
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
	}
	if obj == nil {
		return nil
	}
	return scrubObject(obj)
}

func scrubObject(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsSensitive(k) {
			continue
		}
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return scrubObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = scrubValue(e)
		}
		return out
	default:
		return v
	}
}

func normalize(field string) string {
	var b strings.Builder
	b.Grow(len(field))
	for _, r := range strings.ToLower(field) {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
