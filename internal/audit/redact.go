package audit

import (
	"encoding/json"
	"strings"
)

// RedactedMarker replaces the value of every sensitive field.
const RedactedMarker = "[REDACTED]"

var sensitiveSubstrings = []string{"password", "token", "secret", "key", "auth"}

// Secret marks a typed payload field as sensitive. It always serializes as
// RedactedMarker, whatever the field is called.
type Secret string

func (Secret) String() string { return RedactedMarker }

func (Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedMarker)
}

func (Secret) MarshalText() ([]byte, error) {
	return []byte(RedactedMarker), nil
}

// IsSensitiveKey reports whether a field name contains one of the sensitive
// substrings, case-insensitively.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redact walks a decoded JSON value and returns a copy with sensitive fields
// replaced. Slices keep their length and order. redact(redact(v)) == redact(v).
func redact(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = redact(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = redact(inner)
		}
		return out
	case Secret:
		return RedactedMarker
	default:
		return v
	}
}

// RedactDetails normalises an arbitrary details payload into a JSON object
// and redacts it. The payload goes through encoding/json first, so nested
// structs are walked like maps and Secret fields are masked by their own
// marshaller. Payloads that are not objects are wrapped under "value".
func RedactDetails(details any) map[string]any {
	if details == nil {
		return nil
	}

	data, err := json.Marshal(details)
	if err != nil {
		return map[string]any{"value": RedactedMarker, "error": "unserializable details"}
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return map[string]any{"value": RedactedMarker, "error": "unserializable details"}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		obj = map[string]any{"value": decoded}
	}
	return redact(obj).(map[string]any)
}
