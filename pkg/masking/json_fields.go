package masking

import (
	"encoding/json"
	"strings"
)

// MaskedFieldValue replaces the value of a sensitive JSON field.
const MaskedFieldValue = "[MASKED]"

// sensitiveKeys are matched case-insensitively after stripping '-' and '_'.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"clientsecret":  true,
	"token":         true,
	"accesstoken":   true,
	"refreshtoken":  true,
	"idtoken":       true,
	"apikey":        true,
	"authorization": true,
	"cookie":        true,
	"setcookie":     true,
	"privatekey":    true,
	"sessionid":     true,
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	k = strings.NewReplacer("-", "", "_", "").Replace(k)
	return sensitiveKeys[k]
}

// JSONLogFieldMasker redacts the values of sensitive keys in structured log
// output. It handles a single JSON document as well as JSON-lines, where
// each line is masked independently and non-JSON lines pass through.
type JSONLogFieldMasker struct{}

// Name returns the masker identifier.
func (m *JSONLogFieldMasker) Name() string { return "json_log_fields" }

// AppliesTo reports whether data looks like it carries JSON objects.
func (m *JSONLogFieldMasker) AppliesTo(data string) bool {
	return strings.Contains(data, "{") && strings.Contains(data, `":`)
}

// Mask redacts sensitive fields, preserving everything it cannot parse.
func (m *JSONLogFieldMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return data
	}

	// Whole payload is one document (possibly pretty-printed).
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if masked, ok := maskJSONDocument(trimmed); ok {
			return masked
		}
	}

	lines := strings.Split(data, "\n")
	changed := false
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if !strings.HasPrefix(t, "{") {
			continue
		}
		if masked, ok := maskJSONDocument(t); ok {
			lines[i] = masked
			changed = true
		}
	}
	if !changed {
		return data
	}
	return strings.Join(lines, "\n")
}

// maskJSONDocument returns the re-encoded document and true if any field was
// redacted. Untouched documents are reported as unchanged so the caller keeps
// the original bytes.
func maskJSONDocument(doc string) (string, bool) {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return doc, false
	}
	if !maskValue(v) {
		return doc, false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return doc, false
	}
	return string(out), true
}

func maskValue(v any) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if isSensitiveKey(k) {
				if _, isObj := child.(map[string]any); !isObj {
					t[k] = MaskedFieldValue
					changed = true
					continue
				}
			}
			if maskValue(child) {
				changed = true
			}
		}
	case []any:
		for _, child := range t {
			if maskValue(child) {
				changed = true
			}
		}
	}
	return changed
}
