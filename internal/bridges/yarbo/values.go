package yarbo

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Helpers for the untyped JSON values the robot sends.

// asObject returns v as a JSON object.
func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// toFloat converts a JSON number to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt converts an integral JSON number to int.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// truthy follows the robot's convention of 0/1 flags.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s != "" && s != "0" && s != "false"
	default:
		f, ok := toFloat(v)
		return ok && f != 0
	}
}

// formatCode renders a state code for "unknown_<code>" names.
func formatCode(v any) string {
	if n, ok := toInt(v); ok {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%v", v)
}

// cloneValue deep-copies maps and slices decoded from JSON.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// cloneMap deep-copies a JSON object. A nil map stays nil.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// mergeObject merges src into dst one level deep: object values are merged
// key by key, anything else overwrites.
func mergeObject(dst, src map[string]any) {
	for k, v := range src {
		if obj, ok := v.(map[string]any); ok {
			existing, ok := dst[k].(map[string]any)
			if !ok {
				existing = make(map[string]any, len(obj))
				dst[k] = existing
			}
			for ik, iv := range obj {
				existing[ik] = cloneValue(iv)
			}
			continue
		}
		dst[k] = cloneValue(v)
	}
}
