// Package utils has helpers for reading loosely typed JSON objects such as JWT claims.
package utils

// String returns m[key] when it holds a string.
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Object returns m[key] when it holds a nested JSON object.
func Object(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	return obj
}

// Strings returns the string elements of the array at m[key]. Other element types are skipped.
func Strings(m map[string]any, key string) []string {
	values, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
