package attrs

// ExtractString returns the string value stored under key in a slog-style
// [key1, value1, key2, value2, ...] slice. Values implementing fmt.Stringer
// are converted. Returns "" when the key is absent.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attrs[i+1].(type) {
		case string:
			return v
		case interface{ String() string }:
			return v.String()
		}
	}
	return ""
}

// ToMap collects the pairs of a slog-style slice into a map, skipping
// non-string keys and the keys listed in omit.
func ToMap(attrs []any, omit ...string) map[string]any {
	skip := make(map[string]struct{}, len(omit))
	for _, k := range omit {
		skip[k] = struct{}{}
	}
	out := make(map[string]any, len(attrs)/2)
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if _, drop := skip[k]; drop {
			continue
		}
		out[k] = attrs[i+1]
	}
	return out
}
