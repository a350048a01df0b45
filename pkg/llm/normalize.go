package llm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Normalize collapses the response shapes seen in the wild into one string:
//
//   - a plain string
//   - an array of string fragments, concatenated in order
//   - an object keyed by integer strings ("0", "1", ...), concatenated in
//     numeric key order
//
// A blank outcome is an error, never an empty success.
func Normalize(v any) (string, error) {
	text, err := flatten(v)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func flatten(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []string:
		return strings.Join(val, ""), nil
	case []any:
		var b strings.Builder
		for _, item := range val {
			part, err := flatten(item)
			if err != nil {
				return "", err
			}
			b.WriteString(part)
		}
		return b.String(), nil
	case map[string]any:
		keys := make([]int, 0, len(val))
		for k := range val {
			n, err := strconv.Atoi(k)
			if err != nil {
				return "", fmt.Errorf("non-integer key %q in fragmented response", k)
			}
			keys = append(keys, n)
		}
		sort.Ints(keys)
		var b strings.Builder
		for _, k := range keys {
			part, err := flatten(val[strconv.Itoa(k)])
			if err != nil {
				return "", err
			}
			b.WriteString(part)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported response shape %T", v)
	}
}
