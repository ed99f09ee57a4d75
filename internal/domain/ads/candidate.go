package ads

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawCandidate is a loosely typed ad candidate pulled from an unstable
// upstream payload (scrape extraction, API JSON, upload row, webhook push).
// Keys follow the upstream's own naming; the normalizer resolves canonical
// fields through ordered key chains rather than a fixed schema.
type RawCandidate map[string]any

// String returns the first non-empty string value among keys, coercing
// numbers and booleans along the way. Upstream payloads switch between
// strings and numbers for the same field across versions.
func (c RawCandidate) String(keys ...string) string {
	for _, key := range keys {
		if s := coerceString(c[key]); s != "" {
			return s
		}
	}
	return ""
}

// Int returns the first value among keys coercible to an int, or 0.
func (c RawCandidate) Int(keys ...string) int {
	for _, key := range keys {
		switch v := c[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

// Bool returns the value under key as a bool and whether it was present in
// a recognizable form. Accepts JSON booleans and "true"/"false" strings.
func (c RawCandidate) Bool(key string) (bool, bool) {
	switch v := c[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

// Strings returns the value under key as a string slice. Accepts an actual
// slice, a JSON []any, or a single comma-separated string.
func (c RawCandidate) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return nil
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		// JSON numbers arrive as float64; ids are integral.
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	}
	return ""
}
