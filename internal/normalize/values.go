package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// lookup resolves a dotted path inside nested maps.
func lookup(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}
	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		value, exists := m[part]
		if !exists || value == nil {
			return nil, false
		}
		current = value
	}
	return current, true
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = item
		}
		return out, true
	default:
		return nil, false
	}
}

// asString accepts scalars only; empty strings count as absent.
func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed != ""
	case json.Number:
		return v.String(), v != ""
	case fmt.Stringer:
		trimmed := strings.TrimSpace(v.String())
		return trimmed, trimmed != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case float32:
		return int(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
		f, err := v.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(f), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

// asStrings converts a sequence into strings, skipping empty or non scalar items.
func asStrings(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if text, ok := asString(item); ok {
				out = append(out, text)
				continue
			}
			if m, ok := asMap(item); ok {
				if text, ok := firstString(m, "text", "title", "name"); ok {
					out = append(out, text)
				}
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// asTime understands native times, RFC3339 strings, unix millis and
// {seconds, nanos} maps left behind by exported timestamps.
func asTime(value any) (*time.Time, bool) {
	var parsed time.Time
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return nil, false
		}
		parsed = v
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, false
		}
		parsed = *v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, false
		}
		t, err := time.Parse(time.RFC3339Nano, trimmed)
		if err != nil {
			return nil, false
		}
		parsed = t
	case float64, int64, int, json.Number:
		millis, _ := asInt(v)
		if millis <= 0 {
			return nil, false
		}
		parsed = time.UnixMilli(int64(millis))
	case map[string]any:
		seconds, ok := asInt(firstPresent(v, "seconds", "_seconds"))
		if !ok {
			return nil, false
		}
		nanos, _ := asInt(firstPresent(v, "nanoseconds", "_nanoseconds", "nanos"))
		parsed = time.Unix(int64(seconds), int64(nanos))
	default:
		return nil, false
	}
	utc := parsed.UTC()
	return &utc, true
}

func firstPresent(data map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := data[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func firstString(data map[string]any, paths ...string) (string, bool) {
	for _, path := range paths {
		if value, ok := lookup(data, path); ok {
			if text, ok := asString(value); ok {
				return text, true
			}
		}
	}
	return "", false
}
