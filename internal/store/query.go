package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// Apply evaluates q against documents of q.Collection. Like the hosted
// backends, documents lacking the order-by field are excluded from ordered
// queries.
func Apply(q Query, docs []models.Document) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if Matches(q, doc.Data) {
			out = append(out, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			left, _ := fieldValue(out[i].Data, q.OrderBy)
			right, _ := fieldValue(out[j].Data, q.OrderBy)
			cmp := compareValues(left, right)
			if q.Direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Matches reports whether data satisfies every filter of q.
func Matches(q Query, data map[string]any) bool {
	for _, filter := range q.Where {
		value, ok := fieldValue(data, filter.Field)
		if !ok || compareValues(value, filter.Value) != 0 {
			return false
		}
	}

	if q.ArrayContains != nil {
		value, ok := fieldValue(data, q.ArrayContains.Field)
		if !ok || !containsValue(value, q.ArrayContains.Value) {
			return false
		}
	}

	if q.OrderBy != "" {
		if _, ok := fieldValue(data, q.OrderBy); !ok {
			return false
		}
	}
	return true
}

func fieldValue(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
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

func containsValue(list any, target any) bool {
	switch items := list.(type) {
	case []any:
		for _, item := range items {
			if compareValues(item, target) == 0 {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if compareValues(item, target) == 0 {
				return true
			}
		}
	}
	return false
}

// compareValues orders numbers numerically, times chronologically (including
// RFC3339 strings produced by JSON round trips) and everything else as text.
func compareValues(left, right any) int {
	if lt, ok := toTime(left); ok {
		if rt, ok := toTime(right); ok {
			return lt.Compare(rt)
		}
	}
	if ln, ok := toFloat(left); ok {
		if rn, ok := toFloat(right); ok {
			switch {
			case ln < rn:
				return -1
			case ln > rn:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(toText(left), toText(right))
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		if len(v) < len("2006-01-02T15:04:05Z") {
			return time.Time{}, false
		}
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return ""
	}
}

// setPath writes value at a dotted path, creating intermediate maps.
func setPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
