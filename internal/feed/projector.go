package feed

import (
	"strings"
	"sync"
)

// CategoryAll is the sentinel that disables category filtering.
const CategoryAll = "All"

// IsAllCategory reports whether category disables category filtering. An
// empty selection behaves like the sentinel.
func IsAllCategory(category string) bool {
	trimmed := strings.TrimSpace(category)
	return trimmed == "" || trimmed == CategoryAll || trimmed == "all"
}

// Project returns the records of working that match category and contain
// query (case-insensitively) in any of their search texts. Order is preserved
// and working is never modified.
func Project[T Searchable](working []T, category, query string) []T {
	matchAll := IsAllCategory(category)
	needle := strings.ToLower(strings.TrimSpace(query))

	out := make([]T, 0, len(working))
	for _, record := range working {
		if !matchAll && record.RecordCategory() != category {
			continue
		}
		if needle != "" && !containsText(record.SearchText(), needle) {
			continue
		}
		out = append(out, record)
	}
	return out
}

func containsText(fields []string, needle string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Projector memoizes Project on shallow input equality: the same backing
// slice (pointer, length, capacity), category and query return the previous
// result without recomputing. Callers must treat working sets as immutable
// and replace them on every load, which the fetcher and subscriber do.
type Projector[T Searchable] struct {
	mu       sync.Mutex
	valid    bool
	head     *T
	length   int
	capacity int
	category string
	query    string
	result   []T
}

func (p *Projector[T]) Project(working []T, category, query string) []T {
	var head *T
	if len(working) > 0 {
		head = &working[0]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid && p.head == head && p.length == len(working) && p.capacity == cap(working) &&
		p.category == category && p.query == query {
		return p.result
	}

	p.result = Project(working, category, query)
	p.valid = true
	p.head = head
	p.length = len(working)
	p.capacity = cap(working)
	p.category = category
	p.query = query
	return p.result
}
