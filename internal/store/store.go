// Package store abstracts the hosted document database behind the operations
// the feed views depend on: ordered and filtered queries, standing
// subscriptions, document writes and atomic counter/array updates.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Filter is an equality constraint on a (possibly dotted) field path.
type Filter struct {
	Field string
	Value any
}

// Query selects documents of one collection.
type Query struct {
	Collection    string
	Where         []Filter
	ArrayContains *Filter
	OrderBy       string
	Direction     Direction
	Limit         int
}

// Key renders the query deterministically, for cache keys and logs.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, filter := range q.Where {
		fmt.Fprintf(&b, "|%s=%v", filter.Field, filter.Value)
	}
	if q.ArrayContains != nil {
		fmt.Fprintf(&b, "|%s~%v", q.ArrayContains.Field, q.ArrayContains.Value)
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&b, "|order:%s:%s", q.OrderBy, q.Direction)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|limit:%d", q.Limit)
	}
	return b.String()
}

// Snapshot is one complete delivery of a subscription.
type Snapshot struct {
	Documents []models.Document
	ReadAt    time.Time
}

// Unsubscribe stops a subscription. It is safe to call more than once and
// returns only after no further snapshot will be delivered. It must not be
// called from inside a snapshot callback.
type Unsubscribe func()

// DocumentStore is implemented by every backend adapter.
type DocumentStore interface {
	Query(ctx context.Context, q Query) ([]models.Document, error)
	Get(ctx context.Context, collection, id string) (models.Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	// Set creates the document or merges data into it.
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Update merges fields into an existing document; keys may be dotted paths.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Increment(ctx context.Context, collection, id, field string, delta int) error
	ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error
	ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error
	// Subscribe delivers the full result set of q now and after every change
	// until ctx ends or the returned Unsubscribe is called.
	Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)
	Close() error
}
