package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/normalize"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

// ErrNotFound mirrors store.ErrNotFound for callers of the repositories.
var ErrNotFound = store.ErrNotFound

// ContentRepository persists content records of every content collection.
type ContentRepository interface {
	// BaseQuery selects a collection narrowed by the non-empty scope tags.
	BaseQuery(collection string, scope models.Scope) store.Query
	FindByID(ctx context.Context, collection, id string) (models.ContentRecord, error)
	Create(ctx context.Context, record models.ContentRecord) (models.ContentRecord, error)
	// CreateIfAbsent stores record under id unless that id already exists.
	CreateIfAbsent(ctx context.Context, id string, record models.ContentRecord) (bool, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	AddVoter(ctx context.Context, collection, id, userID string) error
	RemoveVoter(ctx context.Context, collection, id, userID string) error
	AdjustVoteCount(ctx context.Context, collection, id string, delta int) error
	AdjustPollTally(ctx context.Context, collection, id string, option, delta int) error
	SetPollVoter(ctx context.Context, collection, id, userID string, option int) error
}

type contentRepository struct {
	store store.DocumentStore
}

// NewContentRepository constructs a repository backed by the document store.
func NewContentRepository(documents store.DocumentStore) ContentRepository {
	return &contentRepository{store: documents}
}

func (r *contentRepository) BaseQuery(collection string, scope models.Scope) store.Query {
	q := store.Query{Collection: collection}
	if scope.Local != "" {
		q.Where = append(q.Where, store.Filter{Field: "scope.local", Value: scope.Local})
	}
	if scope.State != "" {
		q.Where = append(q.Where, store.Filter{Field: "scope.state", Value: scope.State})
	}
	if scope.National != "" {
		q.Where = append(q.Where, store.Filter{Field: "scope.national", Value: scope.National})
	}
	return q
}

func (r *contentRepository) FindByID(ctx context.Context, collection, id string) (models.ContentRecord, error) {
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return models.ContentRecord{}, err
	}
	record := normalize.Content(doc)
	record.Collection = collection
	return record, nil
}

func (r *contentRepository) Create(ctx context.Context, record models.ContentRecord) (models.ContentRecord, error) {
	now := time.Now().UTC()
	record.CreatedAt = &now
	record.UpdatedAt = &now
	if record.Status == "" {
		record.Status = models.ContentStatusActive
	}
	if record.Votes == nil {
		record.Votes = []string{}
	}

	id, err := r.store.Create(ctx, record.Collection, ContentDocument(record))
	if err != nil {
		return models.ContentRecord{}, err
	}
	record.ID = id
	return record, nil
}

func (r *contentRepository) CreateIfAbsent(ctx context.Context, id string, record models.ContentRecord) (bool, error) {
	_, err := r.store.Get(ctx, record.Collection, id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now
	if record.Status == "" {
		record.Status = models.ContentStatusActive
	}
	if record.Votes == nil {
		record.Votes = []string{}
	}
	if err := r.store.Set(ctx, record.Collection, id, ContentDocument(record)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *contentRepository) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	fields["updatedAt"] = time.Now().UTC()
	return r.store.Update(ctx, collection, id, fields)
}

func (r *contentRepository) AddVoter(ctx context.Context, collection, id, userID string) error {
	return r.store.ArrayUnion(ctx, collection, id, "votes", userID)
}

func (r *contentRepository) RemoveVoter(ctx context.Context, collection, id, userID string) error {
	return r.store.ArrayRemove(ctx, collection, id, "votes", userID)
}

func (r *contentRepository) AdjustVoteCount(ctx context.Context, collection, id string, delta int) error {
	return r.store.Increment(ctx, collection, id, "voteCount", delta)
}

func (r *contentRepository) AdjustPollTally(ctx context.Context, collection, id string, option, delta int) error {
	return r.store.Increment(ctx, collection, id, "poll.tally."+strconv.Itoa(option), delta)
}

func (r *contentRepository) SetPollVoter(ctx context.Context, collection, id, userID string, option int) error {
	if userID == "" {
		return errors.New("poll voter id is required")
	}
	return r.store.Update(ctx, collection, id, map[string]any{"poll.voters." + models.VoterKey(userID): option})
}

// ContentDocument encodes a record in the current document shape.
func ContentDocument(record models.ContentRecord) map[string]any {
	body := map[string]any{"introduction": record.Content.Introduction}
	for _, field := range models.ContentArrayFields {
		if values := record.Content.Section(field); len(values) > 0 {
			body[field] = stringsToAny(values)
		}
	}
	for field, values := range record.Content.Extra {
		body[field] = stringsToAny(values)
	}

	data := map[string]any{
		"title":    record.Title,
		"category": record.Category,
		"type":     record.Type,
		"snippet":  record.Snippet,
		"content":  body,
		"author": map[string]any{
			"id":   record.Author.ID,
			"name": record.Author.Name,
			"role": record.Author.Role,
		},
		"scope": map[string]any{
			"local":    record.Scope.Local,
			"state":    record.Scope.State,
			"national": record.Scope.National,
		},
		"status":    record.Status,
		"votes":     stringsToAny(record.Votes),
		"voteCount": record.VoteCount,
	}
	if record.ImageURL != "" {
		data["imageUrl"] = record.ImageURL
	}
	if record.CreatedAt != nil {
		data["createdAt"] = *record.CreatedAt
	}
	if record.UpdatedAt != nil {
		data["updatedAt"] = *record.UpdatedAt
	}
	if record.IsPoll() {
		options := make([]any, 0, len(record.Poll.Options))
		tally := make(map[string]any, len(record.Poll.Options))
		for i, option := range record.Poll.Options {
			options = append(options, map[string]any{"text": option.Text})
			tally[strconv.Itoa(i)] = option.Votes
		}
		data["poll"] = map[string]any{
			"question": record.Poll.Question,
			"options":  options,
			"tally":    tally,
			"voters":   map[string]any{},
		}
	}
	return data
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}
