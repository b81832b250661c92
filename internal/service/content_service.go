package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/feed"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

const contentCachePrefix = "content:v1"

// ContentService serves the list and detail views of the content collections
// and the authoring flow behind them.
type ContentService interface {
	List(ctx context.Context, collection string, query dto.ContentListQuery, viewerID string) (dto.ContentListResponse, error)
	Detail(ctx context.Context, collection, id, viewerID string) (dto.ContentResponse, error)
	Create(ctx context.Context, collection string, actor models.Actor, payload dto.ContentCreateRequest) (dto.ContentResponse, error)
	Edit(ctx context.Context, collection, id string, actor models.Actor, payload dto.ContentUpdateRequest) (dto.ContentResponse, error)
	SetStatus(ctx context.Context, collection, id string, actor models.Actor, payload dto.ContentStatusRequest) (dto.ContentResponse, error)
	AttachImage(ctx context.Context, collection, id string, actor models.Actor, imageURL string) (dto.ContentResponse, error)
	// Invalidate drops every cached working set of collection.
	Invalidate(ctx context.Context, collection string)
}

type contentService struct {
	repo       repository.ContentRepository
	documents  store.DocumentStore
	cache      *redis.Client
	ttl        time.Duration
	dispatcher ContentDispatcher
	validator  *validator.Validate
	plain      *bluemonday.Policy
	rich       *bluemonday.Policy
	logger     zerolog.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	fetchers map[string]*feed.Fetcher[models.ContentRecord]
	versions map[string]int64
	sets     map[string]*workingSet
}

// workingSet is the last loaded, unprojected list of one collection and scope.
// Records are never modified after load so the projector can memoize on them.
type workingSet struct {
	key       string
	records   []models.ContentRecord
	loadedAt  time.Time
	projector *feed.Projector[models.ContentRecord]
}

type cachedWorkingSet struct {
	Records  []models.ContentRecord `json:"records"`
	LoadedAt time.Time              `json:"loadedAt"`
}

// NewContentService constructs the content service. cache and dispatcher may be nil.
func NewContentService(repo repository.ContentRepository, documents store.DocumentStore, cache *redis.Client, ttl time.Duration, dispatcher ContentDispatcher, validate *validator.Validate, logger zerolog.Logger) ContentService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if validate == nil {
		validate = validator.New()
	}
	rich := bluemonday.UGCPolicy()
	rich.AllowElements("p", "strong", "em", "ul", "ol", "li", "br")

	return &contentService{
		repo:       repo,
		documents:  documents,
		cache:      cache,
		ttl:        ttl,
		dispatcher: dispatcher,
		validator:  validate,
		plain:      bluemonday.StrictPolicy(),
		rich:       rich,
		logger:     logger.With().Str("component", "content_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/healthwatch-api/internal/service/content"),
		fetchers:   make(map[string]*feed.Fetcher[models.ContentRecord]),
		versions:   make(map[string]int64),
		sets:       make(map[string]*workingSet),
	}
}

func (s *contentService) List(ctx context.Context, collection string, query dto.ContentListQuery, viewerID string) (dto.ContentListResponse, error) {
	if !models.IsContentCollection(collection) {
		return dto.ContentListResponse{}, apperror.NotFound("collection", nil)
	}
	if err := s.validator.Struct(query); err != nil {
		return dto.ContentListResponse{}, apperror.Validation("invalid list filter", err)
	}

	selection := feed.Select(collection, query.Category)
	if selection.Kind == feed.SelectNavigate {
		return dto.ContentListResponse{}, apperror.Validation("create actions are not categories", nil)
	}

	set, hit, err := s.workingSet(ctx, collection, query.Scope())
	if err != nil {
		return dto.ContentListResponse{Status: feed.StatusError, Items: []dto.ContentResponse{}}, err
	}

	visible := set.projector.Project(set.records, selection.Category, query.Query)
	return dto.ContentListResponse{
		Status:   feed.StatusReady,
		Items:    dto.NewContentResponseSlice(visible, viewerID),
		Total:    len(visible),
		Category: selection.Category,
		Query:    strings.TrimSpace(query.Query),
		CacheHit: hit,
		LoadedAt: set.loadedAt,
	}, nil
}

func (s *contentService) Detail(ctx context.Context, collection, id, viewerID string) (dto.ContentResponse, error) {
	record, err := s.find(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	if record.Status == models.ContentStatusDeleted {
		return dto.ContentResponse{}, apperror.NotFound("content", nil)
	}
	return dto.NewContentResponse(record, viewerID), nil
}

func (s *contentService) Create(ctx context.Context, collection string, actor models.Actor, payload dto.ContentCreateRequest) (dto.ContentResponse, error) {
	if !models.IsContentCollection(collection) {
		return dto.ContentResponse{}, apperror.NotFound("collection", nil)
	}
	if strings.TrimSpace(actor.ID) == "" {
		return dto.ContentResponse{}, apperror.Unauthorized("sign in to publish")
	}
	if requiresAuthorRole(collection) && !actor.CanAuthor() {
		return dto.ContentResponse{}, apperror.Forbidden("only health workers can publish here")
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ContentResponse{}, apperror.Validation("invalid content payload", err)
	}
	if err := validateContentBody(collection, payload.Content); err != nil {
		return dto.ContentResponse{}, apperror.Validation("invalid content body", err)
	}
	if payload.Type == models.ContentTypePoll && payload.Poll == nil {
		return dto.ContentResponse{}, apperror.Validation("poll entries need a question and options", nil)
	}

	record := models.ContentRecord{
		Collection: collection,
		Title:      s.cleanText(payload.Title),
		Category:   s.cleanText(payload.Category),
		Type:       strings.TrimSpace(payload.Type),
		Snippet:    s.cleanText(payload.Snippet),
		Content:    s.cleanBody(payload.Content),
		Author:     models.Author{ID: actor.ID, Name: actor.Name, Role: actor.Role},
		Scope:      payload.Scope.Model(),
		Status:     models.ContentStatusActive,
	}
	if record.Title == "" {
		return dto.ContentResponse{}, apperror.Validation("title is empty after sanitization", nil)
	}
	if record.Category == "" {
		record.Category = models.CategoryOther
	}
	if record.Type == "" {
		record.Type = "article"
	}
	if payload.Poll != nil {
		record.Type = models.ContentTypePoll
		record.Poll = s.cleanPoll(*payload.Poll)
	}

	spanCtx, span := s.tracer.Start(ctx, "content.create", trace.WithAttributes(
		attribute.String("content.collection", collection),
		attribute.String("content.author", actor.ID),
	))
	defer span.End()

	created, err := s.repo.Create(spanCtx, record)
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("collection", collection).Msg("failed to create content")
		return dto.ContentResponse{}, apperror.Mutation("Could not publish. Please try again.", err)
	}

	s.Invalidate(ctx, collection)
	if s.dispatcher != nil {
		go s.dispatcher.ContentPublished(context.WithoutCancel(ctx), created)
	}

	return dto.NewContentResponse(created, actor.ID), nil
}

func (s *contentService) Edit(ctx context.Context, collection, id string, actor models.Actor, payload dto.ContentUpdateRequest) (dto.ContentResponse, error) {
	record, err := s.find(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	if record.Author.ID == "" || record.Author.ID != actor.ID {
		return dto.ContentResponse{}, apperror.Forbidden("only the author can edit this entry")
	}
	if record.IsTerminal() {
		return dto.ContentResponse{}, apperror.Conflict("this entry can no longer be edited")
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ContentResponse{}, apperror.Validation("invalid content payload", err)
	}

	fields := map[string]any{}
	if payload.Title != nil {
		title := s.cleanText(*payload.Title)
		if title == "" {
			return dto.ContentResponse{}, apperror.Validation("title is empty after sanitization", nil)
		}
		fields["title"] = title
	}
	if payload.Category != nil {
		category := s.cleanText(*payload.Category)
		if category == "" {
			category = models.CategoryOther
		}
		fields["category"] = category
	}
	if payload.Snippet != nil {
		fields["snippet"] = s.cleanText(*payload.Snippet)
	}
	if payload.Content != nil {
		if err := validateContentBody(collection, *payload.Content); err != nil {
			return dto.ContentResponse{}, apperror.Validation("invalid content body", err)
		}
		updated := record
		updated.Content = s.cleanBody(*payload.Content)
		fields["content"] = repository.ContentDocument(updated)["content"]
	}
	if payload.Scope != nil {
		fields["scope"] = map[string]any{
			"local":    payload.Scope.Local,
			"state":    payload.Scope.State,
			"national": payload.Scope.National,
		}
	}
	if len(fields) == 0 {
		return dto.NewContentResponse(record, actor.ID), nil
	}

	return s.update(ctx, collection, id, actor.ID, fields, "Could not save your changes. Please try again.")
}

func (s *contentService) SetStatus(ctx context.Context, collection, id string, actor models.Actor, payload dto.ContentStatusRequest) (dto.ContentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ContentResponse{}, apperror.Validation("invalid status", err)
	}
	record, err := s.find(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	if record.Author.ID != actor.ID && actor.Role != models.RoleAdmin {
		return dto.ContentResponse{}, apperror.Forbidden("only the author can change this entry")
	}

	switch {
	case record.Status == payload.Status:
		return dto.NewContentResponse(record, actor.ID), nil
	case record.Status == models.ContentStatusDeleted:
		return dto.ContentResponse{}, apperror.Conflict("deleted entries cannot be restored")
	}

	return s.update(ctx, collection, id, actor.ID, map[string]any{"status": payload.Status}, "Could not update this entry. Please try again.")
}

func (s *contentService) AttachImage(ctx context.Context, collection, id string, actor models.Actor, imageURL string) (dto.ContentResponse, error) {
	record, err := s.find(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	if record.Author.ID != actor.ID {
		return dto.ContentResponse{}, apperror.Forbidden("only the author can change this entry")
	}
	return s.update(ctx, collection, id, actor.ID, map[string]any{"imageUrl": imageURL}, "Could not attach the image. Please try again.")
}

func (s *contentService) Invalidate(ctx context.Context, collection string) {
	s.mu.Lock()
	s.versions[collection]++
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, s.versionKey(collection)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg("failed to bump content cache version")
	}
}

func (s *contentService) update(ctx context.Context, collection, id, viewerID string, fields map[string]any, failure string) (dto.ContentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "content.update", trace.WithAttributes(
		attribute.String("content.collection", collection),
		attribute.String("content.id", id),
	))
	defer span.End()

	if err := s.repo.Update(spanCtx, collection, id, fields); err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrNotFound) {
			return dto.ContentResponse{}, apperror.NotFound("content", err)
		}
		return dto.ContentResponse{}, apperror.Mutation(failure, err)
	}
	s.Invalidate(ctx, collection)

	record, err := s.find(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	return dto.NewContentResponse(record, viewerID), nil
}

func (s *contentService) find(ctx context.Context, collection, id string) (models.ContentRecord, error) {
	if !models.IsContentCollection(collection) {
		return models.ContentRecord{}, apperror.NotFound("collection", nil)
	}
	record, err := s.repo.FindByID(ctx, collection, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.ContentRecord{}, apperror.NotFound("content", err)
		}
		return models.ContentRecord{}, apperror.Retrieval("Could not load this entry. Please try again.", err)
	}
	return record, nil
}

// workingSet returns the working set of collection narrowed by scope, from
// the in-process slot, the shared cache or the store, in that order.
func (s *contentService) workingSet(ctx context.Context, collection string, scope models.Scope) (*workingSet, bool, error) {
	slot := collection + "|" + scopeKey(scope)
	key := fmt.Sprintf("%s:%s:%d:%s", contentCachePrefix, collection, s.version(ctx, collection), scopeKey(scope))

	s.mu.Lock()
	if set, ok := s.sets[slot]; ok && set.key == key && time.Since(set.loadedAt) < s.ttl {
		s.mu.Unlock()
		observability.FeedCache().WithLabelValues(collection, "local").Inc()
		return set, true, nil
	}
	s.mu.Unlock()

	if cached, ok := s.readCache(ctx, key); ok {
		observability.FeedCache().WithLabelValues(collection, "hit").Inc()
		return s.remember(slot, key, cached.Records, cached.LoadedAt), true, nil
	}

	records, err := s.fetcher(collection).Fetch(ctx, feed.CompatQueries(s.repo.BaseQuery(collection, scope))...)
	if err != nil {
		return nil, false, err
	}
	records = liveContent(records)
	loadedAt := time.Now().UTC()

	s.writeCache(ctx, key, cachedWorkingSet{Records: records, LoadedAt: loadedAt})
	observability.FeedCache().WithLabelValues(collection, "miss").Inc()
	return s.remember(slot, key, records, loadedAt), false, nil
}

func (s *contentService) remember(slot, key string, records []models.ContentRecord, loadedAt time.Time) *workingSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := &workingSet{
		key:       key,
		records:   records,
		loadedAt:  loadedAt,
		projector: &feed.Projector[models.ContentRecord]{},
	}
	s.sets[slot] = set
	return set
}

func (s *contentService) fetcher(collection string) *feed.Fetcher[models.ContentRecord] {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetcher, ok := s.fetchers[collection]
	if !ok {
		fetcher = feed.NewFetcher(s.documents, feed.ContentDecoder(collection), s.logger)
		s.fetchers[collection] = fetcher
	}
	return fetcher
}

func (s *contentService) version(ctx context.Context, collection string) int64 {
	s.mu.Lock()
	local := s.versions[collection]
	s.mu.Unlock()

	if s.cache == nil {
		return local
	}
	shared, err := s.cache.Get(ctx, s.versionKey(collection)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("collection", collection).Msg("failed to read content cache version")
			return local
		}
		return 0
	}
	return shared
}

func (s *contentService) versionKey(collection string) string {
	return fmt.Sprintf("%s:%s:version", contentCachePrefix, collection)
}

func (s *contentService) readCache(ctx context.Context, key string) (cachedWorkingSet, bool) {
	if s.cache == nil {
		return cachedWorkingSet{}, false
	}
	payload, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read content cache")
		}
		return cachedWorkingSet{}, false
	}

	var cached cachedWorkingSet
	if err := json.Unmarshal(payload, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt content cache entry")
		return cachedWorkingSet{}, false
	}
	if cached.Records == nil {
		cached.Records = []models.ContentRecord{}
	}
	return cached, true
}

func (s *contentService) writeCache(ctx context.Context, key string, cached cachedWorkingSet) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache content working set")
	}
}

func (s *contentService) cleanText(value string) string {
	return strings.TrimSpace(s.plain.Sanitize(value))
}

func (s *contentService) cleanBody(input dto.ContentBodyInput) models.ContentBody {
	body := models.ContentBody{Introduction: strings.TrimSpace(s.rich.Sanitize(input.Introduction))}
	for field, values := range input.Sections {
		cleaned := make([]string, 0, len(values))
		for _, value := range values {
			if text := s.cleanText(value); text != "" {
				cleaned = append(cleaned, text)
			}
		}
		body.SetSection(field, cleaned)
	}
	return body
}

func (s *contentService) cleanPoll(input dto.PollInput) models.Poll {
	poll := models.Poll{
		Question: s.cleanText(input.Question),
		Options:  make([]models.PollOption, 0, len(input.Options)),
		Voters:   map[string]int{},
	}
	for _, option := range input.Options {
		poll.Options = append(poll.Options, models.PollOption{Text: s.cleanText(option)})
	}
	return poll
}

// liveContent drops archived and deleted records. The store cannot express
// inequality filters so this happens after the fetch.
func liveContent(records []models.ContentRecord) []models.ContentRecord {
	out := make([]models.ContentRecord, 0, len(records))
	for _, record := range records {
		if !record.IsTerminal() {
			out = append(out, record)
		}
	}
	return out
}

// Community feeds accept posts from anyone signed in; the reference
// collections are curated.
func requiresAuthorRole(collection string) bool {
	return collection != models.CollectionFeeds
}

func scopeKey(scope models.Scope) string {
	if scope.IsZero() {
		return "all"
	}
	return strings.Join([]string{scope.Local, scope.State, scope.National}, "/")
}
