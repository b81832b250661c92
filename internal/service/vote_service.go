package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/repository"
)

const voteFailure = "Could not save your vote. Please try again."

// VoteService records up-votes and poll answers. A user holds at most one
// vote per record and at most one answer per poll.
type VoteService interface {
	Vote(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error)
	Unvote(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error)
	Toggle(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error)
	PollVote(ctx context.Context, collection, id string, actor models.Actor, option int) (dto.ContentResponse, error)
}

type voteService struct {
	repo    repository.ContentRepository
	content ContentService
	locks   *keyedMutex
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewVoteService constructs the vote service. content is used to invalidate
// cached working sets and may be nil.
func NewVoteService(repo repository.ContentRepository, content ContentService, logger zerolog.Logger) VoteService {
	return &voteService{
		repo:    repo,
		content: content,
		locks:   newKeyedMutex(),
		logger:  logger.With().Str("component", "vote_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/healthwatch-api/internal/service/vote"),
	}
}

func (s *voteService) Vote(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error) {
	if actor.ID == "" {
		return dto.VoteResponse{}, apperror.Unauthorized("sign in to vote")
	}
	defer s.locks.Lock(voteKey(collection, id, actor.ID))()

	record, err := s.votable(ctx, collection, id)
	if err != nil {
		return dto.VoteResponse{}, err
	}
	if record.HasVoted(actor.ID) {
		return dto.VoteResponse{ID: id, HasVoted: true, VoteCount: record.VoteCount}, nil
	}

	ctx, span := s.tracer.Start(ctx, "content.vote", trace.WithAttributes(
		attribute.String("content.collection", collection),
		attribute.String("content.id", id),
	))
	defer span.End()

	if err := s.repo.AddVoter(ctx, collection, id, actor.ID); err != nil {
		span.RecordError(err)
		return dto.VoteResponse{}, apperror.Mutation(voteFailure, err)
	}
	if err := s.repo.AdjustVoteCount(ctx, collection, id, 1); err != nil {
		span.RecordError(err)
		if rollbackErr := s.repo.RemoveVoter(ctx, collection, id, actor.ID); rollbackErr != nil {
			s.logger.Error().Err(rollbackErr).Str("content_id", id).Str("user_id", actor.ID).Msg("failed to roll back voter after count failure")
		}
		return dto.VoteResponse{}, apperror.Mutation(voteFailure, err)
	}

	observability.Votes().WithLabelValues(collection, "vote").Inc()
	s.invalidate(ctx, collection)
	return dto.VoteResponse{ID: id, HasVoted: true, VoteCount: record.VoteCount + 1, Changed: true}, nil
}

func (s *voteService) Unvote(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error) {
	if actor.ID == "" {
		return dto.VoteResponse{}, apperror.Unauthorized("sign in to vote")
	}
	defer s.locks.Lock(voteKey(collection, id, actor.ID))()

	record, err := s.votable(ctx, collection, id)
	if err != nil {
		return dto.VoteResponse{}, err
	}
	if !record.HasVoted(actor.ID) {
		return dto.VoteResponse{ID: id, HasVoted: false, VoteCount: record.VoteCount}, nil
	}

	ctx, span := s.tracer.Start(ctx, "content.unvote", trace.WithAttributes(
		attribute.String("content.collection", collection),
		attribute.String("content.id", id),
	))
	defer span.End()

	if err := s.repo.RemoveVoter(ctx, collection, id, actor.ID); err != nil {
		span.RecordError(err)
		return dto.VoteResponse{}, apperror.Mutation(voteFailure, err)
	}
	if err := s.repo.AdjustVoteCount(ctx, collection, id, -1); err != nil {
		span.RecordError(err)
		if rollbackErr := s.repo.AddVoter(ctx, collection, id, actor.ID); rollbackErr != nil {
			s.logger.Error().Err(rollbackErr).Str("content_id", id).Str("user_id", actor.ID).Msg("failed to restore voter after count failure")
		}
		return dto.VoteResponse{}, apperror.Mutation(voteFailure, err)
	}

	observability.Votes().WithLabelValues(collection, "unvote").Inc()
	s.invalidate(ctx, collection)

	count := record.VoteCount - 1
	if count < 0 {
		count = 0
	}
	return dto.VoteResponse{ID: id, HasVoted: false, VoteCount: count, Changed: true}, nil
}

func (s *voteService) Toggle(ctx context.Context, collection, id string, actor models.Actor) (dto.VoteResponse, error) {
	if actor.ID == "" {
		return dto.VoteResponse{}, apperror.Unauthorized("sign in to vote")
	}
	record, err := s.votable(ctx, collection, id)
	if err != nil {
		return dto.VoteResponse{}, err
	}
	if record.HasVoted(actor.ID) {
		return s.Unvote(ctx, collection, id, actor)
	}
	return s.Vote(ctx, collection, id, actor)
}

// PollVote records the actor's answer. Answering again with another option
// moves the vote; answering with the same option changes nothing.
func (s *voteService) PollVote(ctx context.Context, collection, id string, actor models.Actor, option int) (dto.ContentResponse, error) {
	if actor.ID == "" {
		return dto.ContentResponse{}, apperror.Unauthorized("sign in to vote")
	}
	defer s.locks.Lock(voteKey(collection, id, actor.ID))()

	record, err := s.votable(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, err
	}
	if !record.IsPoll() {
		return dto.ContentResponse{}, apperror.Validation("this entry has no poll", nil)
	}
	if option < 0 || option >= len(record.Poll.Options) {
		return dto.ContentResponse{}, apperror.Validation("unknown poll option", nil)
	}

	previous, answered := record.Poll.Voters[actor.ID]
	if answered && previous == option {
		return dto.NewContentResponse(record, actor.ID), nil
	}

	ctx, span := s.tracer.Start(ctx, "content.poll_vote", trace.WithAttributes(
		attribute.String("content.collection", collection),
		attribute.String("content.id", id),
		attribute.Int("poll.option", option),
	))
	defer span.End()

	if err := s.repo.AdjustPollTally(ctx, collection, id, option, 1); err != nil {
		span.RecordError(err)
		return dto.ContentResponse{}, apperror.Mutation(voteFailure, err)
	}
	if answered {
		if err := s.repo.AdjustPollTally(ctx, collection, id, previous, -1); err != nil {
			span.RecordError(err)
			s.rollbackTally(ctx, collection, id, option)
			return dto.ContentResponse{}, apperror.Mutation(voteFailure, err)
		}
	}
	if err := s.repo.SetPollVoter(ctx, collection, id, actor.ID, option); err != nil {
		span.RecordError(err)
		s.rollbackTally(ctx, collection, id, option)
		if answered {
			if restoreErr := s.repo.AdjustPollTally(ctx, collection, id, previous, 1); restoreErr != nil {
				s.logger.Error().Err(restoreErr).Str("content_id", id).Msg("failed to restore previous poll tally")
			}
		}
		return dto.ContentResponse{}, apperror.Mutation(voteFailure, err)
	}

	action := "poll_vote"
	if answered {
		action = "poll_switch"
	}
	observability.Votes().WithLabelValues(collection, action).Inc()
	s.invalidate(ctx, collection)

	updated, err := s.repo.FindByID(ctx, collection, id)
	if err != nil {
		return dto.ContentResponse{}, apperror.Retrieval("Your vote was saved but the poll could not be reloaded.", err)
	}
	return dto.NewContentResponse(updated, actor.ID), nil
}

func (s *voteService) rollbackTally(ctx context.Context, collection, id string, option int) {
	if err := s.repo.AdjustPollTally(ctx, collection, id, option, -1); err != nil {
		s.logger.Error().Err(err).Str("content_id", id).Int("option", option).Msg("failed to roll back poll tally")
	}
}

func (s *voteService) votable(ctx context.Context, collection, id string) (models.ContentRecord, error) {
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
	if record.IsTerminal() {
		return models.ContentRecord{}, apperror.Conflict("this entry no longer accepts votes")
	}
	return record, nil
}

func (s *voteService) invalidate(ctx context.Context, collection string) {
	if s.content != nil {
		s.content.Invalidate(ctx, collection)
	}
}

func voteKey(collection, id, userID string) string {
	return collection + "/" + id + "/" + userID
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &refLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
