package repository

import (
	"context"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

// UserProfile is the part of a user document the API reads.
type UserProfile struct {
	ID       string
	Name     string
	Role     string
	Presence string
	Scope    models.Scope
}

// UserRepository keeps user profiles and presence.
type UserRepository interface {
	// Touch records the actor's profile and presence.
	Touch(ctx context.Context, actor models.Actor, presence string) error
	SetScope(ctx context.Context, userID string, scope models.Scope) error
	// ListByState returns users in a state, or every user when state is empty.
	ListByState(ctx context.Context, state string) ([]UserProfile, error)
}

type userRepository struct {
	store store.DocumentStore
}

func NewUserRepository(documents store.DocumentStore) UserRepository {
	return &userRepository{store: documents}
}

func (r *userRepository) Touch(ctx context.Context, actor models.Actor, presence string) error {
	return r.store.Set(ctx, models.CollectionUsers, actor.ID, map[string]any{
		"name":     actor.Name,
		"role":     actor.Role,
		"presence": presence,
		"lastSeen": time.Now().UTC(),
	})
}

func (r *userRepository) SetScope(ctx context.Context, userID string, scope models.Scope) error {
	return r.store.Set(ctx, models.CollectionUsers, userID, map[string]any{
		"scope": map[string]any{
			"local":    scope.Local,
			"state":    scope.State,
			"national": scope.National,
		},
	})
}

func (r *userRepository) ListByState(ctx context.Context, state string) ([]UserProfile, error) {
	q := store.Query{Collection: models.CollectionUsers}
	if state != "" {
		q.Where = []store.Filter{{Field: "scope.state", Value: state}}
	}

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	users := make([]UserProfile, 0, len(docs))
	for _, doc := range docs {
		users = append(users, userProfile(doc))
	}
	return users, nil
}

func userProfile(doc models.Document) UserProfile {
	profile := UserProfile{ID: doc.ID, Presence: models.PresenceOffline}
	profile.Name, _ = doc.Data["name"].(string)
	profile.Role, _ = doc.Data["role"].(string)
	if presence, ok := doc.Data["presence"].(string); ok && presence != "" {
		profile.Presence = presence
	}
	if scope, ok := doc.Data["scope"].(map[string]any); ok {
		profile.Scope.Local, _ = scope["local"].(string)
		profile.Scope.State, _ = scope["state"].(string)
		profile.Scope.National, _ = scope["national"].(string)
	}
	return profile
}
