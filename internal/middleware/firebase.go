package middleware

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// FirebaseVerifier validates Firebase ID tokens. The role is read from the
// custom claim "role".
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, tokenString string) (models.Actor, error) {
	token, err := v.client.VerifyIDToken(ctx, tokenString)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	actor := models.Actor{ID: token.UID, Role: models.RoleUser}
	if name, ok := token.Claims["name"].(string); ok {
		actor.Name = name
	}
	if role := normalizeRole(token.Claims["role"]); role != "" {
		actor.Role = role
	}
	return actor, nil
}
