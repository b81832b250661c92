package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// JWTVerifier validates HMAC signed bearer tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses the token and maps its claims onto an Actor.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (models.Actor, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, fmt.Errorf("invalid token claims")
	}

	actor := models.Actor{
		ID:   extractUserIDFromClaims(claims),
		Name: extractNameFromClaims(claims),
		Role: extractUserRoleFromClaims(claims),
	}
	if actor.ID == "" {
		return models.Actor{}, fmt.Errorf("token subject missing")
	}
	return actor, nil
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	keys := []string{"sub", "user_id", "uid"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func extractNameFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"name", "display_name"} {
		if value, ok := claims[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return models.RoleUser
}

// normalizeRole keeps known roles and maps everything else to a plain user.
func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return knownRole(v)
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				if role := knownRole(str); role != "" {
					return role
				}
			}
		}
	}
	return ""
}

func knownRole(raw string) string {
	role := strings.ToLower(strings.TrimSpace(raw))
	role = strings.ReplaceAll(role, "-", "_")
	switch role {
	case models.RoleHealthWorker, models.RoleAdmin, models.RoleUser:
		return role
	case "healthworker":
		return models.RoleHealthWorker
	default:
		return ""
	}
}
