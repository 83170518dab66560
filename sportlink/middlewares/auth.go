// sportlink/middlewares/auth.go
package middlewares

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sportlink/sportlink/config"
	"sportlink/sportlink/types"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	ActorKey  contextKey = "actor"
)

var ErrInvalidToken = errors.New("invalid token")

// ParseToken validates an HMAC-signed token and reads the actor from its
// user_id, role and name claims. user_id may be a number or a string.
func ParseToken(secret, tokenStr string) (types.Actor, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return types.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Actor{}, ErrInvalidToken
	}

	var actor types.Actor
	switch v := claims["user_id"].(type) {
	case float64:
		actor.ID = strconv.FormatInt(int64(v), 10)
	case string:
		actor.ID = strings.TrimSpace(v)
	}
	if actor.ID == "" {
		return types.Actor{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	roleClaim, _ := claims["role"].(string)
	role, ok := types.ParseRole(roleClaim)
	if !ok {
		return types.Actor{}, fmt.Errorf("%w: bad role %q", ErrInvalidToken, roleClaim)
	}
	actor.Role = role
	actor.DisplayName, _ = claims["name"].(string)
	return actor, nil
}

func AuthMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(auth, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			actor, err := ParseToken(cfg.JWTSecret, parts[1])
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, actor.ID)
			ctx = context.WithValue(ctx, ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the actor stored by AuthMiddleware.
func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(types.Actor)
	return actor, ok
}

// WithActor stores actor the way AuthMiddleware does.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, actor.ID)
	return context.WithValue(ctx, ActorKey, actor)
}

// IssueToken signs a token ParseToken accepts, valid for ttl.
func IssueToken(secret string, actor types.Actor, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": actor.ID,
		"role":    string(actor.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if actor.DisplayName != "" {
		claims["name"] = actor.DisplayName
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
