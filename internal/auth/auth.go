package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator verifies HMAC-signed bearer tokens issued elsewhere. Tokens
// carry the user id in "sub" and the role in "role".
type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Verify(tokenStr string) (models.Actor, error) {
	if tokenStr == "" {
		return models.Actor{}, errors.Wrap(ErrUnauthenticated, "missing token")
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	if err != nil {
		return models.Actor{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Actor{}, errors.Wrap(ErrUnauthenticated, "invalid claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Actor{}, errors.Wrap(ErrUnauthenticated, "subject is required")
	}
	role, _ := claims["role"].(string)

	return models.Actor{UserID: sub, Role: role}, nil
}

// Sign issues a token for the actor. Only used by tests and local tooling.
func (a *Authenticator) Sign(actor models.Actor, claims jwt.MapClaims) (string, error) {
	mc := jwt.MapClaims{"sub": actor.UserID, "role": actor.Role}
	for k, v := range claims {
		mc[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(a.secret)
}

// ExtractToken reads "Authorization: Bearer <token>", falling back to the
// access_token query parameter that browsers use for WebSocket upgrades.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("access_token")
}

type ctxKey struct{}

func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFrom(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(models.Actor)
	return a, ok
}

// Middleware rejects requests without a valid token and stores the actor in
// the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Verify(ExtractToken(r))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
