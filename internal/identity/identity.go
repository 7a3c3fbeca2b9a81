// Package identity tells the game who is on the other end of a request:
// a signed-in account when a valid token is present, otherwise an
// anonymous device identified by cookie.
package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	DeviceCookie = "device_id"
	TokenCookie  = "dobble_token"

	deviceCookieTTL = 365 * 24 * time.Hour
)

// Identity is the player a request acts as.
type Identity struct {
	PlayerID      string `json:"playerId"`
	Name          string `json:"name,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware resolves the request identity and stores it on the context.
// A valid account token wins; otherwise the device cookie is used and
// issued when missing.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearerOrCookie(r); tok != "" {
			if claims, err := s.ParseToken(tok); err == nil {
				if _, err := s.users.GetUserByID(claims.UserID); err == nil {
					id := Identity{PlayerID: claims.UserID, Name: claims.Username, Authenticated: true}
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}
		}
		id := Identity{PlayerID: s.deviceID(w, r)}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (s *Service) deviceID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(DeviceCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.now().Add(deviceCookieTTL),
	})
	return id
}
