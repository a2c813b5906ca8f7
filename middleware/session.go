package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/goCred/session"
)

// Validator is the part of *goCred.Engine the guard needs.
type Validator interface {
	ValidateSession(ctx context.Context, token string) (session.Payload, error)
	CookieName() string
}

// RejectFunc writes the response for a request without a valid session.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

type sessionContextKey struct{}

// SessionFromContext returns the payload stored by RequireSession.
func SessionFromContext(ctx context.Context) (session.Payload, bool) {
	p, ok := ctx.Value(sessionContextKey{}).(session.Payload)
	return p, ok
}

// WithSession stores p in ctx. RequireSession uses it; tests can too.
func WithSession(ctx context.Context, p session.Payload) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, p)
}

// RequireSession rejects requests without a valid session. A nil reject
// writes a plain 401.
func RequireSession(v Validator, reject RejectFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				reject(w, r, nil)
				return
			}

			token, ok := TokenFromRequest(r, v.CookieName())
			if !ok {
				reject(w, r, nil)
				return
			}

			p, err := v.ValidateSession(r.Context(), token)
			if err != nil {
				reject(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), p)))
		})
	}
}

// TokenFromRequest returns the session token from the named cookie, falling
// back to a bearer Authorization header.
func TokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
