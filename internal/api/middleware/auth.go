package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/vetle/clinicd/internal/api/response"
	"github.com/vetle/clinicd/internal/db"
	"github.com/vetle/clinicd/internal/model"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionStore resolves a raw session token to a live session.
type SessionStore interface {
	Lookup(ctx context.Context, token string) (*model.Session, error)
}

// Auth returns a middleware that validates the X-Session-Token header.
// Requests without a resolvable session are rejected with 401 before any
// handler runs.
func Auth(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Session-Token")
			if token == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			session, err := store.Lookup(r.Context(), token)
			if err != nil {
				if errors.Is(err, db.ErrNoSession) {
					response.WriteError(w, http.StatusUnauthorized, "invalid or expired session")
					return
				}
				response.WriteError(w, http.StatusInternalServerError, "session lookup failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// ContextWithSession attaches a session to the context the same way Auth
// does for real requests.
func ContextWithSession(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the authenticated session, or nil when the
// request did not pass through Auth.
func SessionFromContext(ctx context.Context) *model.Session {
	s, _ := ctx.Value(sessionKey).(*model.Session)
	return s
}
