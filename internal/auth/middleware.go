package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	actorContextKey contextKey = iota
)

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}

// ErrorWriter renders an error response; the HTTP layer supplies its JSON renderer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware verifies the bearer token, loads the current user from the
// store and places the actor in the request context. Inactive or missing
// users are rejected with 401.
func Middleware(issuer *TokenIssuer, users store.UserStore, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeErr(w, r, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token")))
				return
			}

			userID, err := issuer.Verify(token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Rejected token")
				writeErr(w, r, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token")))
				return
			}

			user, err := users.Get(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, store.ErrUserNotFound) {
					writeErr(w, r, connect.NewError(connect.CodeInternal, err))
					return
				}
				writeErr(w, r, connect.NewError(connect.CodeUnauthenticated, errors.New("unknown user")))
				return
			}
			if !user.IsActive {
				writeErr(w, r, connect.NewError(connect.CodeUnauthenticated, errors.New("account is deactivated")))
				return
			}

			actor := ActorFromUser(user)
			logger := zerolog.Ctx(r.Context()).With().
				Str("user_id", actor.UserID.String()).
				Str("role", string(actor.Role)).
				Logger()

			ctx := WithActor(logger.WithContext(r.Context()), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken extracts the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
