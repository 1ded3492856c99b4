package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voyagehq/voyage/internal/platform/httpx"
	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

type profileContextKey struct{}

// ContextWithProfile stores the built profile in context.
func ContextWithProfile(ctx context.Context, p profile.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, p)
}

// ProfileFromContext extracts the profile placed by the middleware.
func ProfileFromContext(ctx context.Context) (profile.Profile, bool) {
	p, ok := ctx.Value(profileContextKey{}).(profile.Profile)
	return p, ok
}

// Middleware wires authorization helpers for HTTP handlers. Each guarded
// request rebuilds the actor's profile, so a decision never outlives the
// mutation that would change it.
type Middleware struct {
	Profiles *profile.Service
	Logger   *slog.Logger
}

// RequireAuthenticated ensures a logged-in session and stashes the actor's
// freshly built profile in the request context.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.SessionUserID(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			p, err := m.Profiles.Build(r.Context(), userID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("build profile", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithProfile(r.Context(), p)))
		})
	}
}

// RequireGlobal ensures the actor holds at least one of the permissions
// somewhere. This is a routing-level gate for administrative surfaces that
// are not themselves program resources; program-scoped resources must check
// CanInProgram instead.
func (m Middleware) RequireGlobal(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := ProfileFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			for _, perm := range normalized {
				if CanGlobally(p, perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
