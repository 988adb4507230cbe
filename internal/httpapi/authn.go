package httpapi

import (
	"context"
	"net/http"
	"strings"

	"fives.org/internal/apperr"
	"fives.org/internal/audit"
	"fives.org/internal/auth"
)

const authHeader = "Authorization"

// bearerToken returns the token from an "Authorization: Bearer <token>"
// header. Anything other than exactly two space-separated parts with the
// Bearer scheme counts as no token.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get(authHeader), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authenticate requires a valid access token for a live, active account and
// attaches that account's identity to the request.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.unauthorized(w, r, apperr.Authentication("Access token required"))
			return
		}
		user, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			e := auth.AppError(err)
			if e.Status == http.StatusUnauthorized {
				a.unauthorized(w, r, e)
				return
			}
			a.writeAppError(w, r, e)
			return
		}
		next.ServeHTTP(w, r.WithContext(a.withUser(r, token, user)))
	})
}

// OptionalAuth attaches an identity when a valid token is present and
// otherwise lets the request through anonymously.
func (a *API) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if user, err := a.auth.Authenticate(r.Context(), token); err == nil {
				r = r.WithContext(a.withUser(r, token, user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) withUser(r *http.Request, token string, user auth.User) context.Context {
	ctx := auth.ContextWithIdentity(r.Context(), auth.IdentityOf(user))
	ctx = auth.ContextWithToken(ctx, token)
	audit.Attribute(ctx, audit.Actor{UserID: user.ID, Username: user.Username})
	return ctx
}

// RequireRole admits identities holding one of roles. It must run after
// Authenticate.
func (a *API) RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				a.unauthorized(w, r, apperr.Authentication("Authentication required"))
				return
			}
			if !id.HasRole(roles...) {
				a.writeAppError(w, r, apperr.Authorization("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits administrators only.
func (a *API) RequireAdmin(next http.Handler) http.Handler {
	return a.RequireRole(auth.RoleAdmin)(next)
}

// RequireSupervisor admits administrators and supervisors.
func (a *API) RequireSupervisor(next http.Handler) http.Handler {
	return a.RequireRole(auth.RoleAdmin, auth.RoleSupervisor)(next)
}

func (a *API) unauthorized(w http.ResponseWriter, r *http.Request, e *apperr.Error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="fives"`)
	a.writeAppError(w, r, e)
}
