package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/credential"
	"github.com/ovaphlow/pitchfork/service-social/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
)

var (
	ErrNoToken      = apperr.New(apperr.Authentication, "No token provided")
	ErrInvalidToken = apperr.New(apperr.Forbidden, "Invalid token")
	ErrNotAdmin     = apperr.New(apperr.Forbidden, "Access denied. Admin rights required.")
)

// Identity is who the bearer token says the caller is.
type Identity struct {
	ID   int64
	Role entity.Role
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity Authenticate attached to ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type TokenVerifier interface {
	Verify(token string) (*credential.Claims, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate requires a valid bearer token and puts its identity on the
// request context.
func Authenticate(tokens TokenVerifier, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httpx.WriteError(w, r, logger, ErrNoToken)
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				httpx.WriteError(w, r, logger, apperr.Because(ErrInvalidToken, err))
				return
			}
			ctx := WithIdentity(r.Context(), Identity{ID: claims.UserID, Role: entity.Role(claims.Role)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin admits only ADMIN identities. It relies on Authenticate
// having run first and does not look at the token again.
func RequireAdmin(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok || id.Role != entity.RoleAdmin {
				httpx.WriteError(w, r, logger, ErrNotAdmin)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies mws so that the first one is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
