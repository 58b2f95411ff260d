package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-scheduler/internal/auth"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey contextKey = "user"
)

// UserFinder loads the user behind a token.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authService *auth.Service
	users       UserFinder
	cache       *auth.VerificationCache
}

// NewAuthMiddleware creates a new authentication middleware. When users is
// nil tokens are trusted without checking that the user is still active.
func NewAuthMiddleware(authService *auth.Service, users UserFinder, cache *auth.VerificationCache) *AuthMiddleware {
	if cache == nil {
		cache = auth.NewVerificationCache(0, nil)
	}
	return &AuthMiddleware{
		authService: authService,
		users:       users,
		cache:       cache,
	}
}

// Authenticate validates JWT tokens and adds user context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for certain endpoints; a valid token still
		// identifies the caller there.
		if shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, m.withOptionalUser(r))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := m.authService.ValidateToken(authHeader)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		v, err := m.verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "), claims)
		if err != nil {
			log.WithError(err).WithField("user_id", claims.UserID).Error("Failed to verify user")
			http.Error(w, "Failed to verify user", http.StatusInternalServerError)
			return
		}
		if !v.Active {
			http.Error(w, "User is inactive", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withOptionalUser attaches the caller's claims when the request carries a
// valid token for an active user, and leaves r unchanged otherwise.
func (m *AuthMiddleware) withOptionalUser(r *http.Request) *http.Request {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return r
	}
	claims, err := m.authService.ValidateToken(authHeader)
	if err != nil {
		return r
	}
	v, err := m.verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "), claims)
	if err != nil || !v.Active {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
}

// verify confirms the token's user still exists and is active, consulting
// the cache first. Lookup failures other than not found are not cached.
func (m *AuthMiddleware) verify(ctx context.Context, token string, claims *models.Claims) (auth.Verification, error) {
	if m.users == nil {
		return auth.Verification{UserID: claims.UserID, Active: true}, nil
	}
	if v, ok := m.cache.Get(token); ok {
		return v, nil
	}

	v := auth.Verification{UserID: claims.UserID}
	user, err := m.users.FindUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, db.ErrInvalidID):
	case err != nil:
		return auth.Verification{}, err
	default:
		v.Active = user.IsActive
	}
	m.cache.Put(token, v)
	return v, nil
}

// RequireRole rejects users whose role does not satisfy requiredRole.
func (m *AuthMiddleware) RequireRole(requiredRole models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				http.Error(w, "User context not found", http.StatusUnauthorized)
				return
			}

			if !models.Satisfies(requiredRole, claims.Role) {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok
}

// shouldSkipAuth determines if authentication should be skipped for a given path
func shouldSkipAuth(path string) bool {
	skipPaths := []string{
		"/api/auth/login",
		"/api/auth/register",
		"/health",
		"/metrics",
	}

	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
