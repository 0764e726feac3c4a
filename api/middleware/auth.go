package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tixmarket-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tixmarket-backend/pkg/auth"
	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/db"
	"github.com/angelmondragon/tixmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tixmarket-backend/pkg/errors"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
)

const (
	internalKeyHeader = "X-Internal-Key"
	cronSecretHeader  = "X-Cron-Secret"
)

// ProfileLoader resolves the caller's profile for admin checks.
type ProfileLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Auth validates a bearer token from the auth provider and seeds the request
// context with the subject.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authenticate(r, cfg, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose profile does not carry the admin role.
// The token's role claim is never trusted for this decision.
func RequireAdmin(profiles ProfileLoader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authorizeAdmin(r.Context(), profiles)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalKey guards routes called by other backend services.
func InternalKey(key string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secretMatches(key, r.Header.Get(internalKeyHeader)) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid internal key"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), CallerService)))
		})
	}
}

// CronOrAdmin accepts either the scheduler's shared secret or an admin bearer
// token.
func CronOrAdmin(cronSecret string, cfg config.JWTConfig, profiles ProfileLoader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provided := r.Header.Get(cronSecretHeader); provided != "" {
				if !secretMatches(cronSecret, provided) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron secret"))
					return
				}
				ctx := WithCaller(r.Context(), CallerSchedule)
				if logg != nil {
					ctx = logg.WithField(ctx, "caller", CallerSchedule)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx, err := authenticate(r, cfg, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx, err = authorizeAdmin(ctx, profiles)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, logg *logger.Logger) (context.Context, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	token := raw
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject")
	}

	ctx := WithUserID(r.Context(), userID.String())
	ctx = WithCaller(ctx, CallerUser)
	if logg != nil {
		ctx = logg.WithUserID(ctx, userID.String())
	}
	return ctx, nil
}

func authorizeAdmin(ctx context.Context, profiles ProfileLoader) (context.Context, error) {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	if profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	profile, err := profiles.FindByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load caller profile")
	}
	if !profile.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return WithCaller(ctx, CallerAdmin), nil
}

func secretMatches(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
