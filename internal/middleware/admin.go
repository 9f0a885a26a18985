package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/auth"
)

// AdminChecker reports whether a user may use the admin routes.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin rejects callers without the ADMIN role with a JSON 403. It
// must run after auth.RequireAuth. The role is read from the store on every
// request, so a demoted or blocked admin loses access immediately rather
// than when their session expires.
func RequireAdmin(checker AdminChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				writeStatus(w, http.StatusUnauthorized, apperror.CodeUnauthorized, "valid authentication required")
				return
			}

			isAdmin, err := checker.IsAdmin(r.Context(), userID)
			if err != nil && !errors.Is(err, apperror.ErrNotFound) {
				logger.Error("admin check failed", slog.String("userId", userID), slog.String("error", err.Error()))
				writeStatus(w, http.StatusInternalServerError, apperror.CodeInternal, "an internal error occurred")
				return
			}
			if !isAdmin {
				writeStatus(w, http.StatusForbidden, apperror.CodeForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}` + "\n"))
}
