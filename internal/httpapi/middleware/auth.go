package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/httpapi/problem"
	"github.com/hamed0406/tablealert/internal/identity"
)

type ctxKey int

const userEmailKey ctxKey = iota

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireUser resolves the bearer token to a user email and stores it in
// the request context. Missing or rejected tokens get 401.
func RequireUser(ids identity.Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				problem.Write(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
				return
			}
			email, err := ids.EmailForToken(r.Context(), token)
			switch {
			case errors.Is(err, identity.ErrUnauthorized):
				problem.Write(w, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
				return
			case err != nil:
				logger.Warn("identity_error", zap.Error(err))
				problem.Write(w, http.StatusServiceUnavailable, "identity unavailable", "could not verify token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserEmail(r.Context(), email)))
		})
	}
}

func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// UserEmail returns the email RequireUser stored, or "".
func UserEmail(ctx context.Context) string {
	e, _ := ctx.Value(userEmailKey).(string)
	return e
}
