package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aiox-platform/mindloop/internal/api"
)

type claimsKey struct{}

// Middleware requires a bearer operator token. With a nil manager the API
// is open and every request passes through.
func Middleware(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := m.Validate(token)
			if err != nil {
				slog.Debug("rejected operator token", "error", err, "path", r.URL.Path)
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func GetOperatorClaims(ctx context.Context) *OperatorClaims {
	claims, _ := ctx.Value(claimsKey{}).(*OperatorClaims)
	return claims
}

// Operator names the caller for audit logs: the token subject, or
// "anonymous" when the API runs without authentication.
func Operator(ctx context.Context) string {
	if c := GetOperatorClaims(ctx); c != nil && c.Subject != "" {
		return c.Subject
	}
	return "anonymous"
}
