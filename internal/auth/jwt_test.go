package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "operator-secret-32-chars-long!!!"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)

	t.Run("generate and validate", func(t *testing.T) {
		token, exp, err := mgr.Generate("ops", 0)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

		claims, err := mgr.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Subject)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("subject is required", func(t *testing.T) {
		_, _, err := mgr.Generate("", 0)
		assert.Error(t, err)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.Validate("invalid-token")
		assert.Error(t, err)
	})

	t.Run("other secret fails", func(t *testing.T) {
		token, _, err := NewJWTManager("another-secret-32-chars-long!!!!", time.Hour).Generate("ops", 0)
		require.NoError(t, err)
		_, err = mgr.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		token, _, err := mgr.Generate("ops", -time.Second)
		require.NoError(t, err)
		_, err = mgr.Validate(token)
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)
	var subject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetOperatorClaims(r.Context()); c != nil {
			subject = c.Subject
		}
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(h http.Handler, header string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/loop/status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("nil manager passes through", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, serve(Middleware(nil)(next), ""))
	})

	h := Middleware(mgr)(next)

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(h, ""))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(h, "Basic abc"))
	})

	t.Run("empty bearer", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer   "))
	})

	t.Run("bad token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer nope"))
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := mgr.Generate("ops", 0)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, serve(h, "Bearer "+token))
		assert.Equal(t, "ops", subject)
	})
}

func TestOperator(t *testing.T) {
	assert.Equal(t, "anonymous", Operator(context.Background()))

	ctx := context.WithValue(context.Background(), claimsKey{}, &OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "oncall"},
	})
	assert.Equal(t, "oncall", Operator(ctx))
}
