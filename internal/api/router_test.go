package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, name)
	}
}

func testHandlers() HandlerSet {
	return HandlerSet{
		LoopStatus:    named("loop"),
		CreateMemory:  named("create"),
		MemoryStats:   named("stats"),
		SearchArchive: named("archive"),
		SweepMemories: named("sweep"),
		Speak:         named("speak"),
		PublishState:  named("state"),
		GetActivation: named("get-activation"),
		SetActivation: named("set-activation"),
	}
}

func TestRouter_Routes(t *testing.T) {
	r := NewRouter(Dependencies{}, RouterConfig{}, testHandlers())

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/loop/status", "loop"},
		{http.MethodPost, "/api/v1/memories", "create"},
		{http.MethodGet, "/api/v1/memories/stats", "stats"},
		{http.MethodGet, "/api/v1/memories/archive?q=x", "archive"},
		{http.MethodPost, "/api/v1/memories/sweep", "sweep"},
		{http.MethodPost, "/api/v1/effector/speak", "speak"},
		{http.MethodPost, "/api/v1/effector/state", "state"},
		{http.MethodGet, "/api/v1/effector/activation", "get-activation"},
		{http.MethodPut, "/api/v1/effector/activation", "set-activation"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"data":"`+tt.want+`"}`, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_AuthMiddlewareGuardsAPI(t *testing.T) {
	h := testHandlers()
	h.AuthMiddleware = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HandleError(w, ErrUnauthorized)
		})
	}
	r := NewRouter(Dependencies{}, RouterConfig{}, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/loop/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Readiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := NewRouter(Dependencies{Redis: client}, RouterConfig{}, testHandlers())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"healthy","database":"not configured","redis":"healthy","nats":"not configured"}}`, rec.Body.String())

	mr.Close()
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"unhealthy"`)
}
