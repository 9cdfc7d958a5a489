package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/mindloop/internal/database"
	mw "github.com/aiox-platform/mindloop/internal/middleware"
	inats "github.com/aiox-platform/mindloop/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Loop
	LoopStatus http.HandlerFunc

	// Memory archive
	CreateMemory  http.HandlerFunc
	MemoryStats   http.HandlerFunc
	SearchArchive http.HandlerFunc
	SweepMemories http.HandlerFunc

	// Effector (forced, out-of-band delivery)
	Speak         http.HandlerFunc
	PublishState  http.HandlerFunc
	GetActivation http.HandlerFunc
	SetActivation http.HandlerFunc

	// Auth middleware; nil leaves the API open
	AuthMiddleware func(http.Handler) http.Handler
}

// Dependencies are probed by the readiness endpoint. Nil entries are
// reported as not configured.
type Dependencies struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	NATS  *inats.Client
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins  []string
	EffectorRateLimiter func(http.Handler) http.Handler
}

func NewRouter(deps Dependencies, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(mw.CORS(cfg.CORSAllowedOrigins))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}
		status := http.StatusOK
		degrade := func(key string) {
			health[key] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if deps.DB == nil {
			health["database"] = "not configured"
		} else if err := database.HealthCheck(r.Context(), deps.DB); err != nil {
			degrade("database")
		}

		if deps.Redis == nil {
			health["redis"] = "not configured"
		} else if err := deps.Redis.Ping(r.Context()).Err(); err != nil {
			degrade("redis")
		}

		if deps.NATS == nil {
			health["nats"] = "not configured"
		} else if !deps.NATS.Healthy() {
			degrade("nats")
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	auth := h.AuthMiddleware
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Get("/loop/status", h.LoopStatus)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", h.CreateMemory)
			r.Get("/stats", h.MemoryStats)
			r.Get("/archive", h.SearchArchive)
			r.Post("/sweep", h.SweepMemories)
		})

		r.Route("/effector", func(r chi.Router) {
			if cfg.EffectorRateLimiter != nil {
				r.Use(cfg.EffectorRateLimiter)
			}
			r.Post("/speak", h.Speak)
			r.Post("/state", h.PublishState)
			r.Get("/activation", h.GetActivation)
			r.Put("/activation", h.SetActivation)
		})
	})

	return r
}
