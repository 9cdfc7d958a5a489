package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aiox-platform/mindloop/internal/api"
	"github.com/aiox-platform/mindloop/internal/auth"
	"github.com/aiox-platform/mindloop/internal/composer"
	"github.com/aiox-platform/mindloop/internal/config"
	"github.com/aiox-platform/mindloop/internal/database"
	"github.com/aiox-platform/mindloop/internal/diversity"
	"github.com/aiox-platform/mindloop/internal/effector"
	"github.com/aiox-platform/mindloop/internal/knowledge"
	"github.com/aiox-platform/mindloop/internal/memory"
	mw "github.com/aiox-platform/mindloop/internal/middleware"
	inats "github.com/aiox-platform/mindloop/internal/nats"
	"github.com/aiox-platform/mindloop/internal/orchestrator"
	"github.com/aiox-platform/mindloop/internal/reasoning"
	iredis "github.com/aiox-platform/mindloop/internal/redis"
	"github.com/aiox-platform/mindloop/internal/server"
	ixmpp "github.com/aiox-platform/mindloop/internal/xmpp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision loop and the operator API (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PostgreSQL (archive tier)
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres, archiving disabled", "error", err)
	} else if _, err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations, archiving disabled", "error", err)
		pool.Close()
		pool = nil
	}
	if pool != nil {
		defer pool.Close()
	}

	// Redis (active tier, rate limiting)
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis, archiving and rate limiting disabled", "error", err)
	} else {
		defer redisClient.Close()
	}

	// NATS (blackboard, knowledge stream)
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to NATS, blackboard and knowledge ingestion disabled", "error", err)
	} else {
		defer natsClient.Close()
	}

	// Reasoning
	rcfg := reasoning.Config{
		BaseURL:    cfg.Reasoning.BaseURL,
		APIKey:     cfg.Reasoning.APIKey,
		Model:      cfg.Reasoning.Model,
		MaxRetries: cfg.Reasoning.MaxRetries,
	}
	reasoner, err := reasoning.NewOpenAI(rcfg)
	if err != nil {
		slog.Error("creating reasoning client", "error", err)
		return err
	}

	engine := newArchiveEngine(cfg, rcfg, pool, redisClient)

	// Knowledge
	store := knowledge.NewStore(cfg.Knowledge.Capacity)
	var publisher *inats.Publisher
	var components []orchestrator.Component
	if engine != nil {
		components = append(components, orchestrator.Component{Name: "memory archive", Service: engine, Optional: true})
	}
	if natsClient != nil {
		publisher = inats.NewPublisher(natsClient.JetStream())
		consumers := inats.NewConsumerManager(natsClient.JetStream())
		var recorder knowledge.MemoryRecorder
		if engine != nil {
			recorder = engine
		}
		ingestor := knowledge.NewIngestor(consumers, store, recorder)
		components = append(components, orchestrator.Component{Name: "knowledge ingestor", Service: ingestor, Optional: true})
	}

	// Effector
	avatar, xmppComponent, err := newAvatar(cfg, publisher)
	if err != nil {
		slog.Error("creating avatar transport", "error", err)
	}
	if xmppComponent != nil {
		components = append(components, orchestrator.Component{Name: "xmpp component", Service: xmppComponent, Optional: true})
	}
	var blackboard effector.Blackboard
	if publisher != nil {
		blackboard = publisher
	}
	gateway := effector.NewGateway(avatar, blackboard, cfg.Effector.Timeout)
	gateway.SetAvatarActive(cfg.Avatar.Active)
	gateway.SetBlackboardActive(cfg.Blackboard.Active)

	// Actions
	thresholds, err := diversity.ParseThresholds(cfg.Diversity.IdleThresholds)
	if err != nil {
		slog.Error("parsing diversity thresholds", "error", err)
		return err
	}
	tracker := diversity.NewTracker(thresholds)

	registry := orchestrator.NewRegistry()
	deps := orchestrator.ActionDeps{
		Agent:     cfg.Agent.Name,
		Speaker:   gateway,
		Knowledge: store,
	}
	if engine != nil {
		deps.Memory = engine
	}
	if cfg.Archive.HasImportanceDefault {
		importance := cfg.Archive.DefaultImportance
		deps.Importance = &importance
	}
	if err := orchestrator.RegisterBuiltins(registry, deps); err != nil {
		slog.Error("registering actions", "error", err)
		return err
	}

	dispatcher, err := orchestrator.NewDispatcher(registry, tracker, cfg.Loop.DefaultAction)
	if err != nil {
		slog.Error("creating dispatcher", "error", err)
		return err
	}

	opts := []composer.Option{}
	if cfg.Agent.Persona != "" {
		opts = append(opts, composer.WithPersona(cfg.Agent.Persona))
	}
	if engine != nil {
		opts = append(opts, composer.WithStats(engine))
	}
	comp := composer.New(store, tracker, registry, opts...)

	scheduler, err := orchestrator.NewScheduler(orchestrator.Config{
		Agent:            cfg.Agent.Name,
		Interval:         cfg.Loop.Interval(),
		ReasoningTimeout: cfg.Loop.ReasoningTimeout,
	}, comp, reasoner, dispatcher, gateway, components...)
	if err != nil {
		slog.Error("creating scheduler", "error", err)
		return err
	}

	// HTTP
	memoryHandler := memory.NewHandler(engine)
	effectorHandler := effector.NewHandler(gateway, cfg.Agent.Name)
	loopHandler := orchestrator.NewHandler(scheduler, tracker)

	handlers := api.HandlerSet{
		LoopStatus:    loopHandler.Status,
		CreateMemory:  memoryHandler.Create,
		MemoryStats:   memoryHandler.Stats,
		SearchArchive: memoryHandler.SearchArchive,
		SweepMemories: memoryHandler.Sweep,
		Speak:         effectorHandler.Speak,
		PublishState:  effectorHandler.PublishState,
		GetActivation: effectorHandler.GetActivation,
		SetActivation: effectorHandler.SetActivation,
	}
	if cfg.API.JWTSecret != "" {
		handlers.AuthMiddleware = auth.Middleware(auth.NewJWTManager(cfg.API.JWTSecret, cfg.API.TokenExpiry))
	}

	routerCfg := api.RouterConfig{CORSAllowedOrigins: cfg.API.CORSOrigins}
	if redisClient != nil {
		routerCfg.EffectorRateLimiter = mw.NewRateLimiter(redisClient, "effector", cfg.API.RateLimit, cfg.API.RateLimitWindow).Middleware
	}
	router := api.NewRouter(api.Dependencies{DB: pool, Redis: redisClient, NATS: natsClient}, routerCfg, handlers)

	// Run
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("starting scheduler", "error", err)
		return err
	}

	srvErr := server.New(cfg.Server, router).Start(ctx)
	if srvErr != nil {
		slog.Error("server error", "error", srvErr)
		stop()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Loop.ReasoningTimeout+15*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		slog.Error("stopping scheduler", "error", err)
		return err
	}
	return srvErr
}

// newArchiveEngine builds the archiving engine. Any failure is logged and
// archiving stays off for the process lifetime.
func newArchiveEngine(cfg *config.Config, rcfg reasoning.Config, pool *pgxpool.Pool, client *goredis.Client) *memory.Engine {
	if pool == nil || client == nil {
		slog.Warn("archiving disabled, storage unavailable")
		return nil
	}

	var opts []memory.Option
	if cfg.Embedding.Model != "" {
		embedder, err := reasoning.NewEmbedder(rcfg, cfg.Embedding.Model)
		if err != nil {
			slog.Warn("embeddings disabled", "error", err)
		} else {
			opts = append(opts, memory.WithEmbedder(embedder))
		}
	}

	engine, err := memory.NewEngine(memory.ArchiveConfig{
		ActiveMemoryLimit:       cfg.Archive.ActiveLimit,
		TimeBasedThresholdHours: cfg.Archive.TimeThresholdHours,
		ImportanceFloor:         cfg.Archive.ImportanceFloor,
		StaleAccessHours:        cfg.Archive.StaleAccessHours,
		BatchSize:               cfg.Archive.BatchSize,
		IntervalMinutes:         cfg.Archive.IntervalMinutes,
	},
		memory.NewRedisActiveStore(client, cfg.Redis.Prefix),
		memory.NewPostgresArchive(pool),
		opts...,
	)
	if err != nil {
		slog.Error("archiving disabled", "error", err)
		return nil
	}
	return engine
}

// newAvatar picks the avatar transport. A nil avatar leaves speech
// unavailable.
func newAvatar(cfg *config.Config, publisher *inats.Publisher) (effector.Avatar, *ixmpp.Component, error) {
	switch cfg.Avatar.Transport {
	case "xmpp":
		var kp ixmpp.KnowledgePublisher
		if publisher != nil {
			kp = publisher
		}
		comp, err := ixmpp.NewComponent(cfg.XMPP, ixmpp.NewHandler(kp))
		if err != nil {
			return nil, nil, fmt.Errorf("creating XMPP component: %w", err)
		}
		return ixmpp.NewAvatar(comp, cfg.Agent.Name, cfg.Avatar.JID), comp, nil
	default:
		if cfg.Avatar.URL == "" {
			slog.Warn("AVATAR_URL is empty, speech is unavailable")
			return nil, nil, nil
		}
		return effector.NewHTTPAvatar(cfg.Avatar.URL, &http.Client{}), nil, nil
	}
}
