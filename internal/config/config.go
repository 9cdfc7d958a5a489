package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	API        APIConfig
	XMPP       XMPPConfig
	Log        LogConfig
	Agent      AgentConfig
	Loop       LoopConfig
	Archive    ArchiveConfig
	Reasoning  ReasoningConfig
	Embedding  EmbeddingConfig
	Avatar     AvatarConfig
	Blackboard BlackboardConfig
	Effector   EffectorConfig
	Knowledge  KnowledgeConfig
	Diversity  DiversityConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MinConns       int32
	MaxConnIdle    time.Duration
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig describes the blackboard connection. StateHistory bounds how
// many state events are retained per agent subject.
type NATSConfig struct {
	URL             string
	Name            string
	StateHistory    int64
	KnowledgeMaxAge time.Duration
}

// APIConfig controls the operator HTTP surface.
type APIConfig struct {
	JWTSecret       string
	TokenExpiry     time.Duration
	CORSOrigins     []string
	RateLimit       int
	RateLimitWindow time.Duration
}

// XMPPConfig describes the external component connection used by the XMPP
// avatar transport. Empty Host disables the component.
type XMPPConfig struct {
	Host   string
	Port   int
	Domain string
	Secret string
}

func (c XMPPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string
	Format string
}

type AgentConfig struct {
	Name    string
	Persona string
}

type LoopConfig struct {
	IntervalMs       int
	ReasoningTimeout time.Duration
	DefaultAction    string
}

func (c LoopConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ArchiveConfig is passed through untouched; the memory package validates it
// so a bad value disables archiving instead of aborting startup.
type ArchiveConfig struct {
	ActiveLimit          int
	TimeThresholdHours   float64
	ImportanceFloor      float64
	StaleAccessHours     float64
	BatchSize            int
	IntervalMinutes      float64
	DefaultImportance    float64
	HasImportanceDefault bool
}

type ReasoningConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

// EmbeddingConfig enables vector search on the archive when Model is set.
type EmbeddingConfig struct {
	Model string
}

type AvatarConfig struct {
	Transport string
	URL       string
	JID       string
	Active    bool
}

type BlackboardConfig struct {
	Active bool
}

type EffectorConfig struct {
	Timeout time.Duration
}

type KnowledgeConfig struct {
	Capacity int
}

// DiversityConfig holds idle thresholds as "ACTION:N" pairs.
type DiversityConfig struct {
	IdleThresholds string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MinConns:       int32(k.Int("db.min.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
			Prefix:   k.String("redis.prefix"),
		},
		NATS: NATSConfig{
			URL:          k.String("nats.url"),
			Name:         k.String("nats.name"),
			StateHistory: k.Int64("nats.state.history"),
		},
		API: APIConfig{
			JWTSecret:   k.String("api.jwt.secret"),
			CORSOrigins: splitList(k.String("api.cors.origins")),
			RateLimit:   k.Int("api.rate.limit"),
		},
		XMPP: XMPPConfig{
			Host:   k.String("xmpp.host"),
			Port:   k.Int("xmpp.port"),
			Domain: k.String("xmpp.domain"),
			Secret: k.String("xmpp.secret"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Agent: AgentConfig{
			Name:    k.String("agent.name"),
			Persona: k.String("agent.persona"),
		},
		Loop: LoopConfig{
			IntervalMs:    k.Int("loop.interval.ms"),
			DefaultAction: k.String("loop.default.action"),
		},
		Archive: ArchiveConfig{
			ActiveLimit:        k.Int("archive.active.limit"),
			TimeThresholdHours: k.Float64("archive.time.threshold.hours"),
			ImportanceFloor:    k.Float64("archive.importance.floor"),
			StaleAccessHours:   k.Float64("archive.stale.access.hours"),
			BatchSize:          k.Int("archive.batch.size"),
			IntervalMinutes:    k.Float64("archive.interval.minutes"),
		},
		Reasoning: ReasoningConfig{
			BaseURL:    k.String("reasoning.base.url"),
			APIKey:     k.String("reasoning.api.key"),
			Model:      k.String("reasoning.model"),
			MaxRetries: k.Int("reasoning.max.retries"),
		},
		Embedding: EmbeddingConfig{
			Model: k.String("embedding.model"),
		},
		Avatar: AvatarConfig{
			Transport: k.String("avatar.transport"),
			URL:       k.String("avatar.url"),
			JID:       k.String("avatar.jid"),
			Active:    k.Bool("avatar.active"),
		},
		Blackboard: BlackboardConfig{
			Active: k.Bool("blackboard.active"),
		},
		Knowledge: KnowledgeConfig{
			Capacity: k.Int("knowledge.capacity"),
		},
		Diversity: DiversityConfig{
			IdleThresholds: k.String("diversity.idle.thresholds"),
		},
	}

	if k.Exists("memory.default.importance") {
		cfg.Archive.DefaultImportance = k.Float64("memory.default.importance")
		cfg.Archive.HasImportanceDefault = true
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "mindloop"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "mindloop"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MinConns == 0 {
		cfg.DB.MinConns = 1
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "mindloop:memory"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.StateHistory == 0 {
		cfg.NATS.StateHistory = 100
	}
	if cfg.API.RateLimit == 0 {
		cfg.API.RateLimit = 30
	}
	if cfg.XMPP.Port == 0 {
		cfg.XMPP.Port = 5275
	}
	if cfg.XMPP.Domain == "" {
		cfg.XMPP.Domain = "mindloop.local"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "mindloop"
	}
	if cfg.Loop.IntervalMs == 0 {
		cfg.Loop.IntervalMs = 30000
	}
	if cfg.Loop.DefaultAction == "" {
		cfg.Loop.DefaultAction = "SPEAK"
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = "gpt-4o-mini"
	}
	if cfg.Reasoning.MaxRetries == 0 {
		cfg.Reasoning.MaxRetries = 2
	}
	if cfg.Avatar.Transport == "" {
		cfg.Avatar.Transport = "http"
	}
	if cfg.Knowledge.Capacity == 0 {
		cfg.Knowledge.Capacity = 50
	}
	if cfg.Diversity.IdleThresholds == "" {
		cfg.Diversity.IdleThresholds = "SPEAK:4,RESEARCH:5,REFLECT:6"
	}

	if cfg.NATS.Name == "" {
		cfg.NATS.Name = cfg.Agent.Name
	}

	// Parse durations
	cfg.DB.MaxConnIdle, err = durationOr(k, "db.max.conn.idle", "5m")
	if err != nil {
		return nil, err
	}
	cfg.NATS.KnowledgeMaxAge, err = durationOr(k, "nats.knowledge.max.age", "24h")
	if err != nil {
		return nil, err
	}
	cfg.Loop.ReasoningTimeout, err = durationOr(k, "loop.reasoning.timeout", "2m")
	if err != nil {
		return nil, err
	}
	cfg.Effector.Timeout, err = durationOr(k, "effector.timeout", "10s")
	if err != nil {
		return nil, err
	}
	cfg.API.TokenExpiry, err = durationOr(k, "api.token.expiry", "24h")
	if err != nil {
		return nil, err
	}
	cfg.API.RateLimitWindow, err = durationOr(k, "api.rate.window", "1m")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationOr(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
