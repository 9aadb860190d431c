package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"triage_worker/pkg/apperr"
)

// generateWorkerID creates a unique consumer name using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Stores (empty URL disables the store)
	DatabaseURL string
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// JWT (empty disables auth on /v1)
	JWTSecret string

	// OpenAI scorer (empty key disables the scorer)
	OpenAIAPIKey   string
	LLMBaseURL     string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMMaxInput    int
	ScorerTimeout  time.Duration
	ScoreCacheTTL  time.Duration // 0 disables the Redis score cache

	// Resolver
	RulesPath               string // empty uses the embedded catalogue
	ResolverMinConfidence   float64
	ResolverAmbiguityMargin float64

	// Triage
	BatchWorkers int
	MaxBatchSize int

	// Per-caller limit on /v1/triage (0 disables)
	RateLimitPerSecond int
	RateLimitBurst     int

	// Streams
	StreamInbound  string
	StreamReview   string
	StreamRouted   string
	StreamMaxLen   int64
	ConsumerGroup  string
	ConsumerName   string
	ConsumerBatch  int
	ConsumerBlock  time.Duration
	ConsumerRetry  int
	PendingCheck   time.Duration
	PendingIdle    time.Duration
	BodyLimitBytes int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),

		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 256),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0),
		LLMMaxInput:    getEnvInt("LLM_MAX_INPUT", 4000),
		ScorerTimeout:  time.Duration(getEnvInt("SCORER_TIMEOUT_MS", 5000)) * time.Millisecond,
		ScoreCacheTTL:  time.Duration(getEnvInt("SCORE_CACHE_TTL_SEC", 86400)) * time.Second,

		RulesPath:               getEnv("RULES_PATH", ""),
		ResolverMinConfidence:   getEnvFloat("RESOLVER_MIN_CONFIDENCE", 0.50),
		ResolverAmbiguityMargin: getEnvFloat("RESOLVER_AMBIGUITY_MARGIN", 0.25),

		BatchWorkers: getEnvInt("BATCH_WORKERS", 8),
		MaxBatchSize: getEnvInt("MAX_BATCH_SIZE", 500),

		RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SEC", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		StreamInbound:  getEnv("STREAM_INBOUND", "triage:inbound"),
		StreamReview:   getEnv("STREAM_REVIEW", "triage:review"),
		StreamRouted:   getEnv("STREAM_ROUTED", "triage:routed"),
		StreamMaxLen:   int64(getEnvInt("STREAM_MAX_LEN", 100000)),
		ConsumerGroup:  getEnv("CONSUMER_GROUP", "triage-workers"),
		ConsumerName:   getEnv("CONSUMER_NAME", generateWorkerID()),
		ConsumerBatch:  getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlock:  time.Duration(getEnvInt("CONSUMER_BLOCK_MS", 5000)) * time.Millisecond,
		ConsumerRetry:  getEnvInt("CONSUMER_MAX_RETRIES", 3),
		PendingCheck:   time.Duration(getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30)) * time.Second,
		PendingIdle:    time.Duration(getEnvInt("CONSUMER_PENDING_IDLE_SEC", 120)) * time.Second,
		BodyLimitBytes: getEnvInt("BODY_LIMIT_BYTES", 4*1024*1024),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.ResolverMinConfidence <= 0 || c.ResolverMinConfidence > 1:
		return apperr.ConfigError(fmt.Sprintf("RESOLVER_MIN_CONFIDENCE must be in (0,1], got %v", c.ResolverMinConfidence))
	case c.ResolverAmbiguityMargin < 0 || c.ResolverAmbiguityMargin > 1:
		return apperr.ConfigError(fmt.Sprintf("RESOLVER_AMBIGUITY_MARGIN must be in [0,1], got %v", c.ResolverAmbiguityMargin))
	case c.BatchWorkers <= 0:
		return apperr.ConfigError("BATCH_WORKERS must be positive")
	case c.MaxBatchSize <= 0:
		return apperr.ConfigError("MAX_BATCH_SIZE must be positive")
	case c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0:
		return apperr.ConfigError("RATE_LIMIT_PER_SEC and RATE_LIMIT_BURST must not be negative")
	case c.Neo4jURL != "" && c.Neo4jPassword == "":
		return apperr.ConfigError("NEO4J_PASSWORD is required when NEO4J_URL is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
