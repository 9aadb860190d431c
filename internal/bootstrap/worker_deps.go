package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"triage_worker/adapter/in/http"
	"triage_worker/adapter/out/graph"
	"triage_worker/adapter/out/messaging"
	"triage_worker/adapter/out/mongodb"
	"triage_worker/adapter/out/persistence"
	"triage_worker/config"
	"triage_worker/core/agent/llm"
	"triage_worker/core/port/out"
	"triage_worker/core/service/classification"
	"triage_worker/core/service/preprocess"
	"triage_worker/core/service/triage"
	"triage_worker/infra/database"
	"triage_worker/pkg/cache"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
)

const (
	connectTimeout = 15 * time.Second
	metricsWindow  = 1000
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Pure core
	Normalizer *preprocess.Normalizer
	Resolver   *classification.LabelResolver
	Scorer     out.CategoryScorer

	// Sinks (nil when the store is not configured)
	Verdicts out.VerdictRepository
	Examples out.TrainingExampleStore
	Graph    out.VerdictGraph
	Producer *messaging.RedisProducer
	Streams  messaging.Streams

	// Services
	Metrics       *metrics.TriageMetrics
	TriageService *triage.Service
}

// NewDependencies connects the configured stores and wires the triage
// service. Postgres failures are fatal; the other stores degrade to
// disabled with a warning.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	// Resolver
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, nil, err
	}
	deps.Resolver = resolver
	deps.Normalizer = preprocess.NewNormalizer()

	// Scorer (OpenAI)
	if cfg.OpenAIAPIKey != "" {
		client := llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
		deps.Scorer = llm.NewCategoryScorer(client, llm.ScorerConfig{MaxInput: cfg.LLMMaxInput})
		logger.Info("LLM scorer enabled (model: %s)", client.Model())
	} else {
		logger.Warn("OPENAI_API_KEY not set, resolving on keywords only")
	}

	// Database (pgxpool + sqlx)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPostgresConfig())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.DB = db
		cleanups = append(cleanups, db.Close)

		if err := database.EnsureSchema(ctx, db); err != nil {
			cleanup()
			return nil, nil, err
		}

		sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.SQLDB = sqlDB
		cleanups = append(cleanups, func() { sqlDB.Close() })
		deps.Verdicts = persistence.NewVerdictAdapter(sqlDB)
		logger.Info("Audit log enabled (postgres)")
	}

	// Redis
	deps.Streams = messaging.Streams{
		Inbound: cfg.StreamInbound,
		Review:  cfg.StreamReview,
		Routed:  cfg.StreamRouted,
		MaxLen:  cfg.StreamMaxLen,
	}
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL, database.DefaultRedisConfig())
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
			deps.Producer = messaging.NewRedisProducer(redisClient, deps.Streams)

			if deps.Scorer != nil && cfg.ScoreCacheTTL > 0 {
				scoreCache := cache.NewRedisCache(redisClient, "triage:scores:", cfg.ScoreCacheTTL)
				deps.Scorer = llm.NewCachedScorer(deps.Scorer, scoreCache)
				logger.Info("Scorer cache enabled (ttl: %v)", cfg.ScoreCacheTTL)
			}
		}
	}

	// MongoDB
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			training := mongodb.NewTrainingAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := training.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to ensure MongoDB indexes: %v", err)
			}
			deps.Examples = training
		}
	}

	// Neo4j
	if cfg.Neo4jURL != "" {
		neo4jDriver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("Neo4j connection failed: %v", err)
		} else {
			deps.Neo4j = neo4jDriver
			cleanups = append(cleanups, func() {
				neo4jDriver.Close(context.Background())
			})

			routing := graph.NewRoutingAdapter(neo4jDriver, cfg.Neo4jDatabase)
			if err := routing.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to ensure Neo4j indexes: %v", err)
			}
			deps.Graph = routing
		}
	}

	deps.Metrics = metrics.NewTriageMetrics(metricsWindow)
	svc, err := triage.NewService(deps.serviceDeps(), &triage.Config{
		ScorerTimeout: cfg.ScorerTimeout,
		BatchWorkers:  cfg.BatchWorkers,
		MaxBatchSize:  cfg.MaxBatchSize,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.TriageService = svc

	return deps, cleanup, nil
}

func newResolver(cfg *config.Config) (*classification.LabelResolver, error) {
	var (
		catalog *classification.RuleCatalog
		err     error
	)
	if cfg.RulesPath != "" {
		catalog, err = classification.LoadRuleCatalog(cfg.RulesPath)
	} else {
		catalog, err = classification.DefaultRuleCatalog()
	}
	if err != nil {
		return nil, err
	}
	return classification.NewLabelResolver(catalog, &classification.ResolverConfig{
		MinConfidence:   cfg.ResolverMinConfidence,
		AmbiguityMargin: cfg.ResolverAmbiguityMargin,
	})
}

// serviceDeps converts optional sinks to interface values. A typed nil
// pointer in an interface would not compare equal to nil in the service.
func (d *Dependencies) serviceDeps() triage.Deps {
	deps := triage.Deps{
		Normalizer: d.Normalizer,
		Resolver:   d.Resolver,
		Scorer:     d.Scorer,
		Verdicts:   d.Verdicts,
		Examples:   d.Examples,
		Graph:      d.Graph,
		Metrics:    d.Metrics,
	}
	if d.Producer != nil {
		deps.Queue = d.Producer
		deps.Inbound = d.Producer
	}
	return deps
}

// HealthChecks returns a ping per configured store.
func (d *Dependencies) HealthChecks() map[string]http.HealthCheck {
	checks := make(map[string]http.HealthCheck)
	if d.DB != nil {
		checks["postgres"] = d.DB.Ping
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	if d.MongoDB != nil {
		checks["mongodb"] = func(ctx context.Context) error { return d.MongoDB.Ping(ctx, nil) }
	}
	if d.Neo4j != nil {
		checks["neo4j"] = d.Neo4j.VerifyConnectivity
	}
	return checks
}

// StatsSources returns resource stats reported next to the triage metrics.
func (d *Dependencies) StatsSources() map[string]http.StatsSource {
	sources := make(map[string]http.StatsSource)
	if d.DB != nil {
		sources["postgres_pool"] = func() any { return database.GetPoolStats(d.DB) }
	}
	if d.Redis != nil {
		sources["redis_pool"] = func() any { return d.Redis.PoolStats() }
	}
	return sources
}
