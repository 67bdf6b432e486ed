package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yodusanwo/ai-trip-planner/internal/agents"
	"github.com/yodusanwo/ai-trip-planner/internal/agents/openai"
	"github.com/yodusanwo/ai-trip-planner/internal/agents/serper"
	"github.com/yodusanwo/ai-trip-planner/internal/events"
	"github.com/yodusanwo/ai-trip-planner/internal/jobs"
	"github.com/yodusanwo/ai-trip-planner/internal/quota"
	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
	"github.com/yodusanwo/ai-trip-planner/internal/services/health"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/config"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server/middleware"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/storage/db"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/storage/object"
	localstore "github.com/yodusanwo/ai-trip-planner/internal/shared/storage/object/local"
	s3store "github.com/yodusanwo/ai-trip-planner/internal/shared/storage/object/s3"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
	"github.com/yodusanwo/ai-trip-planner/internal/trips"
)

const (
	reapInterval    = time.Minute
	sweepInterval   = 5 * time.Minute
	limiterIdleTTL  = 30 * time.Minute
	scriptedStepGap = 2 * time.Second
)

// App holds shared dependencies.
type App struct {
	Config       config.Config
	Router       *gin.Engine
	DB           *sql.DB
	Redis        redis.UniversalClient
	Store        object.ObjectStore
	Events       events.Publisher
	Pipeline     agents.Pipeline
	Registry     *jobs.Registry
	Ledger       *quota.Ledger
	Dispatcher   *trips.Dispatcher
	Orchestrator *trips.Orchestrator
	TripsService *trips.Service
	TripsHandler *trips.Handler
	UsageHandler *quota.Handler
	Health       *health.Service
	Limiter      *middleware.RateLimiter
}

// Build prepares every dependency and wires the router. Background loops are
// not started until Start is called.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	store, err := buildQuotaStore(ctx, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	resultStore, err := buildResultStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = resultStore

	publisher, err := buildEvents(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Events = publisher

	stages, err := NewStageTable(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Pipeline = NewPipeline(cfg)
	app.Registry = jobs.NewRegistry()
	app.Ledger = quota.NewLedger(store, quota.Limits{
		Hourly:         cfg.Quota.HourlyLimit,
		Daily:          cfg.Quota.DailyLimit,
		Weekly:         cfg.Quota.WeeklyLimit,
		CostCap:        cfg.Quota.CostCapUSD,
		CostPerRequest: cfg.Quota.CostPerTripUSD,
		CostWindow:     quota.ParseWindow(cfg.Quota.CostWindow),
		WarnRatio:      cfg.Quota.WarnRatio,
	})
	app.Dispatcher = trips.NewDispatcher(cfg.Jobs.MaxConcurrent)
	app.Orchestrator = &trips.Orchestrator{
		Registry: app.Registry,
		Pipeline: app.Pipeline,
		Stages:   stages,
		Tick:     cfg.Jobs.ProgressTick,
		Timeout:  cfg.Jobs.Timeout,
		Archive:  app.Store,
		Events:   app.Events,
	}
	validator := sanitize.New(sanitize.Rules{
		MaxDestinationLength:         cfg.Input.MaxDestinationLength,
		MaxSpecialRequirementsLength: cfg.Input.MaxSpecialRequirementsLength,
		MaxDurationDays:              cfg.Input.MaxDurationDays,
	})
	app.TripsService = trips.NewService(app.Registry, app.Ledger, validator, app.Dispatcher, app.Orchestrator)
	app.TripsHandler = trips.NewHandler(app.TripsService, trips.StreamConfig{
		PollInterval:   cfg.Jobs.StreamPollInterval,
		Heartbeat:      cfg.Jobs.StreamHeartbeat,
		AllowedOrigins: cfg.CORSAllowOrigin,
	})
	app.UsageHandler = quota.NewHandler(app.Ledger)

	app.Health = health.NewService(cfg.ServiceName, cfg.Version)
	app.Health.AddCheck("pipeline", app.Pipeline.Ready)
	if app.DB != nil {
		app.Health.AddCheck("database", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return app.DB.PingContext(pingCtx)
		})
	}
	if app.Redis != nil {
		app.Health.AddCheck("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return app.Redis.Ping(pingCtx).Err()
		})
	}

	app.Limiter = middleware.NewRateLimiter(nil)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:       cfg,
		TripsHandler: app.TripsHandler,
		UsageHandler: app.UsageHandler,
		Health:       app.Health,
		Limiter:      app.Limiter,
	})

	return app, nil
}

// Start launches the registry reaper and the rate limiter sweeper. They stop
// when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go a.Registry.Reap(ctx, a.Config.Jobs.Retention, reapInterval)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Limiter.Sweep(limiterIdleTTL)
			}
		}
	}()
}

// Drain stops accepting jobs and waits for in-flight ones until ctx expires.
func (a *App) Drain(ctx context.Context) error {
	if a.Dispatcher == nil {
		return nil
	}
	a.Dispatcher.Close()
	return a.Dispatcher.Wait(ctx)
}

// Close releases external connections.
func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			log.Printf("bootstrap: close events: %v", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("bootstrap: close redis: %v", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("bootstrap: close database: %v", err)
		}
	}
}

func buildQuotaStore(ctx context.Context, app *App) (quota.Store, error) {
	cfg := app.Config
	switch cfg.Quota.Store {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("QUOTA_STORE=postgres requires DATABASE_URL")
		}
		sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			if config.IsDevLike(cfg.Env) {
				log.Printf("bootstrap: database connect failed; using in-memory quota store: %v", err)
				return quota.NewMemoryStore(), nil
			}
			return nil, err
		}
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		app.DB = sqlDB
		return quota.NewPGStore(sqlDB), nil
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, fmt.Errorf("QUOTA_STORE=redis requires REDIS_URL")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if config.IsDevLike(cfg.Env) {
				log.Printf("bootstrap: redis ping failed; using in-memory quota store: %v", err)
				return quota.NewMemoryStore(), nil
			}
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		app.Redis = client
		return quota.NewRedisStore(client), nil
	default:
		return quota.NewMemoryStore(), nil
	}
}

func buildResultStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ResultStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("RESULT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "local":
		return localstore.New(cfg.LocalStoreDir), nil
	default:
		return nil, nil
	}
}

func buildEvents(cfg config.Config) (events.Publisher, error) {
	if strings.TrimSpace(cfg.NATSURL) == "" {
		return events.Noop{}, nil
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			log.Printf("bootstrap: nats connect failed; job events disabled: %v", err)
			return events.Noop{}, nil
		}
		return nil, err
	}
	return pub, nil
}

// NewStageTable loads STAGES_FILE or the embedded default table.
func NewStageTable(cfg config.Config) (*trips.StageTable, error) {
	if strings.TrimSpace(cfg.Jobs.StagesFile) == "" {
		return trips.DefaultStageTable()
	}
	return trips.LoadStageTable(cfg.Jobs.StagesFile)
}

// NewPipeline never fails. Missing credentials yield a pipeline whose
// Ready reports the problem, so submissions get a configuration error.
func NewPipeline(cfg config.Config) agents.Pipeline {
	if cfg.LLMProvider == "scripted" {
		telemetry.Warn("bootstrap.pipeline", map[string]any{"provider": "scripted"})
		return &agents.Scripted{StepDelay: scriptedStepGap}
	}

	completer, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithTimeout(cfg.OpenAITimeout),
	)
	if err != nil {
		telemetry.Warn("bootstrap.pipeline", map[string]any{"provider": cfg.LLMProvider, "error": err})
		return agents.NewCrew(nil)
	}

	var opts []agents.CrewOption
	if strings.TrimSpace(cfg.SearchAPIKey) != "" {
		searcher, err := serper.NewClient(cfg.SearchAPIKey, "")
		if err != nil {
			telemetry.Warn("bootstrap.search", map[string]any{"error": err})
		} else {
			opts = append(opts, agents.WithSearcher(searcher, 0))
		}
	}
	telemetry.Info("bootstrap.pipeline", map[string]any{
		"provider": cfg.LLMProvider,
		"model":    cfg.LLMModel,
		"search":   len(opts) > 0,
	})
	return agents.NewCrew(completer, opts...)
}
