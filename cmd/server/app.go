package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lightlogic3/popflow/internal/config"
	"github.com/lightlogic3/popflow/internal/engine"
	"github.com/lightlogic3/popflow/internal/events"
	"github.com/lightlogic3/popflow/internal/platform/gemini"
	"github.com/lightlogic3/popflow/internal/platform/postgres"
	"github.com/lightlogic3/popflow/internal/platform/redis"
	"github.com/lightlogic3/popflow/internal/scheduler"
	"github.com/lightlogic3/popflow/internal/service/auth"
	"github.com/lightlogic3/popflow/internal/session"
	"github.com/lightlogic3/popflow/internal/store"
	"github.com/lightlogic3/popflow/internal/task"
)

// application holds every long-lived service, constructed once at process
// start and passed by handle. There are no package-level singletons.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	redisClient *goredis.Client

	jobStore    store.JobStore
	jobRunStore store.JobRunStore
	games       store.GameSessionStore
	messages    store.GameMessageStore
	subtasks    store.SubtaskStore

	sessions   *session.Store
	manager    *task.Manager
	scheduler  *scheduler.Scheduler
	engine     *engine.Engine
	creator    engine.SubtaskCreator
	jwtService auth.JWTService
}

// newApplication wires the full dependency graph from configuration.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	app.jobStore = postgres.NewPostgresJobStore(db)
	app.jobRunStore = postgres.NewPostgresJobRunStore(db)
	app.games = postgres.NewPostgresGameSessionStore(db)
	app.messages = postgres.NewPostgresGameMessageStore(db)
	app.subtasks = postgres.NewPostgresSubtaskStore(db)

	cache, err := app.setupCache(ctx)
	if err != nil {
		return nil, err
	}
	app.sessions = session.NewStore(cache, logger)

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("create JWT service: %w", err)
	}

	workerCount := cfg.Task.WorkerCount
	if workerCount <= 0 {
		workerCount = 8
	}
	pool := task.NewWorkerPool(workerCount, logger)

	managerCfg := task.DefaultManagerConfig()
	if cfg.Task.ShutdownGraceSeconds > 0 {
		managerCfg.ShutdownGrace = time.Duration(cfg.Task.ShutdownGraceSeconds) * time.Second
	}
	app.manager = task.NewManager(pool, managerCfg, logger)
	app.manager.SetAuditor(scheduler.NewTaskAuditor(app.jobStore, app.jobRunStore))

	geminiClient, err := gemini.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	app.creator = gemini.NewSubtaskCreator(geminiClient)

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(newPersistHandler(app.manager, app.messages, logger))

	app.engine = engine.NewEngine(
		app.sessions,
		app.games,
		app.messages,
		app.subtasks,
		gemini.NewChatModel(geminiClient),
		gemini.NewJudge(geminiClient),
		app.creator,
		emitter,
		engine.DefaultConfig(),
		logger,
	)

	registry := scheduler.NewRegistry()
	if err := app.registerJobFuncs(registry); err != nil {
		return nil, fmt.Errorf("register job functions: %w", err)
	}

	schedCfg := scheduler.DefaultConfig()
	if cfg.Scheduler.TickSeconds > 0 {
		schedCfg.Tick = time.Duration(cfg.Scheduler.TickSeconds) * time.Second
	}
	app.scheduler = scheduler.NewScheduler(app.jobStore, app.jobRunStore, registry, schedCfg, logger)

	return app, nil
}

// setupCache picks the cache backend: Redis when an address is
// configured, the in-process cache otherwise.
func (app *application) setupCache(ctx context.Context) (session.Cache, error) {
	if app.config.Cache.Addr == "" {
		app.logger.Info("using in-process session cache")
		return session.NewMemoryCache(), nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     app.config.Cache.Addr,
		Password: app.config.Cache.Password,
		DB:       app.config.Cache.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	app.redisClient = client
	app.logger.Info("redis session cache connected", "addr", app.config.Cache.Addr)
	return redis.NewCache(client), nil
}

// start brings up the scheduler (re-arming persisted jobs first) and
// ensures the built-in maintenance jobs exist.
func (app *application) start(ctx context.Context) error {
	if err := app.scheduler.LoadJobs(ctx); err != nil {
		return fmt.Errorf("load persisted jobs: %w", err)
	}
	if err := app.ensureMaintenanceJobs(ctx); err != nil {
		return fmt.Errorf("ensure maintenance jobs: %w", err)
	}
	app.scheduler.Start()
	return nil
}

// cleanup stops background services and closes connections, in reverse
// dependency order. Each step gets its own bounded deadline.
func (app *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.scheduler.Stop(ctx); err != nil {
		app.logger.Warn("scheduler stop incomplete", "error", err)
	}
	if err := app.manager.Shutdown(ctx); err != nil {
		app.logger.Warn("task manager shutdown incomplete", "error", err)
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn("failed to close database", "error", err)
	}
}
