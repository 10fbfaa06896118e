package commands

import (
	"fmt"

	"github.com/dkwon/alpharank/internal/catalog"
	"github.com/dkwon/alpharank/internal/engine"
	"github.com/dkwon/alpharank/internal/fetch"
	"github.com/dkwon/alpharank/internal/provider"
	"github.com/dkwon/alpharank/internal/sandbox"
	"github.com/dkwon/alpharank/internal/store"
	"github.com/dkwon/alpharank/pkg/config"
	"github.com/dkwon/alpharank/pkg/database"
	"github.com/dkwon/alpharank/pkg/httputil"
	"github.com/dkwon/alpharank/pkg/logger"
	"github.com/dkwon/alpharank/pkg/redis"
)

// app holds the wired dependency graph shared by the long-running
// commands. Short commands that need no database build their pieces
// directly instead.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	registry *catalog.Registry
	cache    *fetch.Cache
	engine   *engine.Engine
}

// newApp wires the full dependency graph.
func newApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (optional L2 cache)
	redisClient, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	var l2 *redis.Cache
	if redisClient.Enabled() {
		l2 = redis.NewCache(redisClient, "fetch")
	}

	// 5. Load the data source catalog
	registry, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Catalog.Path, err)
	}

	// 6. Create providers and the fetch layer
	httpClient := httputil.New(log)
	providers := map[catalog.SourceKind]provider.Provider{
		catalog.KindHTTP:   provider.NewHTTPProvider(httpClient, log),
		catalog.KindScrape: provider.NewScrapeProvider(httpClient, log),
		catalog.KindStatic: provider.NewStaticProvider(),
	}
	cache := fetch.NewCache(cfg.Fetcher.CacheMaxSize, l2)
	fetcher := fetch.New(providers, cache, cfg.Fetcher, log)

	// 7. Create the sandbox
	validator := sandbox.NewValidator(cfg.Sandbox)
	executor := sandbox.NewExecutor(cfg.Sandbox, log)

	// 8. Create repositories
	factorRepo := store.NewFactorRepository(db.Pool)
	strategyRepo := store.NewStrategyRepository(db.Pool)
	universeRepo := store.NewUniverseRepository(db.Pool)
	runRepo := store.NewRunRepository(db.Pool)

	// 9. Create the engine
	eng := engine.New(engine.Deps{
		Resolver:   catalog.NewResolver(registry),
		Fetcher:    fetcher,
		Validator:  validator,
		Executor:   executor,
		Factors:    factorRepo,
		Strategies: strategyRepo,
		Universe:   universeRepo,
		Runs:       runRepo,
		Config:     cfg.Engine,
		Logger:     log,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    redisClient,
		registry: registry,
		cache:    cache,
		engine:   eng,
	}, nil
}

// Close releases external connections.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
