// Package app wires storage, embedder, indexer and ranker from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/internal/config"
	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/internal/indexer"
	"github.com/dshills/jobsearch-mcp/internal/logging"
	"github.com/dshills/jobsearch-mcp/internal/ranker"
	"github.com/dshills/jobsearch-mcp/internal/retriever"
	"github.com/dshills/jobsearch-mcp/internal/storage"
	"github.com/dshills/jobsearch-mcp/internal/storage/postgres"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// App holds the long-lived components shared by the MCP server and the CLI.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    storage.Storage
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Engine   *ranker.Engine

	redis *redis.Client
}

// Open builds every component from cfg.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	store, err := OpenStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	embCfg := cfg.Embedding.Embedder()
	embCfg.Logger = logger

	var rdb *redis.Client
	if addr := cfg.Embedding.Redis.Addr; addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Embedding.Redis.Password,
			DB:       cfg.Embedding.Redis.DB,
		})
		embCfg.Shared = embedder.NewRedisCache(rdb, cfg.Embedding.Redis.Prefix, cfg.Embedding.Redis.TTL)
	}

	emb, err := embedder.New(embCfg)
	if err != nil {
		_ = store.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	a, err := New(cfg, store, emb, logger)
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	a.redis = rdb
	return a, nil
}

// New assembles an App around an existing store and embedder.
func New(cfg *config.Config, store storage.Storage, emb embedder.Embedder, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	chk, err := chunker.New(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	idx, err := indexer.New(store, emb, &indexer.Config{
		PoolSize: cfg.Ingest.PoolSize,
		Chunker:  chk,
		Logger:   logger.Named("indexer"),
	})
	if err != nil {
		return nil, err
	}

	retrieverOpts := []retriever.Option{
		retriever.WithLimit(cfg.Ranking.TopChunksPerQuery),
		retriever.WithLogger(logger.Named("retriever")),
	}
	engine, err := ranker.New(
		retriever.NewLexical(store, retrieverOpts...),
		retriever.NewSemantic(store, emb, retrieverOpts...),
		cfg.Ranking.Fusion(),
		ranker.WithLogger(logger.Named("ranker")),
		ranker.WithCache(cfg.Ranking.CacheSize),
	)
	if err != nil {
		idx.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Embedder: emb,
		Indexer:  idx,
		Engine:   engine,
	}, nil
}

// OpenStorage opens the configured backend and brings its schema up to date.
func OpenStorage(ctx context.Context, cfg config.DatabaseConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(cfg.Postgres())
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil

	case config.DriverSQLite, "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// RankFiltered resolves the structured part of f to a job allowlist and
// ranks query within it. A filter that matches no job yields no results.
func (a *App) RankFiltered(ctx context.Context, query string, f types.Filter, opts ranker.RankOptions) ([]types.RankedJob, error) {
	query, err := ranker.ValidateRequest(query, opts)
	if err != nil {
		return nil, err
	}
	opts.JobIDs = f.JobIDs

	criteria := f
	criteria.JobIDs = nil
	if criteria.IsEmpty() {
		return a.Engine.Rank(ctx, query, opts)
	}

	pred, err := filter.Build(f)
	if err != nil {
		return nil, err
	}
	matches, err := a.Store.SelectJobs(ctx, pred, 0)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []types.RankedJob{}, nil
	}

	opts.JobIDs = make([]string, len(matches))
	for i, m := range matches {
		opts.JobIDs[i] = m.Job.ID
	}
	return a.Engine.Rank(ctx, query, opts)
}

// Close releases every component and joins their errors.
func (a *App) Close() error {
	a.Indexer.Close()
	var errs []error
	errs = append(errs, a.Embedder.Close(), a.Store.Close())
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
