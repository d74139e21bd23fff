package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/app"
	"github.com/dshills/jobsearch-mcp/internal/config"
	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/internal/logging"
	"github.com/dshills/jobsearch-mcp/internal/mcp"
	"github.com/dshills/jobsearch-mcp/internal/metrics"
	"github.com/dshills/jobsearch-mcp/internal/ranker"
	"github.com/dshills/jobsearch-mcp/internal/storage"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = printVersion

	return &cli.App{
		Name:    "jobsearch",
		Usage:   "Hybrid job search and ranking over an MCP stdio server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Expose Prometheus metrics on this address (e.g. :9090)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest job postings from a JSON file",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
			},
			{
				Name:      "rank",
				Usage:     "Rank jobs against a free-text query",
				ArgsUsage: "<query>",
				Action:    rankCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return (0 for no limit)",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Drop jobs whose fused score is below this value",
					},
				}, filterFlags()...),
			},
			{
				Name:   "filter",
				Usage:  "Select jobs by structured criteria",
				Action: filterCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "search",
						Usage: "Free-text search over title and summary",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 20,
					},
				}, filterFlags()...),
			},
			{
				Name:      "similar",
				Usage:     "Find jobs by semantic similarity only",
				ArgsUsage: "<query>",
				Action:    similarCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: ranker.DefaultSimilarLimit,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum similarity",
						Value: ranker.DefaultSimilarMinScore,
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the index schema",
				Action: migrateCommand,
			},
			{
				Name:   "stats",
				Usage:  "Print index statistics",
				Action: statsCommand,
			},
			{
				Name:      "embed",
				Usage:     "Embed a text with the configured provider",
				ArgsUsage: "<text>",
				Action:    embedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "document",
						Usage: "Embed as a document instead of a query",
					},
				},
			},
		},
	}
}

func printVersion(c *cli.Context) {
	w := c.App.Writer
	fmt.Fprintf(w, "JobSearch MCP Server\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
	fmt.Fprintf(w, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "type", Usage: "Employment type (repeatable)"},
		&cli.StringSliceFlag{Name: "field", Usage: "Occupational field (repeatable)"},
		&cli.StringSliceFlag{Name: "domain", Usage: "Industry domain (repeatable)"},
		&cli.StringSliceFlag{Name: "homeoffice", Usage: "Remote work option (repeatable)"},
		&cli.StringSliceFlag{Name: "job-id", Usage: "Restrict to these job ids (repeatable)"},
		&cli.IntFlag{Name: "hours-min", Usage: "Minimum weekly working hours", Value: -1},
		&cli.IntFlag{Name: "hours-max", Usage: "Maximum weekly working hours", Value: -1},
	}
}

func filterFromFlags(c *cli.Context) types.Filter {
	f := types.Filter{
		Search:     c.String("search"),
		Types:      c.StringSlice("type"),
		Fields:     c.StringSlice("field"),
		Domains:    c.StringSlice("domain"),
		Homeoffice: c.StringSlice("homeoffice"),
		JobIDs:     c.StringSlice("job-id"),
	}

	lo, hi := c.Int("hours-min"), c.Int("hours-max")
	switch {
	case lo >= 0 && hi >= 0:
		f.WorkingHours = &[2]int{lo, hi}
	case lo >= 0:
		f.WorkingHours = types.HoursFrom(lo)
	case hi >= 0:
		f.WorkingHours = &[2]int{0, hi}
	}
	return f
}

// setup loads configuration and builds the stderr logger.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openApp(c *cli.Context) (*app.App, error) {
	cfg, logger, err := setup(c)
	if err != nil {
		return nil, err
	}
	return app.Open(c.Context, cfg, logger)
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one <%s> argument", name)
	}
	return c.Args().First(), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("vector_extension", storage.VectorExtensionAvailable))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := mcp.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	addr := cfg.Metrics.Addr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}
	if addr != "" {
		metricsSrv := serveMetrics(addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("MCP server ready, listening on stdio")
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func ingestCommand(c *cli.Context) error {
	path, err := requireArg(c, "file")
	if err != nil {
		return err
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.Indexer.IngestFile(c.Context, path)
	if stats != nil {
		if werr := writeJSON(c.App.Writer, stats); werr != nil {
			return werr
		}
	}
	return err
}

func rankCommand(c *cli.Context) error {
	query, err := requireArg(c, "query")
	if err != nil {
		return err
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ranked, err := a.RankFiltered(c.Context, query, filterFromFlags(c), ranker.RankOptions{
		Limit:    c.Int("limit"),
		MinScore: c.Float64("min-score"),
	})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, ranked)
}

func filterCommand(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pred, err := filter.Build(filterFromFlags(c))
	if err != nil {
		return err
	}
	matches, err := a.Store.SelectJobs(c.Context, pred, c.Int("limit"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, matches)
}

func similarCommand(c *cli.Context) error {
	query, err := requireArg(c, "query")
	if err != nil {
		return err
	}

	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	similar, err := a.Engine.Similar(c.Context, query, c.Int("limit"), c.Float64("min-score"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, similar)
}

// migrateCommand relies on app.OpenStorage migrating on open.
func migrateCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	store, err := app.OpenStorage(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st, err := store.Stats(c.Context)
	if err != nil {
		return err
	}
	logger.Info("schema up to date",
		zap.String("backend", st.Backend),
		zap.String("schema_version", st.SchemaVersion))
	return nil
}

func statsCommand(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	st, err := a.Store.Stats(c.Context)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, st)
}

func embedCommand(c *cli.Context) error {
	text, err := requireArg(c, "text")
	if err != nil {
		return err
	}

	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	emb, err := embedder.New(cfg.Embedding.Embedder())
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	mode := embedder.ModeQuery
	if c.Bool("document") {
		mode = embedder.ModeDocument
	}

	vec, err := emb.Embed(c.Context, text, mode)
	if err != nil {
		return err
	}
	logger.Debug("embedded", zap.String("provider", emb.Provider()), zap.Int("dimension", len(vec)))
	return writeJSON(c.App.Writer, map[string]interface{}{
		"provider":  emb.Provider(),
		"model":     emb.Model(),
		"dimension": len(vec),
		"vector":    vec,
	})
}
