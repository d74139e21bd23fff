package ranker

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/jobsearch-mcp/internal/logging"
	"github.com/dshills/jobsearch-mcp/internal/metrics"
	"github.com/dshills/jobsearch-mcp/internal/retriever"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// Similarity lookup bounds.
const (
	DefaultSimilarLimit    = 5
	MaxSimilarLimit        = 10
	DefaultSimilarMinScore = 0.5
)

const tracerName = "github.com/dshills/jobsearch-mcp/internal/ranker"

// RankOptions scope and cut a ranking call.
type RankOptions struct {
	// JobIDs restricts retrieval to these jobs; empty means all jobs.
	JobIDs []string

	// Limit caps the result; 0 means no cap.
	Limit int

	// MinScore drops jobs whose fused score is below it.
	MinScore float64
}

// ValidateRequest trims query and checks it and opts. It returns the trimmed
// query, or a *types.ValidationError.
func ValidateRequest(query string, opts RankOptions) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", types.NewValidationError("query", "query cannot be empty")
	}
	if err := opts.validate(); err != nil {
		return "", err
	}
	return query, nil
}

func (o RankOptions) validate() error {
	if o.Limit < 0 {
		return types.NewValidationError("limit", "must be >= 0, got %d", o.Limit)
	}
	if o.MinScore < 0 || o.MinScore > 1 || math.IsNaN(o.MinScore) {
		return types.NewValidationError("min_score", "must be within [0,1], got %v", o.MinScore)
	}
	return nil
}

// strictSearcher is implemented by semantic channels that can report
// embedding failures instead of degrading.
type strictSearcher interface {
	Search(ctx context.Context, query string, jobIDs []string) ([]types.ChunkHit, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithCache keeps the last size ranked results in memory. Call
// InvalidateCache after the index changes.
func WithCache(size int) Option {
	return func(e *Engine) {
		if size <= 0 {
			return
		}
		cache, err := lru.New[[32]byte, []types.RankedJob](size)
		if err != nil {
			return
		}
		e.cache = cache
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine runs both retrieval channels and fuses their hits.
type Engine struct {
	lexical  retriever.Retriever
	semantic retriever.Retriever
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer

	cacheMu sync.RWMutex
	cache   *lru.Cache[[32]byte, []types.RankedJob]
}

// New creates an Engine over the two channels.
func New(lexical, semantic retriever.Retriever, cfg Config, opts ...Option) (*Engine, error) {
	if lexical == nil || semantic == nil {
		return nil, errors.New("ranker: both retrieval channels are required")
	}
	if cfg.Window == "" {
		cfg.Window = WindowUnbounded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ranker: %w", err)
	}

	e := &Engine{
		lexical:  lexical,
		semantic: semantic,
		cfg:      cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the fusion settings in use.
func (e *Engine) Config() Config {
	return e.cfg
}

// Rank returns the jobs relevant to query ordered by fused score.
//
// An empty result with a nil error means nothing matched. A failure of one
// channel's index leaves the other channel to rank alone; only when both
// fail does Rank return an error wrapping types.ErrIndexUnavailable.
func (e *Engine) Rank(ctx context.Context, query string, opts RankOptions) (ranked []types.RankedJob, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
			if errors.Is(err, types.ErrValidation) {
				outcome = "invalid"
			}
		}
		metrics.RankRequests.WithLabelValues(outcome).Inc()
		metrics.RankDuration.Observe(time.Since(start).Seconds())
	}()

	query, err = ValidateRequest(query, opts)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	log := e.logger.With(zap.String("request_id", requestID))

	ctx, span := e.tracer.Start(ctx, "ranker.Rank", trace.WithAttributes(
		attribute.String("jobsearch.request_id", requestID),
		attribute.Int("jobsearch.allowlist_size", len(opts.JobIDs)),
		attribute.Int("jobsearch.limit", opts.Limit),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	key := cacheKey(query, opts)
	if cached, ok := e.cached(key); ok {
		span.SetAttributes(attribute.Bool("jobsearch.cache_hit", true))
		outcome = "cached"
		return cached, nil
	}

	var (
		lexHits, semHits []types.ChunkHit
		lexErr, semErr   error
	)
	// Channel errors are collected rather than returned so one failing
	// channel does not cancel the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits, lexErr = e.lexical.Retrieve(gctx, query, opts.JobIDs)
		return nil
	})
	g.Go(func() error {
		semHits, semErr = e.semantic.Retrieve(gctx, query, opts.JobIDs)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case lexErr != nil && semErr != nil:
		return nil, fmt.Errorf("%w: lexical: %v; semantic: %v", types.ErrIndexUnavailable, lexErr, semErr)
	case lexErr != nil:
		outcome = "degraded"
		log.Warn("lexical channel failed, ranking on semantic hits only", zap.Error(lexErr))
		lexHits = nil
	case semErr != nil:
		outcome = "degraded"
		log.Warn("semantic channel failed, ranking on lexical hits only", zap.Error(semErr))
		semHits = nil
	}

	span.SetAttributes(
		attribute.Int("jobsearch.lexical_hits", len(lexHits)),
		attribute.Int("jobsearch.semantic_hits", len(semHits)),
	)

	ranked = e.cfg.Window.Apply(Fuse(lexHits, semHits, e.cfg))
	ranked = cut(ranked, opts)
	if len(ranked) == 0 && outcome == "ok" {
		outcome = "empty"
	}

	log.Debug("ranked query",
		zap.Int("lexical_hits", len(lexHits)),
		zap.Int("semantic_hits", len(semHits)),
		zap.Int("results", len(ranked)),
		zap.Duration("duration", time.Since(start)))

	e.store(key, ranked)
	return ranked, nil
}

// cut applies MinScore then Limit.
func cut(ranked []types.RankedJob, opts RankOptions) []types.RankedJob {
	if opts.MinScore > 0 {
		kept := ranked[:0]
		for _, r := range ranked {
			if r.Score >= opts.MinScore {
				kept = append(kept, r)
			}
		}
		ranked = kept
	}
	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}

// Similar finds jobs by semantic similarity alone: each job scores its best
// chunk similarity, and jobs at or below minScore are dropped. Unlike Rank
// it reports embedding failures.
func (e *Engine) Similar(ctx context.Context, query string, limit int, minScore float64) ([]types.SimilarJob, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewValidationError("query", "query cannot be empty")
	}
	if limit < 1 || limit > MaxSimilarLimit {
		return nil, types.NewValidationError("limit", "must be within [1,%d], got %d", MaxSimilarLimit, limit)
	}
	if minScore < 0 || minScore > 1 || math.IsNaN(minScore) {
		return nil, types.NewValidationError("min_score", "must be within [0,1], got %v", minScore)
	}

	ctx, span := e.tracer.Start(ctx, "ranker.Similar")
	defer span.End()

	var (
		hits []types.ChunkHit
		err  error
	)
	if s, ok := e.semantic.(strictSearcher); ok {
		hits, err = s.Search(ctx, query, nil)
	} else {
		hits, err = e.semantic.Retrieve(ctx, query, nil)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	best := make(map[string]float64)
	for _, h := range hits {
		if cur, ok := best[h.JobID]; !ok || h.Score > cur {
			best[h.JobID] = h.Score
		}
	}

	similar := make([]types.SimilarJob, 0, len(best))
	for id, score := range best {
		if score > minScore {
			similar = append(similar, types.SimilarJob{JobID: id, Similarity: score})
		}
	}
	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Similarity != similar[j].Similarity {
			return similar[i].Similarity > similar[j].Similarity
		}
		return similar[i].JobID < similar[j].JobID
	})
	if len(similar) > limit {
		similar = similar[:limit]
	}
	return similar, nil
}

// InvalidateCache drops all cached results.
func (e *Engine) InvalidateCache() {
	if e.cache == nil {
		return
	}
	e.cacheMu.Lock()
	e.cache.Purge()
	e.cacheMu.Unlock()
}

func (e *Engine) cached(key [32]byte) ([]types.RankedJob, bool) {
	if e.cache == nil {
		return nil, false
	}
	e.cacheMu.RLock()
	ranked, ok := e.cache.Get(key)
	e.cacheMu.RUnlock()
	if !ok {
		return nil, false
	}
	return copyRanked(ranked), true
}

func (e *Engine) store(key [32]byte, ranked []types.RankedJob) {
	if e.cache == nil {
		return
	}
	e.cacheMu.Lock()
	e.cache.Add(key, copyRanked(ranked))
	e.cacheMu.Unlock()
}

// copyRanked deep-copies results so cached entries cannot be mutated.
func copyRanked(src []types.RankedJob) []types.RankedJob {
	dst := make([]types.RankedJob, len(src))
	for i, r := range src {
		dst[i] = r
		dst[i].Chunks = make([]types.ScoredChunk, len(r.Chunks))
		for k, c := range r.Chunks {
			dst[i].Chunks[k] = c
			dst[i].Chunks[k].Channels = append([]types.Channel(nil), c.Channels...)
		}
	}
	return dst
}

// cacheKey hashes the query with its options; the allowlist is order-insensitive.
func cacheKey(query string, opts RankOptions) [32]byte {
	ids := append([]string(nil), opts.JobIDs...)
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(opts.Limit))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(opts.MinScore))
	h.Write(buf[:])

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
