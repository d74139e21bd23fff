// Package retriever adapts the chunk index into the two retrieval channels
// consumed by the ranker.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/chunker"
	"github.com/dshills/jobsearch-mcp/internal/embedder"
	"github.com/dshills/jobsearch-mcp/internal/logging"
	"github.com/dshills/jobsearch-mcp/internal/metrics"
	"github.com/dshills/jobsearch-mcp/internal/storage"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// Retriever returns raw chunk hits for a query from one channel.
// A non-empty jobIDs restricts hits to those jobs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, jobIDs []string) ([]types.ChunkHit, error)
	Channel() types.Channel
}

// LexicalIndex is the part of the chunk index the lexical channel needs.
type LexicalIndex interface {
	LexicalSearch(ctx context.Context, query string, jobIDs []string, limit int) ([]types.ChunkHit, error)
}

// SemanticIndex is the part of the chunk index the semantic channel needs.
type SemanticIndex interface {
	SemanticSearch(ctx context.Context, queryVector []float32, jobIDs []string, limit int) ([]types.ChunkHit, error)
}

// Option configures a retriever
type Option func(*options)

type options struct {
	limit  int
	logger *zap.Logger
}

// WithLimit caps the hits requested from the index.
func WithLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = logging.OrNop(l) }
}

func buildOptions(opts []Option) options {
	o := options{limit: storage.DefaultTopChunks, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// indexError marks a storage failure as ErrIndexUnavailable while keeping
// the cause, including context cancellation, visible to errors.Is.
func indexError(channel types.Channel, err error) error {
	if errors.Is(err, types.ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s search: %w", types.ErrIndexUnavailable, channel, err)
}

// Lexical is the full-text channel.
type Lexical struct {
	index LexicalIndex
	opts  options
}

// NewLexical creates the lexical channel over index
func NewLexical(index LexicalIndex, opts ...Option) *Lexical {
	return &Lexical{index: index, opts: buildOptions(opts)}
}

func (l *Lexical) Channel() types.Channel { return types.ChannelLexical }

// Retrieve normalises the query the same way chunk text is normalised at
// ingestion, then searches the full-text index.
func (l *Lexical) Retrieve(ctx context.Context, query string, jobIDs []string) ([]types.ChunkHit, error) {
	cleaned := chunker.Clean(query)
	if cleaned == "" {
		return []types.ChunkHit{}, nil
	}

	hits, err := l.index.LexicalSearch(ctx, cleaned, jobIDs, l.opts.limit)
	if err != nil {
		metrics.RetrieverFailures.WithLabelValues(string(types.ChannelLexical), "index").Inc()
		return nil, indexError(types.ChannelLexical, err)
	}

	metrics.RetrieverHits.WithLabelValues(string(types.ChannelLexical)).Observe(float64(len(hits)))
	return hits, nil
}

// Semantic is the embedding-similarity channel.
type Semantic struct {
	index    SemanticIndex
	embedder embedder.Embedder
	opts     options
}

// NewSemantic creates the semantic channel over index using emb for queries
func NewSemantic(index SemanticIndex, emb embedder.Embedder, opts ...Option) *Semantic {
	return &Semantic{index: index, embedder: emb, opts: buildOptions(opts)}
}

func (s *Semantic) Channel() types.Channel { return types.ChannelSemantic }

// Retrieve embeds the query and searches by cosine similarity. An embedding
// failure degrades the channel to no hits instead of failing the request.
func (s *Semantic) Retrieve(ctx context.Context, query string, jobIDs []string) ([]types.ChunkHit, error) {
	hits, err := s.Search(ctx, query, jobIDs)
	if err != nil && errors.Is(err, types.ErrEmbeddingUnavailable) && ctx.Err() == nil {
		s.opts.logger.Warn("semantic channel degraded, continuing without it",
			zap.String("provider", s.embedder.Provider()),
			zap.Error(err))
		return []types.ChunkHit{}, nil
	}
	return hits, err
}

// Search is Retrieve without the soft failure: embedding errors are returned
// wrapped as ErrEmbeddingUnavailable.
func (s *Semantic) Search(ctx context.Context, query string, jobIDs []string) ([]types.ChunkHit, error) {
	vec, err := s.embedder.Embed(ctx, query, embedder.ModeQuery)
	if err != nil {
		metrics.RetrieverFailures.WithLabelValues(string(types.ChannelSemantic), "embedding").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, types.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}

	hits, err := s.index.SemanticSearch(ctx, vec, jobIDs, s.opts.limit)
	if err != nil {
		metrics.RetrieverFailures.WithLabelValues(string(types.ChannelSemantic), "index").Inc()
		return nil, indexError(types.ChannelSemantic, err)
	}

	metrics.RetrieverHits.WithLabelValues(string(types.ChannelSemantic)).Observe(float64(len(hits)))
	return hits, nil
}
