package ranker

import (
	"fmt"
	"sort"

	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// Defaults for Config.
const (
	DefaultSemanticRatio   = 0.5
	DefaultMinChunkScore   = 1.0
	DefaultMaxChunksPerJob = 3
)

// Config holds the fusion constants.
type Config struct {
	// SemanticRatio weighs the normalized semantic score against the lexical one.
	SemanticRatio float64

	// MinChunkScore is the summed chunk score a chunk must exceed to be kept
	// as evidence. It does not affect the job score.
	MinChunkScore float64

	// MaxChunksPerJob caps the evidence list; <= 0 means no cap.
	MaxChunksPerJob int

	Window Window
}

// DefaultConfig returns the reference fusion settings.
func DefaultConfig() Config {
	return Config{
		SemanticRatio:   DefaultSemanticRatio,
		MinChunkScore:   DefaultMinChunkScore,
		MaxChunksPerJob: DefaultMaxChunksPerJob,
		Window:          WindowUnbounded,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SemanticRatio < 0 || c.SemanticRatio > 1 {
		return fmt.Errorf("semantic ratio must be within [0,1], got %v", c.SemanticRatio)
	}
	if !c.Window.Valid() {
		return fmt.Errorf("unknown window policy %q", c.Window)
	}
	return nil
}

// BuildEntries aggregates chunk hits from both channels per job. Chunks are
// deduplicated by (field type, chunk index); a chunk found by both channels
// gets the sum of its scores. Channel scores are the max over the job's hits.
func BuildEntries(lexical, semantic []types.ChunkHit) map[string]*types.JobScoreEntry {
	entries := make(map[string]*types.JobScoreEntry)

	add := func(h types.ChunkHit, channel types.Channel) {
		e, ok := entries[h.JobID]
		if !ok {
			e = &types.JobScoreEntry{JobID: h.JobID, Chunks: make(map[types.ChunkKey]*types.ScoredChunk)}
			entries[h.JobID] = e
		}

		switch channel {
		case types.ChannelSemantic:
			if h.Score > e.SemanticScore {
				e.SemanticScore = h.Score
			}
		case types.ChannelLexical:
			if h.Score > e.LexicalScore {
				e.LexicalScore = h.Score
			}
		}

		key := h.Key()
		c, ok := e.Chunks[key]
		if !ok {
			c = &types.ScoredChunk{
				ChunkID:    h.ChunkID,
				FieldType:  h.FieldType,
				ChunkIndex: h.ChunkIndex,
				Content:    h.Content,
			}
			e.Chunks[key] = c
		}
		c.Score += h.Score
		if !hasChannel(c.Channels, channel) {
			c.Channels = append(c.Channels, channel)
		}
	}

	for _, h := range lexical {
		add(h, types.ChannelLexical)
	}
	for _, h := range semantic {
		add(h, types.ChannelSemantic)
	}
	return entries
}

func hasChannel(channels []types.Channel, c types.Channel) bool {
	for _, have := range channels {
		if have == c {
			return true
		}
	}
	return false
}

// Fuse merges the two channels' hits into jobs ordered by fused score.
// It is pure: the result depends only on its arguments.
func Fuse(lexical, semantic []types.ChunkHit, cfg Config) []types.RankedJob {
	entries := BuildEntries(lexical, semantic)
	if len(entries) == 0 {
		return []types.RankedJob{}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sem := make([]float64, len(ids))
	lex := make([]float64, len(ids))
	for i, id := range ids {
		sem[i] = entries[id].SemanticScore
		lex[i] = entries[id].LexicalScore
	}

	normSem := normalizeChannel(sem, len(semantic) > 0)
	normLex := normalizeChannel(lex, len(lexical) > 0)

	ranked := make([]types.RankedJob, len(ids))
	for i, id := range ids {
		e := entries[id]
		ranked[i] = types.RankedJob{
			JobID:              id,
			Score:              cfg.SemanticRatio*normSem[i] + (1-cfg.SemanticRatio)*normLex[i],
			SemanticScore:      e.SemanticScore,
			LexicalScore:       e.LexicalScore,
			NormalizedSemantic: normSem[i],
			NormalizedLexical:  normLex[i],
			Chunks:             evidence(e, cfg),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.JobID < b.JobID
	})
	return ranked
}

// normalizeChannel rank-normalizes one channel; a channel without any hits
// contributes zero to every job.
func normalizeChannel(values []float64, hasHits bool) []float64 {
	if !hasHits {
		return make([]float64, len(values))
	}
	return NormalizeRanks(values)
}

// evidence keeps the chunks scoring above the threshold, best first.
func evidence(e *types.JobScoreEntry, cfg Config) []types.ScoredChunk {
	chunks := make([]types.ScoredChunk, 0, len(e.Chunks))
	for _, c := range e.Chunks {
		if c.Score > cfg.MinChunkScore {
			chunks = append(chunks, *c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
	if cfg.MaxChunksPerJob > 0 && len(chunks) > cfg.MaxChunksPerJob {
		chunks = chunks[:cfg.MaxChunksPerJob]
	}
	return chunks
}
