package chunker

import (
	"regexp"
	"strings"

	"github.com/dshills/jobsearch-mcp/pkg/types"
)

const (
	// DefaultMaxTokens is the window size in whitespace tokens
	DefaultMaxTokens = 400

	// DefaultOverlapTokens is the number of tokens carried into the next window
	DefaultOverlapTokens = 50
)

// unitPattern matches a sentence with its terminal punctuation, or a lone token.
var unitPattern = regexp.MustCompile(`[^.!?]+[.!?]+|\S+`)

// Chunker splits cleaned text into overlapping token windows.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a Chunker. overlapTokens must be smaller than maxTokens.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, types.NewValidationError("max_tokens", "must be > 0, got %d", maxTokens)
	}
	if overlapTokens < 0 {
		return nil, types.NewValidationError("overlap_tokens", "must be >= 0, got %d", overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, types.NewValidationError("overlap_tokens", "must be < max_tokens (%d), got %d", maxTokens, overlapTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Default returns a Chunker with the default window settings.
func Default() *Chunker {
	return &Chunker{maxTokens: DefaultMaxTokens, overlapTokens: DefaultOverlapTokens}
}

// Chunk splits text into windows of at most MaxTokens tokens. The result is
// empty for blank input and never contains empty strings.
func (c *Chunker) Chunk(text string) []string {
	units := unitPattern.FindAllString(text, -1)
	if len(units) == 0 {
		return nil
	}

	chunks := make([]string, 0, 1)
	window := make([]string, 0, c.maxTokens)

	for _, unit := range units {
		tokens := strings.Fields(unit)
		if len(tokens) == 0 {
			continue
		}

		if len(window)+len(tokens) > c.maxTokens {
			if len(window) > 0 {
				chunks = append(chunks, strings.Join(window, " "))
			}
			window = c.carryOver(window, len(tokens))
		}

		window = append(window, tokens...)
	}

	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, " "))
	}

	return chunks
}

// carryOver returns the tail of window that starts the next window, leaving
// room for incoming tokens.
func (c *Chunker) carryOver(window []string, incoming int) []string {
	keep := c.overlapTokens
	if room := c.maxTokens - incoming; keep > room {
		keep = room
	}
	if keep > len(window) {
		keep = len(window)
	}
	if keep <= 0 {
		return window[:0]
	}

	next := make([]string, keep, c.maxTokens)
	copy(next, window[len(window)-keep:])
	return next
}

// CountTokens returns the whitespace token count used for window sizing.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
