// Package chunker prepares posting text for indexing.
//
// Clean turns an HTML fragment into a single line of plain text. Chunk splits
// that text into overlapping windows measured in whitespace tokens, so long
// fields such as the task list of a posting are embedded and matched piece by
// piece rather than as one diluted vector.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultMaxTokens, chunker.DefaultOverlapTokens)
//	if err != nil {
//	    return err
//	}
//	for i, text := range c.Chunk(chunker.Clean(raw)) {
//	    fmt.Printf("chunk %d: %d tokens\n", i, chunker.CountTokens(text))
//	}
//
// # Windowing
//
// Text is split into sentence-like units first: a run of characters ending in
// '.', '!' or '?', or a bare whitespace token when no terminal follows. Units
// are appended to the current window until the next unit would push it past
// MaxTokens. The window is then emitted and the next one starts with the last
// OverlapTokens tokens of the emitted window, trimmed so the carried context
// plus the incoming unit still fits.
//
// A single unit longer than MaxTokens is emitted as its own oversized chunk
// and never dropped.
package chunker
