// Package ranker fuses lexical and semantic chunk hits into a ranked list of
// jobs.
//
// Each channel's per-job score is the best score among that job's chunks.
// Both channels are rank-normalized independently over every job seen by
// either channel and blended with Config.SemanticRatio:
//
//	fused = ratio*normSemantic + (1-ratio)*normLexical
//
// Chunks found by both channels are merged and their scores summed; only
// chunks above Config.MinChunkScore are reported as evidence. Evidence never
// changes the job score.
//
// Engine runs the two retrievers concurrently and degrades to a single
// channel when the other fails.
package ranker
