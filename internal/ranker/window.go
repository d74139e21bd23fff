package ranker

import "github.com/dshills/jobsearch-mcp/pkg/types"

// Window selects how a ranked list is cut before it is returned.
type Window string

const (
	// WindowUnbounded returns every ranked job; callers apply Limit and MinScore.
	WindowUnbounded Window = "unbounded"

	// WindowRelative drops jobs below a floor relative to the best score and
	// caps the list at RelativeWindowCap.
	WindowRelative Window = "relative"
)

// RelativeWindowCap bounds the relative window.
const RelativeWindowCap = 50

// Valid reports whether w is a known policy. The empty policy means unbounded.
func (w Window) Valid() bool {
	return w == "" || w == WindowUnbounded || w == WindowRelative
}

// Apply cuts ranked, which must be sorted by score descending.
func (w Window) Apply(ranked []types.RankedJob) []types.RankedJob {
	if w != WindowRelative || len(ranked) == 0 {
		return ranked
	}

	top := ranked[0].Score
	floor := top * 0.5
	if top > 0.8 {
		floor = top * 0.7
	}

	out := make([]types.RankedJob, 0, min(len(ranked), RelativeWindowCap))
	for _, r := range ranked {
		if r.Score < floor || len(out) == RelativeWindowCap {
			break
		}
		out = append(out, r)
	}
	return out
}
