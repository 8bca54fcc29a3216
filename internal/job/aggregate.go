package job

import "strings"

// aggregator collects per-chunk results and emits them in index order no
// matter what order they arrive in. Out-of-order completions are buffered
// and flushed once every lower-indexed chunk is present, so the assembled
// transcript is always in temporal order.
type aggregator struct {
	total   int
	next    int
	pending map[int]ChunkResult
	ordered []ChunkResult
}

func newAggregator(total int) *aggregator {
	return &aggregator{
		total:   total,
		pending: map[int]ChunkResult{},
	}
}

// add records one chunk result. Indexes outside the planned range and
// duplicates are ignored.
func (a *aggregator) add(r ChunkResult) {
	if r.Index < a.next || r.Index >= a.total {
		return
	}
	if _, dup := a.pending[r.Index]; dup {
		return
	}
	a.pending[r.Index] = r
	for {
		buffered, ok := a.pending[a.next]
		if !ok {
			return
		}
		delete(a.pending, a.next)
		a.ordered = append(a.ordered, buffered)
		a.next++
	}
}

// done reports whether every planned chunk has flushed.
func (a *aggregator) done() bool {
	return len(a.ordered) == a.total
}

// results returns the flushed results in index order.
func (a *aggregator) results() []ChunkResult {
	return a.ordered
}

// text concatenates flushed chunk text in index order. Words duplicated by
// the chunk overlap are not reconciled.
func (a *aggregator) text() string {
	parts := make([]string, 0, len(a.ordered))
	for _, r := range a.ordered {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
