// Package job drives one transcription job from submission to terminal
// state: normalize, plan chunks, submit, poll, retry once where warranted,
// and aggregate chunk results into a single ordered transcript.
package job

import (
	"encoding/json"

	"github.com/voicepipe/voicepipe/internal/classify"
)

// Status is the lifecycle stage of a transcription job.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusQueued      Status = "queued"
	StatusSubmitting  Status = "submitting"
	StatusPolling     Status = "polling"
	StatusAggregating Status = "aggregating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Source is an immutable handle to the user's original bytes. It is never
// mutated by the pipeline.
type Source struct {
	Name string
	MIME string
	Data []byte
}

// Options carries per-job transcription settings.
type Options struct {
	Language      string
	Model         string
	Punctuate     bool
	Diarize       bool
	SkipNormalize bool
}

// ChunkResult is one chunk's transcript plus the raw provider JSON kept for
// diagnostics.
type ChunkResult struct {
	Index int
	Text  string
	Raw   json.RawMessage
}

// Snapshot is the read-only view of job state pushed to subscribers. The
// orchestrator owns the mutable state; the UI only ever sees snapshots.
type Snapshot struct {
	JobID    string
	Status   Status
	Progress float64
	// Text is the final aggregated transcript, set only on completed.
	Text string
	Err  *classify.ClassifiedError
}
