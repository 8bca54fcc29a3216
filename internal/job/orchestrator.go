package job

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicepipe/voicepipe/internal/chunk"
	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/metrics"
	"github.com/voicepipe/voicepipe/internal/normalize"
	"github.com/voicepipe/voicepipe/internal/provider"
	"github.com/voicepipe/voicepipe/internal/transcriber"
)

// Fixed operational parameters.
const (
	// DefaultPollInterval is how often an async provider's job status is
	// checked.
	DefaultPollInterval = 2 * time.Second
	// DefaultOpTimeout bounds any single network operation (submit, poll,
	// fetch). Timeouts are not retried unless the classifier says the
	// underlying cause is retryable.
	DefaultOpTimeout = 30 * time.Second
)

// Config wires an Orchestrator.
type Config struct {
	Provider provider.Provider
	APIKey   string

	// Adapter overrides. When both are nil they are built from Provider
	// and APIKey; tests inject fakes here.
	Adapter      transcriber.Adapter
	AsyncAdapter transcriber.AsyncAdapter

	Planner          chunk.Planner
	Decoder          normalize.Decoder
	NormalizeOptions normalize.Options

	// PayloadCeiling overrides the provider's request size limit in
	// bytes. Zero means use the provider default.
	PayloadCeiling int64

	Metrics *metrics.Metrics

	PollInterval time.Duration
	OpTimeout    time.Duration

	// OnUpdate receives state snapshots. No callback fires after a
	// terminal snapshot has been delivered.
	OnUpdate func(Snapshot)
}

// Orchestrator owns the mutable state of one transcription job at a time.
// Starting a new job resets the previous one.
type Orchestrator struct {
	prov     provider.Provider
	apiKey   string
	batch    transcriber.Adapter
	async    transcriber.AsyncAdapter
	planner  chunk.Planner
	decoder  normalize.Decoder
	normOpts normalize.Options
	ceiling  int64
	metrics  *metrics.Metrics

	pollInterval time.Duration
	opTimeout    time.Duration
	onUpdate     func(Snapshot)

	mu       sync.Mutex
	snapshot Snapshot
	results  []ChunkResult
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Handle identifies a started job and lets the caller wait for its end.
type Handle struct {
	ID   string
	o    *Orchestrator
	done chan struct{}
}

// Wait blocks until the job reaches a terminal state and returns the final
// snapshot.
func (h *Handle) Wait() Snapshot {
	<-h.done
	return h.o.Snapshot()
}

// Diagnostics returns the per-chunk results gathered so far. After a
// failure they are available as raw data but never exposed as the result.
func (h *Handle) Diagnostics() []ChunkResult {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	out := make([]ChunkResult, len(h.o.results))
	copy(out, h.o.results)
	return out
}

// New creates an orchestrator. The adapter is derived from the provider
// unless an override is given.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	o := &Orchestrator{
		prov:         cfg.Provider,
		apiKey:       cfg.APIKey,
		batch:        cfg.Adapter,
		async:        cfg.AsyncAdapter,
		planner:      cfg.Planner,
		decoder:      cfg.Decoder,
		normOpts:     cfg.NormalizeOptions,
		ceiling:      cfg.PayloadCeiling,
		metrics:      cfg.Metrics,
		pollInterval: cfg.PollInterval,
		opTimeout:    cfg.OpTimeout,
		onUpdate:     cfg.OnUpdate,
		snapshot:     Snapshot{Status: StatusIdle},
	}
	if o.batch == nil && o.async == nil && cfg.APIKey != "" {
		batchAdapter, asyncAdapter, err := transcriber.New(cfg.Provider, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		o.batch = batchAdapter
		o.async = asyncAdapter
	}
	// Fields default independently so a caller tuning just one keeps the
	// stock value for the other.
	if o.planner.SegmentSeconds <= 0 {
		o.planner.SegmentSeconds = chunk.DefaultSegmentSeconds
	}
	if o.planner.OverlapSeconds == 0 {
		o.planner.OverlapSeconds = chunk.DefaultOverlapSeconds
	}
	if o.normOpts.GateThreshold == 0 {
		o.normOpts = normalize.DefaultOptions()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	if o.opTimeout <= 0 {
		o.opTimeout = DefaultOpTimeout
	}
	return o, nil
}

// Start validates the inputs and launches the job. A missing source or
// credential fails immediately with a classified error and never reaches
// submitting.
func (o *Orchestrator) Start(ctx context.Context, source Source, opts Options) (*Handle, error) {
	if len(source.Data) == 0 {
		return nil, classify.New(classify.MissingInput, nil)
	}
	if o.prov.RequiresAPIKey() && o.apiKey == "" && o.batch == nil && o.async == nil {
		return nil, classify.New(classify.MissingCredential, nil)
	}

	o.Cancel() // a new job resets any previous one

	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	o.mu.Lock()
	o.cancel = cancel
	o.snapshot = Snapshot{JobID: id, Status: StatusQueued}
	o.results = nil
	o.mu.Unlock()

	handle := &Handle{ID: id, o: o, done: make(chan struct{})}

	if o.metrics != nil {
		o.metrics.JobsStarted.Inc()
	}

	o.publish(StatusQueued, 0)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(handle.done)
		o.run(runCtx, source, opts)
	}()

	return handle, nil
}

// Cancel stops polling and stops the orchestrator from acting on any
// in-flight responses. It is cooperative: the flag is checked between poll
// ticks and between chunk submissions, never mid-request.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
}

// Snapshot returns the current job state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

func (o *Orchestrator) run(ctx context.Context, source Source, opts Options) {
	hints := transcriber.Hints{
		Language:  opts.Language,
		Model:     opts.Model,
		Punctuate: opts.Punctuate,
		Diarize:   opts.Diarize,
	}
	if hints.Model == "" {
		hints.Model = o.prov.DefaultModel()
	}

	// Normalize. Failure degrades to pass-through, never to a job error.
	payload := source.Data
	var audio *normalize.Audio
	duration := 0.0
	if !opts.SkipNormalize {
		res := normalize.Normalize(source.Data, o.decoder, o.normOpts)
		payload = res.Bytes
		if res.Normalized {
			audio = res.Audio
			duration = res.Duration
		} else {
			log.Printf("job: %s not normalized, submitting original bytes", source.Name)
			if o.metrics != nil {
				o.metrics.NormalizeFallbacks.Inc()
			}
		}
	}

	ceiling := o.ceiling
	if ceiling <= 0 {
		ceiling = o.prov.PayloadCeiling()
	}
	spans := o.planner.Plan(int64(len(payload)), ceiling, duration)
	if len(spans) > 1 && audio == nil {
		// Cannot slice undecoded bytes; submit whole and let the provider
		// decide. A rejection becomes a classified error.
		log.Printf("job: %s oversized but not decodable, submitting as one request", source.Name)
		spans = spans[:1]
	}

	o.publish(StatusSubmitting, 2)

	if len(spans) == 1 {
		o.runSingle(ctx, payload, audio, duration, hints)
		return
	}
	o.runChunked(ctx, audio, spans, hints)
}

// runSingle submits the whole payload as one request.
func (o *Orchestrator) runSingle(ctx context.Context, payload []byte, audio *normalize.Audio, duration float64, hints transcriber.Hints) {
	result, err := o.submitOnce(ctx, payload, hints)
	if err != nil {
		ce := classify.Classify(err)
		if ce.Retryable {
			result, err = o.retrySingle(ctx, ce, payload, audio, duration, hints)
		}
		if err != nil {
			o.fail(classify.Classify(err))
			return
		}
	}

	o.mu.Lock()
	o.results = []ChunkResult{{Index: 0, Text: result.Text, Raw: result.Raw}}
	o.mu.Unlock()
	o.complete(result.Text)
}

// retrySingle applies the one-shot retry strategies to a whole-file
// submission.
func (o *Orchestrator) retrySingle(ctx context.Context, ce *classify.ClassifiedError, payload []byte, audio *normalize.Audio, duration float64, hints transcriber.Hints) (*transcriber.Result, error) {
	if o.metrics != nil {
		o.metrics.ChunkRetries.Inc()
	}
	switch ce.Category {
	case classify.EncodingMismatch:
		retryHints := hints
		retryHints.EncodingHint = "auto"
		log.Printf("job: encoding mismatch, retrying once with auto-detect hint")
		return o.submitOnce(ctx, payload, retryHints)

	case classify.PayloadTooLarge:
		if audio == nil || duration <= 0 {
			return nil, ce
		}
		log.Printf("job: payload too large, splitting into smaller segments")
		whole := chunk.Span{Index: 0, StartSeconds: 0, EndSeconds: duration}
		text, raw, err := o.submitSplit(ctx, audio, whole, hints)
		if err != nil {
			return nil, err
		}
		return &transcriber.Result{Text: text, Raw: raw, Progress: 100}, nil
	}
	return nil, ce
}

// runChunked cuts the audio per plan and submits chunks sequentially, one
// at a time, to stay under provider rate limits. Results flush in index
// order regardless of arrival order.
func (o *Orchestrator) runChunked(ctx context.Context, audio *normalize.Audio, spans []chunk.Span, hints transcriber.Hints) {
	chunks, err := chunk.Cut(audio, spans)
	if err != nil {
		o.fail(classify.New(classify.DecodeFailure, err))
		return
	}

	o.publish(StatusAggregating, 2)
	agg := newAggregator(len(chunks))

	for i, c := range chunks {
		// Cooperative cancellation point between submissions.
		if ctx.Err() != nil {
			o.fail(classify.Classify(ctx.Err()))
			return
		}

		result, err := o.submitChunk(ctx, audio, spans[i], c, hints)
		if err != nil {
			// One terminally failed chunk fails the whole job; partial
			// transcripts stay diagnostic-only.
			o.fail(classify.Classify(err))
			return
		}

		agg.add(ChunkResult{Index: c.Index, Text: result.Text, Raw: result.Raw})
		o.mu.Lock()
		o.results = append([]ChunkResult(nil), agg.results()...)
		o.mu.Unlock()
		o.publish(StatusAggregating, float64(i+1)/float64(len(chunks))*100)
	}

	if !agg.done() {
		o.fail(classify.New(classify.Unknown, fmt.Errorf("aggregation incomplete: %d of %d chunks", len(agg.results()), len(chunks))))
		return
	}
	o.complete(agg.text())
}

// submitChunk sends one chunk, applying the single-shot retry strategies on
// a retryable classification.
func (o *Orchestrator) submitChunk(ctx context.Context, audio *normalize.Audio, span chunk.Span, c chunk.Chunk, hints transcriber.Hints) (*transcriber.Result, error) {
	result, err := o.submitOnce(ctx, c.Bytes, hints)
	if err == nil {
		return result, nil
	}

	ce := classify.Classify(err)
	if !ce.Retryable {
		return nil, ce
	}
	if o.metrics != nil {
		o.metrics.ChunkRetries.Inc()
	}

	switch ce.Category {
	case classify.EncodingMismatch:
		// Resubmit the same chunk once with auto-detect instead of the
		// assumed encoding; a second failure surfaces as non-retryable.
		retryHints := hints
		retryHints.EncodingHint = "auto"
		log.Printf("job: chunk %d encoding mismatch, retrying with auto-detect hint", c.Index)
		result, err = o.submitOnce(ctx, c.Bytes, retryHints)
		if err != nil {
			return nil, classify.Classify(err)
		}
		return result, nil

	case classify.PayloadTooLarge:
		// Recompute this span with a smaller per-segment duration and
		// resubmit only the affected chunk.
		log.Printf("job: chunk %d payload too large, splitting span", c.Index)
		text, raw, err := o.submitSplit(ctx, audio, span, hints)
		if err != nil {
			return nil, classify.Classify(err)
		}
		return &transcriber.Result{Text: text, Raw: raw, Progress: 100}, nil
	}
	return nil, ce
}

// submitSplit halves a span and submits the sub-chunks sequentially,
// joining their text.
func (o *Orchestrator) submitSplit(ctx context.Context, audio *normalize.Audio, span chunk.Span, hints transcriber.Hints) (string, []byte, error) {
	halves := o.planner.Split(span)
	subChunks, err := chunk.Cut(audio, halves)
	if err != nil {
		return "", nil, err
	}

	sub := newAggregator(len(subChunks))
	var lastRaw []byte
	for _, sc := range subChunks {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		result, err := o.submitOnce(ctx, sc.Bytes, hints)
		if err != nil {
			return "", nil, err
		}
		sub.add(ChunkResult{Index: sc.Index, Text: result.Text, Raw: result.Raw})
		lastRaw = result.Raw
	}
	return sub.text(), lastRaw, nil
}

// submitOnce performs one logical provider submission: a single request for
// sync providers, submit-poll-fetch for async ones. Each network operation
// is bounded by the op timeout.
func (o *Orchestrator) submitOnce(ctx context.Context, payload []byte, hints transcriber.Hints) (*transcriber.Result, error) {
	if o.metrics != nil {
		o.metrics.ChunksSubmitted.Inc()
		start := time.Now()
		defer func() {
			o.metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
		}()
	}

	if o.batch != nil {
		opCtx, cancel := context.WithTimeout(ctx, o.opTimeout)
		defer cancel()
		return o.batch.Transcribe(opCtx, payload, hints)
	}
	return o.submitAsync(ctx, payload, hints)
}

// submitAsync drives an async provider job: submit, poll on the fixed
// interval until the provider reports a terminal state, then fetch.
// Completion detection relies solely on provider-confirmed terminal states;
// synthesized progress is only a display nicety.
func (o *Orchestrator) submitAsync(ctx context.Context, payload []byte, hints transcriber.Hints) (*transcriber.Result, error) {
	jobID, err := withOpTimeout(ctx, o.opTimeout, func(opCtx context.Context) (string, error) {
		return o.async.Submit(opCtx, payload, hints)
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	o.publish(StatusPolling, 5)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	synthetic := 5.0
	for {
		// The cancellation flag is checked before scheduling the next
		// tick; an in-flight response is simply never acted on.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		state, err := withOpTimeout(ctx, o.opTimeout, func(opCtx context.Context) (*transcriber.JobState, error) {
			return o.async.Poll(opCtx, jobID)
		})
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}

		switch {
		case state.Failed:
			return nil, fmt.Errorf("provider job %s: %s", jobID, state.Message)
		case state.Done:
			result, err := withOpTimeout(ctx, o.opTimeout, func(opCtx context.Context) (*transcriber.Result, error) {
				return o.async.Fetch(opCtx, jobID)
			})
			if err != nil {
				return nil, fmt.Errorf("fetch: %w", err)
			}
			return result, nil
		}

		if state.Progress >= 0 {
			o.publish(StatusPolling, min(state.Progress, 99))
		} else {
			// Monotonic approximation, capped below 100 until the
			// provider confirms completion.
			synthetic = min(synthetic+5, 95)
			o.publish(StatusPolling, synthetic)
		}
	}
}

// withOpTimeout runs one network operation under the op timeout.
func withOpTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(opCtx)
}

func (o *Orchestrator) publish(status Status, progress float64) {
	o.mu.Lock()
	if o.snapshot.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.snapshot.Status = status
	o.snapshot.Progress = progress
	snap := o.snapshot
	cb := o.onUpdate
	o.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (o *Orchestrator) complete(text string) {
	o.mu.Lock()
	if o.snapshot.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.snapshot.Status = StatusCompleted
	o.snapshot.Progress = 100
	o.snapshot.Text = text
	snap := o.snapshot
	cb := o.onUpdate
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.JobsCompleted.Inc()
	}
	log.Printf("job: %s completed", snap.JobID)
	if cb != nil {
		cb(snap)
	}
}

func (o *Orchestrator) fail(ce *classify.ClassifiedError) {
	status := StatusFailed
	if ce.Category == classify.Cancelled {
		status = StatusCancelled
	}

	o.mu.Lock()
	if o.snapshot.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.snapshot.Status = status
	o.snapshot.Err = ce
	snap := o.snapshot
	cb := o.onUpdate
	o.mu.Unlock()

	if o.metrics != nil {
		switch status {
		case StatusCancelled:
			o.metrics.JobsCancelled.Inc()
		default:
			o.metrics.JobsFailed.Inc()
		}
		o.metrics.FailuresByCategory.WithLabelValues(string(ce.Category)).Inc()
	}
	log.Printf("job: %s %s: %v", snap.JobID, status, ce)
	if cb != nil {
		cb(snap)
	}
}
