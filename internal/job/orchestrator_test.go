package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voicepipe/voicepipe/internal/chunk"
	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/provider"
	"github.com/voicepipe/voicepipe/internal/transcriber"
	"github.com/voicepipe/voicepipe/internal/wav"
)

// fakeAdapter is a scripted sync adapter. Responses are consumed in call
// order; an entry with err set fails that call.
type fakeAdapter struct {
	mu        sync.Mutex
	calls     int
	responses []fakeResponse
	hints     []transcriber.Hints
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeAdapter) Transcribe(ctx context.Context, audio []byte, hints transcriber.Hints) (*transcriber.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, hints)
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return nil, fmt.Errorf("unexpected call %d", i)
	}
	r := f.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return &transcriber.Result{Text: r.text, Raw: []byte(`{}`), Progress: -1}, nil
}

// fakeAsyncAdapter completes after a fixed number of polls.
type fakeAsyncAdapter struct {
	mu             sync.Mutex
	pollsUntilDone int
	polls          int
	text           string
	failMessage    string
}

func (f *fakeAsyncAdapter) Submit(ctx context.Context, audio []byte, hints transcriber.Hints) (string, error) {
	return "fake-job", nil
}

func (f *fakeAsyncAdapter) Poll(ctx context.Context, jobID string) (*transcriber.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.failMessage != "" {
		return &transcriber.JobState{Failed: true, Message: f.failMessage, Progress: -1}, nil
	}
	if f.polls < f.pollsUntilDone {
		return &transcriber.JobState{Progress: -1}, nil
	}
	return &transcriber.JobState{Done: true, Progress: 100}, nil
}

func (f *fakeAsyncAdapter) Fetch(ctx context.Context, jobID string) (*transcriber.Result, error) {
	return &transcriber.Result{Text: f.text, Raw: []byte(`{}`), Progress: 100}, nil
}

// syncProvider is a registry-independent provider with a controllable
// payload ceiling.
type syncProvider struct {
	ceiling int64
	mode    provider.Mode
}

func (p *syncProvider) Name() string                { return "fake" }
func (p *syncProvider) RequiresAPIKey() bool        { return true }
func (p *syncProvider) ValidateAPIKey(string) bool  { return true }
func (p *syncProvider) Mode() provider.Mode         { return p.mode }
func (p *syncProvider) PayloadCeiling() int64       { return p.ceiling }
func (p *syncProvider) LargeFileThreshold() int64   { return p.ceiling / 2 }
func (p *syncProvider) DefaultModel() string        { return "fake-model" }
func (p *syncProvider) Models() []string            { return []string{"fake-model"} }
func (p *syncProvider) Endpoint() *provider.EndpointConfig {
	return &provider.EndpointConfig{BaseURL: "http://fake.localhost"}
}
func (p *syncProvider) EnvVar() string { return "FAKE_API_KEY" }

// testWAV builds a small mono WAV of the given duration.
func testWAV(t *testing.T, seconds float64, rate int) []byte {
	t.Helper()
	samples := make([]float32, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = 0.5
	}
	if len(samples) > 0 {
		samples[0] = -0.5 // keep the mean near zero so gating leaves signal
	}
	data, err := wav.Encode([][]float32{samples}, rate)
	if err != nil {
		t.Fatalf("wav.Encode() error = %v", err)
	}
	return data
}

func newTestOrchestrator(t *testing.T, prov provider.Provider, adapter transcriber.Adapter, async transcriber.AsyncAdapter) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Provider:     prov,
		APIKey:       "test-key",
		Adapter:      adapter,
		AsyncAdapter: async,
		PollInterval: 5 * time.Millisecond,
		OpTimeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestNewKeepsCustomOverlapWithDefaultSegment(t *testing.T) {
	o, err := New(Config{
		Provider: &syncProvider{ceiling: 1 << 20},
		Adapter:  &fakeAdapter{},
		Planner:  chunk.Planner{OverlapSeconds: 9},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if o.planner.SegmentSeconds != chunk.DefaultSegmentSeconds {
		t.Errorf("segment = %v, want the default %v", o.planner.SegmentSeconds, chunk.DefaultSegmentSeconds)
	}
	if o.planner.OverlapSeconds != 9 {
		t.Errorf("overlap = %v, want the configured 9", o.planner.OverlapSeconds)
	}
}

func TestStartRejectsEmptySource(t *testing.T) {
	o := newTestOrchestrator(t, &syncProvider{ceiling: 1 << 20}, &fakeAdapter{}, nil)

	_, err := o.Start(context.Background(), Source{Name: "empty.wav"}, Options{})
	if err == nil {
		t.Fatal("Start() should fail for empty source")
	}
	ce := classify.Classify(err)
	if ce.Category != classify.MissingInput {
		t.Errorf("category = %s, want %s", ce.Category, classify.MissingInput)
	}
	if o.Snapshot().Status == StatusSubmitting {
		t.Error("job must never reach submitting without input")
	}
}

func TestStartRejectsMissingCredential(t *testing.T) {
	o, err := New(Config{Provider: &syncProvider{ceiling: 1 << 20}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = o.Start(context.Background(), Source{Name: "a.wav", Data: []byte("x")}, Options{})
	ce := classify.Classify(err)
	if ce == nil || ce.Category != classify.MissingCredential {
		t.Errorf("error = %v, want %s", err, classify.MissingCredential)
	}
}

func TestSingleChunkSyncCompletes(t *testing.T) {
	// 3 MB-equivalent under the ceiling: one chunk, synchronous provider,
	// response is the final result.
	adapter := &fakeAdapter{responses: []fakeResponse{{text: "hello world"}}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024}, adapter, nil)

	handle, err := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 2, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}
	if final.Text != "hello world" {
		t.Errorf("text = %q, want %q", final.Text, "hello world")
	}
	if final.Progress != 100 {
		t.Errorf("progress = %v, want 100", final.Progress)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.calls)
	}
}

func TestMultiChunkAggregatesInOrder(t *testing.T) {
	// 10s of audio with a tiny ceiling forces a multi-chunk plan; the
	// aggregated transcript must match chunk index order.
	responses := make([]fakeResponse, 16)
	for i := range responses {
		responses[i] = fakeResponse{text: fmt.Sprintf("part%d", i)}
	}
	adapter := &fakeAdapter{responses: responses}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 64 * 1024}, adapter, nil)

	handle, err := o.Start(context.Background(), Source{Name: "long.wav", Data: testWAV(t, 10, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}
	if adapter.calls < 2 {
		t.Fatalf("adapter calls = %d, want >= 2 for a multi-chunk job", adapter.calls)
	}

	want := ""
	for i := 0; i < adapter.calls; i++ {
		if i > 0 {
			want += " "
		}
		want += adapter.responses[i].text
	}
	if final.Text != want {
		t.Errorf("text = %q, want %q", final.Text, want)
	}
}

func TestMiddleChunkFailureFailsJob(t *testing.T) {
	adapter := &fakeAdapter{responses: []fakeResponse{
		{text: "one"},
		{err: &classify.HTTPError{StatusCode: 401, Body: "invalid api key"}},
		{text: "three"},
	}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 64 * 1024}, adapter, nil)

	handle, err := o.Start(context.Background(), Source{Name: "long.wav", Data: testWAV(t, 10, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Err == nil || final.Err.Category != classify.InvalidCredential {
		t.Errorf("err = %v, want %s", final.Err, classify.InvalidCredential)
	}
	if final.Text != "" {
		t.Error("a failed job must not expose partial text as the result")
	}
	// Partial results remain available as diagnostics only.
	if len(handle.Diagnostics()) == 0 {
		t.Error("diagnostics should retain the successful chunks")
	}
}

func TestEncodingMismatchRetriesOnceWithAutoHint(t *testing.T) {
	adapter := &fakeAdapter{responses: []fakeResponse{
		{err: errors.New("sample rate mismatch: expected 16000")},
		{text: "recovered"},
	}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024}, adapter, nil)

	handle, err := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 1, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}
	if final.Text != "recovered" {
		t.Errorf("text = %q, want %q", final.Text, "recovered")
	}
	if adapter.calls != 2 {
		t.Fatalf("adapter calls = %d, want 2", adapter.calls)
	}
	if adapter.hints[0].EncodingHint != "" {
		t.Errorf("first call encoding hint = %q, want empty", adapter.hints[0].EncodingHint)
	}
	if adapter.hints[1].EncodingHint != "auto" {
		t.Errorf("retry encoding hint = %q, want auto", adapter.hints[1].EncodingHint)
	}
}

func TestEncodingMismatchSecondFailureIsTerminal(t *testing.T) {
	adapter := &fakeAdapter{responses: []fakeResponse{
		{err: errors.New("sample rate mismatch: expected 16000")},
		{err: errors.New("sample rate mismatch: expected 16000")},
	}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024}, adapter, nil)

	handle, _ := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 1, 16000)}, Options{})
	final := handle.Wait()
	if final.Status != StatusFailed {
		t.Fatalf("status = %s, want failed after second mismatch", final.Status)
	}
	if adapter.calls != 2 {
		t.Errorf("adapter calls = %d, want exactly 2 (single-shot retry)", adapter.calls)
	}
}

func TestPayloadTooLargeSplitsAndResubmits(t *testing.T) {
	adapter := &fakeAdapter{responses: []fakeResponse{
		{err: errors.New("payload size exceeds the limit")},
		{text: "first half"},
		{text: "second half"},
	}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024}, adapter, nil)

	handle, err := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 4, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}
	if final.Text != "first half second half" {
		t.Errorf("text = %q, want %q", final.Text, "first half second half")
	}
	if adapter.calls != 3 {
		t.Errorf("adapter calls = %d, want 3 (original + two halves)", adapter.calls)
	}
}

func TestNonRetryableCategoryDoesNotRetry(t *testing.T) {
	adapter := &fakeAdapter{responses: []fakeResponse{
		{err: &classify.HTTPError{StatusCode: 429, Body: "rate limit reached"}},
	}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024}, adapter, nil)

	handle, _ := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 1, 16000)}, Options{})
	final := handle.Wait()
	if final.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Err.Category != classify.RateLimited {
		t.Errorf("category = %s, want %s", final.Err.Category, classify.RateLimited)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter calls = %d, want 1 (no automatic retry)", adapter.calls)
	}
}

func TestAsyncProviderPollsToCompletion(t *testing.T) {
	async := &fakeAsyncAdapter{pollsUntilDone: 3, text: "polled transcript"}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024, mode: provider.Async}, nil, async)

	var sawPolling bool
	o.onUpdate = func(s Snapshot) {
		if s.Status == StatusPolling {
			sawPolling = true
		}
	}

	handle, err := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 1, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}
	if final.Text != "polled transcript" {
		t.Errorf("text = %q, want %q", final.Text, "polled transcript")
	}
	if !sawPolling {
		t.Error("job should pass through polling for an async provider")
	}
	if async.polls < 3 {
		t.Errorf("polls = %d, want >= 3", async.polls)
	}
}

func TestAsyncProviderFailureIsClassified(t *testing.T) {
	async := &fakeAsyncAdapter{failMessage: "no speech detected in audio"}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024, mode: provider.Async}, nil, async)

	handle, _ := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 1, 16000)}, Options{})
	final := handle.Wait()
	if final.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Err.Category != classify.NoSpeechDetected {
		t.Errorf("category = %s, want %s", final.Err.Category, classify.NoSpeechDetected)
	}
}

func TestCancelDuringPolling(t *testing.T) {
	async := &fakeAsyncAdapter{pollsUntilDone: 1 << 30, text: "never"}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024, mode: provider.Async}, nil, async)

	var mu sync.Mutex
	var afterTerminal int
	terminalSeen := false
	o.onUpdate = func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if terminalSeen {
			afterTerminal++
		}
		if s.Status.Terminal() {
			terminalSeen = true
		}
	}

	handle, err := o.Start(context.Background(), Source{Name: "talk.wav", Data: testWAV(t, 1, 16000)}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Let it reach the poll loop, then cancel.
	time.Sleep(20 * time.Millisecond)
	o.Cancel()

	final := handle.Wait()
	if final.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}

	// No callbacks may fire after the terminal snapshot.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if afterTerminal != 0 {
		t.Errorf("%d callbacks fired after the terminal state", afterTerminal)
	}
}

func TestUndecodableSourcePassesThroughAsSingleChunk(t *testing.T) {
	adapter := &fakeAdapter{responses: []fakeResponse{{text: "from original container"}}}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 10 * 1024 * 1024}, adapter, nil)

	handle, err := o.Start(context.Background(), Source{Name: "clip.ogg", Data: []byte("not decodable audio bytes")}, Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}
	if final.Text != "from original container" {
		t.Errorf("text = %q, want pass-through submission result", final.Text)
	}
}

func TestProgressIsMonotonicPerJob(t *testing.T) {
	responses := make([]fakeResponse, 16)
	for i := range responses {
		responses[i] = fakeResponse{text: fmt.Sprintf("p%d", i)}
	}
	adapter := &fakeAdapter{responses: responses}
	o := newTestOrchestrator(t, &syncProvider{ceiling: 64 * 1024}, adapter, nil)

	var mu sync.Mutex
	var progress []float64
	o.onUpdate = func(s Snapshot) {
		mu.Lock()
		progress = append(progress, s.Progress)
		mu.Unlock()
	}

	handle, _ := o.Start(context.Background(), Source{Name: "long.wav", Data: testWAV(t, 10, 16000)}, Options{})
	final := handle.Wait()
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", final.Status, final.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
			break
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Errorf("final progress = %v, want 100", progress)
	}
}
