package stitch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/dubstitch/internal/audio"
	"github.com/antoniostano/dubstitch/internal/manifest"
	"github.com/antoniostano/dubstitch/internal/observability"
	"github.com/antoniostano/dubstitch/internal/reliability"
	"github.com/antoniostano/dubstitch/internal/synth"
	"github.com/antoniostano/dubstitch/internal/transcript"
)

// State is the phase of a stitching run. Transitions are linear:
// validating → synthesizing → reconciling → assembling → done|failed.
type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateSynthesizing State = "synthesizing"
	StateReconciling  State = "reconciling"
	StateAssembling   State = "assembling"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

var (
	// ErrHighFailureRate is returned when failed segments exceed the
	// configured fraction of the attempted batch. A half-silent track
	// must never be produced silently.
	ErrHighFailureRate = errors.New("synthesis failure rate over limit")
	// ErrNoAudio is returned when at least one segment was attempted
	// and none produced audio.
	ErrNoAudio = errors.New("no segment produced audio")
)

// Config holds the knobs for one stitching run.
type Config struct {
	// OutputDir receives chunk_<index>.wav files and manifest.json.
	// Empty disables artifact writing.
	OutputDir string
	// RunID tags artifacts and events; empty generates one.
	RunID string
	// Voice is passed through to the synthesizer.
	Voice string

	SampleRate  int
	Concurrency int
	// Attempts per segment before it is recorded as failed.
	Attempts         int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	// FailureRateLimit fails the run when the failed fraction strictly
	// exceeds it. At exactly the limit the run still succeeds.
	FailureRateLimit float64
	// TotalDuration of the final track in seconds. Zero derives it
	// from the latest segment end.
	TotalDuration float64

	Reconcile ReconcileOptions
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 250 * time.Millisecond
	}
	if c.RetryBackoffCap <= 0 {
		c.RetryBackoffCap = 2 * time.Second
	}
	if c.FailureRateLimit <= 0 {
		c.FailureRateLimit = 0.5
	}
	if c.Reconcile == (ReconcileOptions{}) {
		c.Reconcile = DefaultReconcileOptions()
	}
}

// SegmentResult is the per-segment outcome surfaced to observers, the
// manifest, and the run store.
type SegmentResult struct {
	Index      int     `json:"index"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	OutputFile string  `json:"output_file,omitempty"`
	Method     string  `json:"synthesis_method,omitempty"`
	Success    bool    `json:"success"`
	Degraded   bool    `json:"degraded,omitempty"`
	Drift      float64 `json:"drift_seconds"`
	Attempts   int     `json:"attempts"`
	Error      string  `json:"error,omitempty"`

	chunk *audio.Chunk
}

// Observer receives progress callbacks during a run. Either field may
// be nil. OnSegment fires once per attempted segment, after its
// reconciliation settled.
type Observer struct {
	OnState   func(runID string, state State)
	OnSegment func(runID string, result SegmentResult)
}

// Result is a completed run.
type Result struct {
	RunID        string
	Track        *audio.Chunk
	Segments     []SegmentResult
	Stats        Stats
	ManifestPath string
}

// Runner drives the full stitch pipeline over one batch of segments.
type Runner struct {
	synth synth.Synthesizer
	cfg   Config

	// Metrics and Observer are optional and must be set before Run.
	Metrics  *observability.Metrics
	Observer Observer

	mu    sync.Mutex
	state State
	runID string
}

func NewRunner(s synth.Synthesizer, cfg Config) *Runner {
	cfg.applyDefaults()
	return &Runner{synth: s, cfg: cfg, state: StateIdle}
}

// State reports the current phase, for status surfaces.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	runID := r.runID
	cb := r.Observer.OnState
	r.mu.Unlock()
	if cb != nil {
		cb(runID, s)
	}
}

// Run validates, synthesizes, reconciles and assembles the batch.
// On ErrHighFailureRate the partial result (segments and stats, no
// track) is returned alongside the error so callers can report it.
func (r *Runner) Run(ctx context.Context, segments []transcript.Segment) (*Result, error) {
	runID := r.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	r.mu.Lock()
	r.runID = runID
	r.mu.Unlock()

	started := time.Now()
	if r.Metrics != nil {
		r.Metrics.ActiveRuns.Inc()
		defer r.Metrics.ActiveRuns.Dec()
		defer func() { r.Metrics.ObserveRunDuration(time.Since(started)) }()
	}

	r.setState(StateValidating)
	validated, err := transcript.Validate(segments)
	if err != nil {
		r.setState(StateFailed)
		return nil, err
	}

	totalDuration := r.cfg.TotalDuration
	if totalDuration <= 0 {
		for _, seg := range segments {
			if seg.End > totalDuration {
				totalDuration = seg.End
			}
		}
	}

	if r.cfg.OutputDir != "" {
		if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
			r.setState(StateFailed)
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	results := r.synthesizeAll(ctx, validated.Segments)
	if ctx.Err() != nil {
		// Partial output is discarded on cancellation.
		r.setState(StateFailed)
		return nil, ctx.Err()
	}

	r.setState(StateReconciling)
	if err := r.reconcileAll(runID, results); err != nil {
		r.setState(StateFailed)
		return nil, err
	}

	stats := buildStats(results, validated.Skipped, len(validated.Segments))
	res := &Result{RunID: runID, Segments: results, Stats: stats}

	if err := checkFailurePolicy(stats, r.cfg.FailureRateLimit); err != nil {
		r.setState(StateFailed)
		return res, err
	}

	r.setState(StateAssembling)
	placed := make([]Placed, 0, stats.Successful)
	for _, sr := range results {
		if sr.Success {
			placed = append(placed, Placed{Chunk: sr.chunk, Start: sr.Start})
		}
	}
	res.Track = Assemble(placed, totalDuration, r.cfg.SampleRate)

	if r.cfg.OutputDir != "" {
		res.ManifestPath = filepath.Join(r.cfg.OutputDir, "manifest.json")
		if err := manifest.Write(res.ManifestPath, manifest.NewRun(runID, validated.Skipped, manifestRecords(results))); err != nil {
			r.setState(StateFailed)
			return res, err
		}
	}

	r.setState(StateDone)
	return res, nil
}

// synthesizeAll runs the bounded worker pool over the validated batch.
// Each worker owns its slot in the results slice; no other state is
// shared. The pool is the only concurrent phase, so assembly later
// runs single-writer.
func (r *Runner) synthesizeAll(ctx context.Context, batch []transcript.Indexed) []SegmentResult {
	r.setState(StateSynthesizing)
	results := make([]SegmentResult, len(batch))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := r.cfg.Concurrency
	if workers > len(batch) {
		workers = len(batch)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.synthesizeSegment(ctx, batch[i])
			}
		}()
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// synthesizeSegment tries each engine in failover order, exhausting
// one engine's attempts before the next engine runs at all. A segment
// never aborts the batch; when every engine is spent the failure is
// recorded and the segment's window stays silent.
func (r *Runner) synthesizeSegment(ctx context.Context, seg transcript.Indexed) SegmentResult {
	sr := SegmentResult{
		Index: seg.Index,
		Start: seg.Segment.Start,
		End:   seg.Segment.End,
		Text:  seg.Segment.Text,
	}

	var failures []string
	for _, engine := range synth.Flatten(r.synth) {
		if ctx.Err() != nil {
			break
		}
		chunk, method, err := r.attemptEngine(ctx, engine, seg.Segment.Text, &sr)
		if err == nil {
			sr.Success = true
			sr.Method = method
			sr.chunk = chunk
			return sr
		}
		failures = append(failures, fmt.Sprintf("%s: %v", engine.Name(), err))
	}

	switch {
	case len(failures) > 0:
		sr.Error = strings.Join(failures, "; ")
	case ctx.Err() != nil:
		sr.Error = ctx.Err().Error()
	}
	return sr
}

// attemptEngine runs the per-engine retry loop with capped exponential
// backoff. Non-retryable errors end the loop early.
func (r *Runner) attemptEngine(ctx context.Context, engine synth.Synthesizer, text string, sr *SegmentResult) (*audio.Chunk, string, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		sr.Attempts++
		if sr.Attempts > 1 && r.Metrics != nil {
			r.Metrics.SynthesisRetries.Inc()
		}

		chunk, method, err := engine.Synthesize(ctx, text, r.cfg.Voice)
		if err == nil && (chunk == nil || chunk.Duration() <= 0) {
			err = fmt.Errorf("synthesizer returned no audio")
		}
		if err == nil {
			return chunk, method, nil
		}
		lastErr = err
		if !reliability.IsRetryableSynthesisError(err) {
			break
		}
		if attempt < r.cfg.Attempts-1 {
			backoff := reliability.ExponentialBackoff(attempt, r.cfg.RetryBackoffBase, r.cfg.RetryBackoffCap)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, "", lastErr
}

// reconcileAll normalizes every successful chunk to the track sample
// rate, fits it to its segment window, writes chunk files, and emits
// per-segment events. Reconciliation trouble degrades a segment, it
// never fails it.
func (r *Runner) reconcileAll(runID string, results []SegmentResult) error {
	for i := range results {
		sr := &results[i]
		if sr.Success && sr.chunk.SampleRate != r.cfg.SampleRate {
			converted, err := audio.ConvertRate(sr.chunk, r.cfg.SampleRate)
			if err != nil {
				sr.Success = false
				sr.chunk = nil
				sr.Error = err.Error()
			} else {
				sr.chunk = converted
			}
		}
		if sr.Success {
			target := sr.End - sr.Start
			rec, err := Reconcile(sr.chunk, target, r.cfg.Reconcile)
			if err != nil {
				// Only malformed chunks land here; treat as a synthesis failure.
				sr.Success = false
				sr.chunk = nil
				sr.Error = err.Error()
			} else {
				sr.chunk = rec.Chunk
				sr.Degraded = rec.Degraded
				sr.Drift = rec.DriftFrom(target)
			}
		}

		if sr.Success && r.cfg.OutputDir != "" {
			name := fmt.Sprintf("chunk_%d.wav", sr.Index)
			if err := audio.WriteFile(filepath.Join(r.cfg.OutputDir, name), sr.chunk); err != nil {
				return err
			}
			sr.OutputFile = name
		}

		if r.Metrics != nil {
			outcome := "failed"
			if sr.Success {
				outcome = "success"
				r.Metrics.DriftSeconds.Observe(sr.Drift)
			}
			r.Metrics.Segments.WithLabelValues(outcome).Inc()
		}
		if r.Observer.OnSegment != nil {
			r.Observer.OnSegment(runID, *sr)
		}
	}
	return nil
}

func checkFailurePolicy(stats Stats, limit float64) error {
	attempted := stats.Successful + stats.Failed
	if attempted == 0 {
		// Nothing to attempt (all skippable): an all-silent track of the
		// requested duration is a legitimate result.
		return nil
	}
	if stats.Successful == 0 {
		return fmt.Errorf("%w: all %d attempted segments failed", ErrNoAudio, attempted)
	}
	if float64(stats.Failed) > limit*float64(attempted) {
		return fmt.Errorf("%w: %d of %d segments failed", ErrHighFailureRate, stats.Failed, attempted)
	}
	return nil
}

func manifestRecords(results []SegmentResult) []manifest.Record {
	records := make([]manifest.Record, len(results))
	for i, sr := range results {
		records[i] = manifest.Record{
			Index:           sr.Index,
			Start:           sr.Start,
			End:             sr.End,
			Text:            sr.Text,
			OutputFile:      sr.OutputFile,
			SynthesisMethod: sr.Method,
			Success:         sr.Success,
			Degraded:        sr.Degraded,
			DriftSeconds:    sr.Drift,
			Error:           sr.Error,
		}
	}
	return records
}
