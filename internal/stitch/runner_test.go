package stitch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/dubstitch/internal/audio"
	"github.com/antoniostano/dubstitch/internal/reliability"
	"github.com/antoniostano/dubstitch/internal/synth"
	"github.com/antoniostano/dubstitch/internal/transcript"
)

// scriptedSynth returns audio of a fixed duration per text, or a
// scripted error. Deterministic and safe for concurrent use.
type scriptedSynth struct {
	mu        sync.Mutex
	durations map[string]float64
	rates     map[string]int // sample rate per text, default 24kHz
	failTexts map[string]bool
	failWith  map[string]error // typed error per text, always returned
	failUntil map[string]int   // fail the first N calls for a text
	calls     map[string]int
}

func newScriptedSynth() *scriptedSynth {
	return &scriptedSynth{
		durations: map[string]float64{},
		rates:     map[string]int{},
		failTexts: map[string]bool{},
		failWith:  map[string]error{},
		failUntil: map[string]int{},
		calls:     map[string]int{},
	}
}

func (s *scriptedSynth) Name() string { return "scripted" }

func (s *scriptedSynth) Synthesize(_ context.Context, text, _ string) (*audio.Chunk, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[text]++
	if err := s.failWith[text]; err != nil {
		return nil, "", err
	}
	if s.failTexts[text] {
		return nil, "", fmt.Errorf("scripted failure for %q", text)
	}
	if s.calls[text] <= s.failUntil[text] {
		return nil, "", fmt.Errorf("transient failure %d for %q", s.calls[text], text)
	}
	d, ok := s.durations[text]
	if !ok {
		d = 1.0
	}
	rate := s.rates[text]
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}
	return flatChunkRate(d, 7000, rate), s.Name(), nil
}

func (s *scriptedSynth) callCount(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[text]
}

func fastConfig() Config {
	return Config{
		Attempts:         3,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffCap:  2 * time.Millisecond,
	}
}

func TestRunExactFitProducesZeroDriftTrack(t *testing.T) {
	s := newScriptedSynth()
	s.durations["Hello"] = 3.0
	s.durations["World"] = 3.0

	r := NewRunner(s, fastConfig())
	res, err := r.Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 3, "Hello"),
		transcript.NewSegment(3, 6, "World"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, want := len(res.Track.Samples), 6*audio.DefaultSampleRate; got != want {
		t.Fatalf("track length = %d samples, want %d", got, want)
	}
	if res.Stats.Failed != 0 || res.Stats.Successful != 2 {
		t.Fatalf("stats = %+v, want 2 successes", res.Stats)
	}
	if res.Stats.MaxDrift > 0.001 {
		t.Fatalf("MaxDrift = %v, want ~0", res.Stats.MaxDrift)
	}
	if got := r.State(); got != StateDone {
		t.Fatalf("State() = %s, want %s", got, StateDone)
	}
}

func TestRunFailedSegmentLeavesSilenceAtHalfRate(t *testing.T) {
	s := newScriptedSynth()
	s.durations["Hello"] = 3.0
	s.failTexts["World"] = true

	r := NewRunner(s, fastConfig())
	res, err := r.Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 3, "Hello"),
		transcript.NewSegment(3, 6, "World"),
	})
	// Exactly at the 50% threshold: the run still succeeds.
	if err != nil {
		t.Fatalf("Run() error = %v, want success at threshold", err)
	}
	if got, want := len(res.Track.Samples), 6*audio.DefaultSampleRate; got != want {
		t.Fatalf("track length = %d, want %d", got, want)
	}
	for i := 3 * audio.DefaultSampleRate; i < 6*audio.DefaultSampleRate; i++ {
		if res.Track.Samples[i] != 0 {
			t.Fatalf("sample %d = %d, want silence in failed segment range", i, res.Track.Samples[i])
		}
	}
	var failed *SegmentResult
	for i := range res.Segments {
		if !res.Segments[i].Success {
			failed = &res.Segments[i]
		}
	}
	if failed == nil || failed.Index != 1 {
		t.Fatalf("failed segment = %+v, want index 1", failed)
	}
	if failed.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", failed.Attempts)
	}
	if s.callCount("World") != 3 {
		t.Fatalf("synthesizer calls for failing text = %d, want 3", s.callCount("World"))
	}
}

func TestRunFailureRateStrictlyOverLimitFails(t *testing.T) {
	mkSegments := func() []transcript.Segment {
		segs := make([]transcript.Segment, 10)
		for i := range segs {
			segs[i] = transcript.NewSegment(float64(i), float64(i+1), fmt.Sprintf("seg %d", i))
		}
		return segs
	}

	// 5 of 10 failed: at the limit, run succeeds.
	s := newScriptedSynth()
	for i := 0; i < 5; i++ {
		s.failTexts[fmt.Sprintf("seg %d", i)] = true
	}
	res, err := NewRunner(s, fastConfig()).Run(context.Background(), mkSegments())
	if err != nil {
		t.Fatalf("Run() with 5/10 failures error = %v, want success", err)
	}
	if res.Stats.Failed != 5 {
		t.Fatalf("failed = %d, want 5", res.Stats.Failed)
	}

	// 6 of 10 failed: strictly over, run fails.
	s = newScriptedSynth()
	for i := 0; i < 6; i++ {
		s.failTexts[fmt.Sprintf("seg %d", i)] = true
	}
	res, err = NewRunner(s, fastConfig()).Run(context.Background(), mkSegments())
	if !errors.Is(err, ErrHighFailureRate) {
		t.Fatalf("Run() with 6/10 failures error = %v, want ErrHighFailureRate", err)
	}
	if res == nil || res.Track != nil {
		t.Fatal("expected partial result without a track")
	}
	if res.Stats.Failed != 6 {
		t.Fatalf("failed = %d, want 6", res.Stats.Failed)
	}
}

func TestRunAllSegmentsFailedIsNoAudio(t *testing.T) {
	s := newScriptedSynth()
	s.failTexts["only"] = true
	_, err := NewRunner(s, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 2, "only"),
	})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Run() error = %v, want ErrNoAudio", err)
	}
}

func TestRunHardValidationAbortsBeforeSynthesis(t *testing.T) {
	s := newScriptedSynth()
	r := NewRunner(s, fastConfig())
	_, err := r.Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(2, 2, "zero width"),
	})
	var verr *transcript.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Run() error = %v, want *ValidationError", err)
	}
	if s.callCount("zero width") != 0 {
		t.Fatal("synthesizer must not run on an invalid batch")
	}
	if got := r.State(); got != StateFailed {
		t.Fatalf("State() = %s, want %s", got, StateFailed)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	s := newScriptedSynth()
	s.durations["flaky"] = 1.0
	s.failUntil["flaky"] = 2

	res, err := NewRunner(s, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "flaky"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Segments[0].Attempts != 3 || !res.Segments[0].Success {
		t.Fatalf("segment = %+v, want success on third attempt", res.Segments[0])
	}
}

func TestRunSkippableSegmentsAreDroppedNotFailed(t *testing.T) {
	s := newScriptedSynth()
	s.durations["spoken"] = 1.0

	res, err := NewRunner(s, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "spoken"),
		transcript.NewSegment(1, 2, "   "),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stats.Skipped != 1 || res.Stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 1 skipped, 0 failed", res.Stats)
	}
	// Track still spans the skipped segment's window.
	if got, want := len(res.Track.Samples), 2*audio.DefaultSampleRate; got != want {
		t.Fatalf("track length = %d, want %d", got, want)
	}
}

func TestRunCancellationDiscardsPartialOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScriptedSynth()
	res, err := NewRunner(s, fastConfig()).Run(ctx, []transcript.Segment{
		transcript.NewSegment(0, 1, "a"),
		transcript.NewSegment(1, 2, "b"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Fatal("cancelled run must not return a partial result")
	}
}

func TestRunWritesChunkFilesAndManifest(t *testing.T) {
	dir := t.TempDir()
	s := newScriptedSynth()
	s.durations["Hello"] = 3.0
	s.failTexts["World"] = true

	cfg := fastConfig()
	cfg.OutputDir = dir
	cfg.RunID = "run-test"
	res, err := NewRunner(s, cfg).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 3, "Hello"),
		transcript.NewSegment(3, 6, "World"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	chunk, err := audio.ReadFile(filepath.Join(dir, "chunk_0.wav"))
	if err != nil {
		t.Fatalf("reading chunk_0.wav: %v", err)
	}
	if chunk.Duration() < 2.9 || chunk.Duration() > 3.1 {
		t.Fatalf("chunk_0 duration = %v, want ~3.0", chunk.Duration())
	}
	if _, err := os.Stat(filepath.Join(dir, "chunk_1.wav")); !os.IsNotExist(err) {
		t.Fatal("failed segment must not produce a chunk file")
	}
	if res.ManifestPath == "" {
		t.Fatal("expected a manifest path")
	}
	if _, err := os.Stat(res.ManifestPath); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	if res.Segments[0].OutputFile != "chunk_0.wav" {
		t.Fatalf("OutputFile = %q, want chunk_0.wav", res.Segments[0].OutputFile)
	}
}

func TestRunEmitsObserverEvents(t *testing.T) {
	s := newScriptedSynth()
	s.durations["a"] = 1.0
	s.durations["b"] = 1.0

	var mu sync.Mutex
	var states []State
	var segments []int

	cfg := fastConfig()
	r := NewRunner(s, cfg)
	r.Observer = Observer{
		OnState: func(_ string, st State) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
		OnSegment: func(_ string, sr SegmentResult) {
			mu.Lock()
			segments = append(segments, sr.Index)
			mu.Unlock()
		},
	}
	if _, err := r.Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "a"),
		transcript.NewSegment(1, 2, "b"),
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(segments) != 2 {
		t.Fatalf("segment events = %d, want 2", len(segments))
	}
	if states[len(states)-1] != StateDone {
		t.Fatalf("final state = %s, want %s", states[len(states)-1], StateDone)
	}
	want := []State{StateValidating, StateSynthesizing, StateReconciling, StateAssembling, StateDone}
	if len(states) != len(want) {
		t.Fatalf("state sequence = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

type engineCallLog struct {
	mu    sync.Mutex
	names []string
}

func (l *engineCallLog) record(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *engineCallLog) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

type failingEngine struct {
	name string
	log  *engineCallLog
}

func (f *failingEngine) Name() string { return f.name }

func (f *failingEngine) Synthesize(_ context.Context, _, _ string) (*audio.Chunk, string, error) {
	f.log.record(f.name)
	return nil, "", fmt.Errorf("%s is down", f.name)
}

func TestRunExhaustsPrimaryAttemptsBeforeFallback(t *testing.T) {
	log := &engineCallLog{}
	chain := synth.NewChain(
		&failingEngine{name: "primary", log: log},
		&failingEngine{name: "fallback", log: log},
	)

	_, err := NewRunner(chain, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "hello"),
	})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Run() error = %v, want ErrNoAudio", err)
	}

	want := []string{"primary", "primary", "primary", "fallback", "fallback", "fallback"}
	got := log.calls()
	if len(got) != len(want) {
		t.Fatalf("engine calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("engine calls = %v, want %v", got, want)
		}
	}
}

func TestRunAttributesFallbackEngine(t *testing.T) {
	log := &engineCallLog{}
	fallback := newScriptedSynth()
	fallback.durations["hello"] = 1.0
	chain := synth.NewChain(&failingEngine{name: "primary", log: log}, fallback)

	res, err := NewRunner(chain, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "hello"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Segments[0].Method != "scripted" {
		t.Fatalf("Method = %q, want scripted", res.Segments[0].Method)
	}
	if got := len(log.calls()); got != 3 {
		t.Fatalf("primary calls = %d, want 3 before failover", got)
	}
	if res.Segments[0].Attempts != 4 {
		t.Fatalf("Attempts = %d, want 4", res.Segments[0].Attempts)
	}
}

func TestRunDoesNotRetryRequestFaults(t *testing.T) {
	s := newScriptedSynth()
	s.failWith["bad"] = &reliability.StatusError{Status: 401, Err: errors.New("unauthorized")}

	_, err := NewRunner(s, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "bad"),
	})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Run() error = %v, want ErrNoAudio", err)
	}
	if s.callCount("bad") != 1 {
		t.Fatalf("calls = %d, want 1 (request faults are final)", s.callCount("bad"))
	}
}

func TestRunNormalizesBackendSampleRate(t *testing.T) {
	s := newScriptedSynth()
	s.durations["hi"] = 1.0
	s.rates["hi"] = 48000

	res, err := NewRunner(s, fastConfig()).Run(context.Background(), []transcript.Segment{
		transcript.NewSegment(0, 1, "hi"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, want := len(res.Track.Samples), 1*audio.DefaultSampleRate; got != want {
		t.Fatalf("track length = %d samples, want %d", got, want)
	}
	if res.Segments[0].Drift > 0.01 {
		t.Fatalf("Drift = %v, want ~0 after rate conversion", res.Segments[0].Drift)
	}
	if mid := res.Track.Samples[len(res.Track.Samples)/2]; mid == 0 {
		t.Fatal("expected audio in the middle of the converted segment")
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	slow := &countingSynth{onCall: func() {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}}

	cfg := fastConfig()
	cfg.Concurrency = 2
	segs := make([]transcript.Segment, 8)
	for i := range segs {
		segs[i] = transcript.NewSegment(float64(i), float64(i+1), fmt.Sprintf("s%d", i))
	}
	if _, err := NewRunner(slow, cfg).Run(context.Background(), segs); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrent synthesis = %d, want <= 2", peak)
	}
}

type countingSynth struct {
	onCall func()
}

func (c *countingSynth) Name() string { return "counting" }

func (c *countingSynth) Synthesize(_ context.Context, _, _ string) (*audio.Chunk, string, error) {
	c.onCall()
	return flatChunk(1.0, 7000), c.Name(), nil
}
