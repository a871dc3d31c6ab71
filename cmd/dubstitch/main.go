package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/antoniostano/dubstitch/internal/audio"
	"github.com/antoniostano/dubstitch/internal/config"
	"github.com/antoniostano/dubstitch/internal/httpapi"
	"github.com/antoniostano/dubstitch/internal/observability"
	"github.com/antoniostano/dubstitch/internal/remux"
	"github.com/antoniostano/dubstitch/internal/runstore"
	"github.com/antoniostano/dubstitch/internal/stitch"
	"github.com/antoniostano/dubstitch/internal/synth"
	"github.com/antoniostano/dubstitch/internal/transcript"
)

func main() {
	_ = godotenv.Load()

	var (
		transcriptPath = flag.String("transcript", "", "translated transcript JSON (required)")
		videoPath      = flag.String("video", "", "source video to remux the dub into (optional)")
		outDir         = flag.String("out", "", "output directory (overrides APP_OUTPUT_DIR)")
		voice          = flag.String("voice", "", "voice id passed to the synthesizer")
		serve          = flag.Bool("serve", false, "expose run status HTTP API while stitching")
	)
	flag.Parse()

	if strings.TrimSpace(*transcriptPath) == "" {
		log.Fatal("missing -transcript")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *voice != "" {
		cfg.Voice = *voice
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	segments, err := transcript.LoadFile(*transcriptPath)
	if err != nil {
		log.Fatalf("transcript load failed: %v", err)
	}
	log.Printf("transcript: %d segments from %s", len(segments), *transcriptPath)

	store, err := runstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("run store init failed: %v", err)
	}
	defer store.Close()

	synthesizer, cleanup, err := buildSynthesizer(cfg)
	if err != nil {
		log.Fatalf("synthesizer init failed: %v", err)
	}
	defer cleanup()
	log.Printf("synthesizer: %s", synthesizer.Name())

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	hub := httpapi.NewHub()

	if *serve {
		srv := &http.Server{
			Addr:    cfg.BindAddr,
			Handler: httpapi.New(cfg, store, hub).Router(),
		}
		go func() {
			log.Printf("status API listening on %s", cfg.BindAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("status API error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	muxer := remux.New(cfg.FFmpegPath, cfg.FFprobePath)

	runnerCfg := stitch.Config{
		OutputDir:        cfg.OutputDir,
		Voice:            cfg.Voice,
		SampleRate:       cfg.SampleRate,
		Concurrency:      cfg.Concurrency,
		Attempts:         cfg.SynthesisAttempts,
		RetryBackoffBase: cfg.RetryBackoffBase,
		RetryBackoffCap:  cfg.RetryBackoffCap,
		FailureRateLimit: cfg.FailureRateLimit,
		Reconcile: stitch.ReconcileOptions{
			MinRatio:  cfg.SpeedRatioMin,
			MaxRatio:  cfg.SpeedRatioMax,
			Tolerance: cfg.NoStretchTolerance,
			Fade:      cfg.FadeDuration,
		},
	}
	if *videoPath != "" {
		d, err := muxer.Duration(ctx, *videoPath)
		if err != nil {
			log.Fatalf("probe video duration failed: %v", err)
		}
		runnerCfg.TotalDuration = d
		log.Printf("video duration: %.2fs", d)
	}

	runner := stitch.NewRunner(synthesizer, runnerCfg)
	runner.Metrics = metrics
	runner.Observer = stitch.Observer{
		OnState: func(runID string, state stitch.State) {
			_ = store.SaveRun(ctx, runstore.RunRecord{ID: runID, State: string(state)})
			hub.Publish(httpapi.Event{Type: "state", RunID: runID, State: string(state)})
		},
		OnSegment: func(runID string, sr stitch.SegmentResult) {
			record := runstore.SegmentRecord{
				RunID:           runID,
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
			_ = store.SaveSegment(ctx, record)
			hub.Publish(httpapi.Event{Type: "segment", RunID: runID, Segment: &record})
		},
	}

	started := time.Now()
	res, err := runner.Run(ctx, segments)
	if res != nil {
		finalizeRun(ctx, store, res, runner.State(), err)
	}
	if err != nil {
		log.Fatalf("stitching failed: %v", err)
	}

	log.Printf("stitched %d/%d segments in %s (failed=%d skipped=%d drift mean=%.3fs max=%.3fs)",
		res.Stats.Successful, res.Stats.Total, time.Since(started).Round(time.Millisecond),
		res.Stats.Failed, res.Stats.Skipped, res.Stats.MeanDrift, res.Stats.MaxDrift)

	trackPath := filepath.Join(cfg.OutputDir, "track.wav")
	if err := audio.WriteFile(trackPath, res.Track); err != nil {
		log.Fatalf("track write failed: %v", err)
	}
	log.Printf("track: %s (%.2fs)", trackPath, res.Track.Duration())

	if *videoPath != "" {
		base := strings.TrimSuffix(filepath.Base(*videoPath), filepath.Ext(*videoPath))
		dubbedPath := filepath.Join(cfg.OutputDir, base+".dubbed.mp4")
		if err := muxer.Mux(ctx, *videoPath, trackPath, dubbedPath); err != nil {
			log.Fatalf("remux failed: %v", err)
		}
		log.Printf("dubbed video: %s", dubbedPath)
	}
}

// buildSynthesizer resolves the configured provider, chaining a
// fallback behind the primary when both are available. The placeholder
// generator is only used when explicitly selected.
func buildSynthesizer(cfg config.Config) (synth.Synthesizer, func(), error) {
	cleanup := func() {}

	mode := strings.ToLower(strings.TrimSpace(cfg.SynthProvider))
	if mode == "" {
		mode = "auto"
	}

	newKokoro := func() (synth.Synthesizer, func(), error) {
		k, err := synth.NewKokoro(synth.KokoroConfig{
			Python:   cfg.KokoroPython,
			Script:   cfg.KokoroWorkerScript,
			LangCode: cfg.KokoroLangCode,
			Speed:    cfg.KokoroSpeed,
		})
		if err != nil {
			return nil, nil, err
		}
		return k, func() { _ = k.Close() }, nil
	}
	newElevenLabs := func() (synth.Synthesizer, error) {
		return synth.NewElevenLabs(synth.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			ModelID: cfg.ElevenLabsModelID,
			Timeout: cfg.ElevenLabsTimeout,
		})
	}

	switch mode {
	case "kokoro":
		return newKokoro()
	case "elevenlabs":
		s, err := newElevenLabs()
		return s, cleanup, err
	case "placeholder":
		return &synth.Placeholder{SampleRate: cfg.SampleRate}, cleanup, nil
	case "auto":
		var adapters []synth.Synthesizer
		k, kokoroCleanup, err := newKokoro()
		if err == nil {
			adapters = append(adapters, k)
			cleanup = kokoroCleanup
		} else {
			log.Printf("kokoro unavailable: %v", err)
		}
		if cfg.ElevenLabsAPIKey != "" {
			e, err := newElevenLabs()
			if err == nil {
				adapters = append(adapters, e)
			} else {
				log.Printf("elevenlabs unavailable: %v", err)
			}
		}
		chained := synth.NewChain(adapters...)
		if chained == nil {
			return nil, nil, errors.New("no synthesizer available (set KOKORO_PYTHON or ELEVENLABS_API_KEY, or SYNTH_PROVIDER=placeholder)")
		}
		return chained, cleanup, nil
	default:
		return nil, nil, errors.New("unknown SYNTH_PROVIDER " + cfg.SynthProvider)
	}
}

func finalizeRun(ctx context.Context, store runstore.Store, res *stitch.Result, state stitch.State, runErr error) {
	record := runstore.RunRecord{
		ID:         res.RunID,
		State:      string(state),
		Total:      res.Stats.Total,
		Successful: res.Stats.Successful,
		Failed:     res.Stats.Failed,
		Skipped:    res.Stats.Skipped,
		MeanDrift:  res.Stats.MeanDrift,
		MaxDrift:   res.Stats.MaxDrift,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	_ = store.SaveRun(ctx, record)
}
