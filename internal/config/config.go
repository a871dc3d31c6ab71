package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the dubbing stitcher.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	AllowAnyOrigin bool

	OutputDir string
	Voice     string

	SampleRate        int
	Concurrency       int
	SynthesisAttempts int
	RetryBackoffBase  time.Duration
	RetryBackoffCap   time.Duration
	FailureRateLimit  float64

	SpeedRatioMin      float64
	SpeedRatioMax      float64
	NoStretchTolerance float64
	FadeDuration       time.Duration

	SynthProvider string

	KokoroPython       string
	KokoroWorkerScript string
	KokoroLangCode     string
	KokoroSpeed        float64

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	ElevenLabsTimeout time.Duration

	FFmpegPath  string
	FFprobePath string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "dubstitch"),
		AllowAnyOrigin:   false,
		OutputDir:        envOrDefault("APP_OUTPUT_DIR", "out"),
		Voice:            envOrDefault("APP_VOICE", ""),
		SampleRate:       24000,
		// Two concurrent segments by default: cloud TTS rate limits and
		// the single-flight kokoro worker both punish wider pools.
		Concurrency:       2,
		SynthesisAttempts: 3,
		RetryBackoffBase:  250 * time.Millisecond,
		RetryBackoffCap:   2 * time.Second,
		FailureRateLimit:  0.5,
		// Half to double speed is the audible-quality range for
		// playback-rate changes; 5% is below the noticeable threshold.
		SpeedRatioMin:      0.5,
		SpeedRatioMax:      2.0,
		NoStretchTolerance: 0.05,
		FadeDuration:       50 * time.Millisecond,
		SynthProvider:      envOrDefault("SYNTH_PROVIDER", "auto"),
		KokoroPython:       envOrDefault("KOKORO_PYTHON", ""),
		KokoroWorkerScript: envOrDefault("KOKORO_WORKER_SCRIPT", "scripts/kokoro_worker.py"),
		KokoroLangCode:     envOrDefault("KOKORO_LANG_CODE", "a"),
		KokoroSpeed:        1.0,
		ElevenLabsAPIKey:   stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:  envOrDefault("ELEVENLABS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsModelID:  envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsTimeout:  30 * time.Second,
		FFmpegPath:         envOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        envOrDefault("FFPROBE_PATH", "ffprobe"),
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:    15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffBase, err = durationFromEnv("APP_RETRY_BACKOFF_BASE", cfg.RetryBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffCap, err = durationFromEnv("APP_RETRY_BACKOFF_CAP", cfg.RetryBackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.FadeDuration, err = durationFromEnv("APP_FADE_DURATION", cfg.FadeDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.ElevenLabsTimeout, err = durationFromEnv("ELEVENLABS_TIMEOUT", cfg.ElevenLabsTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRate, err = intFromEnv("APP_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.Concurrency, err = intFromEnv("APP_CONCURRENCY", cfg.Concurrency)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisAttempts, err = intFromEnv("APP_SYNTHESIS_ATTEMPTS", cfg.SynthesisAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.FailureRateLimit, err = floatFromEnv("APP_FAILURE_RATE_LIMIT", cfg.FailureRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeedRatioMin, err = floatFromEnv("APP_SPEED_RATIO_MIN", cfg.SpeedRatioMin)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeedRatioMax, err = floatFromEnv("APP_SPEED_RATIO_MAX", cfg.SpeedRatioMax)
	if err != nil {
		return Config{}, err
	}
	cfg.NoStretchTolerance, err = floatFromEnv("APP_NO_STRETCH_TOLERANCE", cfg.NoStretchTolerance)
	if err != nil {
		return Config{}, err
	}
	cfg.KokoroSpeed, err = floatFromEnv("KOKORO_SPEED", cfg.KokoroSpeed)
	if err != nil {
		return Config{}, err
	}

	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("APP_SAMPLE_RATE must be positive")
	}
	if cfg.Concurrency <= 0 {
		return Config{}, fmt.Errorf("APP_CONCURRENCY must be positive")
	}
	if cfg.SynthesisAttempts <= 0 {
		return Config{}, fmt.Errorf("APP_SYNTHESIS_ATTEMPTS must be positive")
	}
	if cfg.FailureRateLimit <= 0 || cfg.FailureRateLimit > 1 {
		return Config{}, fmt.Errorf("APP_FAILURE_RATE_LIMIT must be in (0, 1]")
	}
	if cfg.SpeedRatioMin <= 0 || cfg.SpeedRatioMax < cfg.SpeedRatioMin {
		return Config{}, fmt.Errorf("speed ratio bounds must satisfy 0 < min <= max")
	}
	if cfg.NoStretchTolerance < 0 {
		return Config{}, fmt.Errorf("APP_NO_STRETCH_TOLERANCE must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
