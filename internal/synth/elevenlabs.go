package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haguro/elevenlabs-go"

	"github.com/antoniostano/dubstitch/internal/audio"
	"github.com/antoniostano/dubstitch/internal/reliability"
)

// ElevenLabsConfig configures the cloud TTS adapter.
type ElevenLabsConfig struct {
	APIKey string
	// VoiceID is used when the caller does not pass one.
	VoiceID string
	ModelID string
	Timeout time.Duration
}

// ElevenLabs synthesizes speech through the ElevenLabs one-shot TTS
// endpoint, requesting raw PCM at the pipeline sample rate so no
// lossy transcode sits between the backend and the reconciler.
type ElevenLabs struct {
	cfg ElevenLabsConfig
}

func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs: missing API key")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	return &ElevenLabs{cfg: cfg}, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (*audio.Chunk, string, error) {
	if strings.TrimSpace(voiceID) == "" {
		voiceID = e.cfg.VoiceID
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, "", fmt.Errorf("elevenlabs: missing voice id")
	}
	client := elevenlabs.NewClient(ctx, e.cfg.APIKey, e.cfg.Timeout)
	payload, err := client.TextToSpeech(voiceID, elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
	}, elevenlabs.OutputFormat("pcm_24000"))
	if err != nil {
		return nil, "", classifyElevenLabsError(fmt.Errorf("elevenlabs tts: %w", err))
	}
	if len(payload) < 2 {
		return nil, "", fmt.Errorf("elevenlabs tts: empty audio payload")
	}
	chunk := pcm16leChunk(payload, audio.DefaultSampleRate)
	return chunk, e.Name(), nil
}

// classifyElevenLabsError tags request faults so they are not retried.
// The client returns typed errors only for 4xx responses (bad request,
// bad key, invalid payload); transport and 5xx failures come back
// untyped and stay transient.
func classifyElevenLabsError(err error) error {
	var apiErr *elevenlabs.APIError
	var valErr *elevenlabs.ValidationError
	switch {
	case errors.As(err, &apiErr):
		return &reliability.StatusError{Status: http.StatusBadRequest, Err: err}
	case errors.As(err, &valErr):
		return &reliability.StatusError{Status: http.StatusUnprocessableEntity, Err: err}
	}
	return err
}
