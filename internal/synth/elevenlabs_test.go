package synth

import (
	"errors"
	"testing"

	"github.com/haguro/elevenlabs-go"

	"github.com/antoniostano/dubstitch/internal/reliability"
)

func TestClassifyElevenLabsErrorTagsRequestFaults(t *testing.T) {
	if reliability.IsRetryableSynthesisError(classifyElevenLabsError(&elevenlabs.APIError{})) {
		t.Fatal("API error should not be retryable")
	}
	if reliability.IsRetryableSynthesisError(classifyElevenLabsError(&elevenlabs.ValidationError{})) {
		t.Fatal("validation error should not be retryable")
	}
	if !reliability.IsRetryableSynthesisError(classifyElevenLabsError(errors.New("connection reset"))) {
		t.Fatal("transport error should stay retryable")
	}
}

func TestNewElevenLabsRequiresAPIKey(t *testing.T) {
	if _, err := NewElevenLabs(ElevenLabsConfig{}); err == nil {
		t.Fatal("NewElevenLabs() without key expected error")
	}
}
