package synth

import (
	"context"

	"github.com/antoniostano/dubstitch/internal/audio"
)

// Synthesizer converts one segment's text into raw audio. The second
// return value names the engine that actually produced the audio,
// which matters when adapters are chained.
//
// Implementations must return audio of strictly positive duration for
// non-empty text, or an error. Nothing else about the backend is
// assumed by the stitcher; retries are owned by the caller.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voiceID string) (*audio.Chunk, string, error)
}
