package synth

import (
	"context"
	"fmt"

	"github.com/antoniostano/dubstitch/internal/audio"
)

// Chain composes a primary synthesizer with a fallback. Synthesize is
// a single failover pass: primary once, then fallback once. Callers
// with their own retry loop use Flatten instead so each engine's
// attempts are exhausted before the next engine runs. The engine name
// of whichever adapter produced the audio is returned so manifests
// record the real source.
type Chain struct {
	Primary  Synthesizer
	Fallback Synthesizer
}

// NewChain links adapters left to right into nested chains; a single
// adapter is returned as-is.
func NewChain(adapters ...Synthesizer) Synthesizer {
	var out Synthesizer
	for i := len(adapters) - 1; i >= 0; i-- {
		if adapters[i] == nil {
			continue
		}
		if out == nil {
			out = adapters[i]
			continue
		}
		out = &Chain{Primary: adapters[i], Fallback: out}
	}
	return out
}

// Flatten expands a chain into its adapters in failover order; a plain
// adapter flattens to itself. Callers that own a retry loop iterate
// the flattened list so one engine's attempts are exhausted before the
// next engine is tried at all.
func Flatten(s Synthesizer) []Synthesizer {
	if s == nil {
		return nil
	}
	if c, ok := s.(*Chain); ok {
		return append(Flatten(c.Primary), Flatten(c.Fallback)...)
	}
	return []Synthesizer{s}
}

func (c *Chain) Name() string {
	return c.Primary.Name() + "+" + c.Fallback.Name()
}

func (c *Chain) Synthesize(ctx context.Context, text, voiceID string) (*audio.Chunk, string, error) {
	chunk, method, prErr := c.Primary.Synthesize(ctx, text, voiceID)
	if prErr == nil {
		return chunk, method, nil
	}
	if ctx.Err() != nil {
		return nil, "", prErr
	}
	chunk, method, fbErr := c.Fallback.Synthesize(ctx, text, voiceID)
	if fbErr != nil {
		return nil, "", fmt.Errorf("%s failed: %v; %s failed: %w",
			c.Primary.Name(), prErr, c.Fallback.Name(), fbErr)
	}
	return chunk, method, nil
}
