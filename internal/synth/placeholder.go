package synth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/antoniostano/dubstitch/internal/audio"
)

// Placeholder is a deterministic offline generator: a quiet fixed
// tone whose length scales with the text. It exists as an explicit,
// selectable engine for tests and dry runs. Failed segments in a real
// run stay silent; they are never backfilled with this tone.
type Placeholder struct {
	// SecondsPerChar controls the synthetic speaking rate.
	// Zero means the default of 60ms per character.
	SecondsPerChar float64
	SampleRate     int
}

const (
	placeholderToneHz   = 440.0
	placeholderMinSecs  = 0.2
	placeholderGainInt  = 6000 // well under full scale, audible but quiet
	defaultSecsPerWrite = 0.06
)

func (p *Placeholder) Name() string { return "placeholder" }

func (p *Placeholder) Synthesize(_ context.Context, text, _ string) (*audio.Chunk, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("placeholder: empty text")
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	perChar := p.SecondsPerChar
	if perChar <= 0 {
		perChar = defaultSecsPerWrite
	}
	seconds := perChar * float64(utf8.RuneCountInString(text))
	if seconds < placeholderMinSecs {
		seconds = placeholderMinSecs
	}

	n := int(seconds * float64(rate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(placeholderGainInt * math.Sin(2*math.Pi*placeholderToneHz*float64(i)/float64(rate)))
	}
	return &audio.Chunk{Samples: samples, SampleRate: rate}, p.Name(), nil
}
