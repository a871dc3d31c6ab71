package audio

import (
	"fmt"
	"time"
)

// DefaultSampleRate matches the output rate of the TTS backends in use.
const DefaultSampleRate = 24000

// Chunk is mono PCM audio held as 16-bit samples.
type Chunk struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the chunk in seconds.
func (c *Chunk) Duration() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	out := &Chunk{Samples: make([]int16, len(c.Samples)), SampleRate: c.SampleRate}
	copy(out.Samples, c.Samples)
	return out
}

// Silence returns an all-zero chunk of the given duration.
func Silence(seconds float64, sampleRate int) *Chunk {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(seconds*float64(sampleRate) + 0.5)
	if n < 0 {
		n = 0
	}
	return &Chunk{Samples: make([]int16, n), SampleRate: sampleRate}
}

// Resample changes playback speed by ratio using linear interpolation.
// ratio > 1 shortens the chunk (faster speech), ratio < 1 lengthens it.
// The sample rate is unchanged; only the sample count scales.
func Resample(c *Chunk, ratio float64) (*Chunk, error) {
	if c == nil || len(c.Samples) == 0 {
		return nil, fmt.Errorf("resample: empty chunk")
	}
	if ratio <= 0 {
		return nil, fmt.Errorf("resample: non-positive ratio %v", ratio)
	}
	in := c.Samples
	n := int(float64(len(in))/ratio + 0.5)
	if n <= 0 {
		n = 1
	}
	out := make([]int16, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		a := float64(in[j])
		b := float64(in[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return &Chunk{Samples: out, SampleRate: c.SampleRate}, nil
}

// ConvertRate resamples the chunk to a new sample rate, preserving
// playback duration. The chunk is returned as-is when the rates
// already match.
func ConvertRate(c *Chunk, sampleRate int) (*Chunk, error) {
	if c == nil || len(c.Samples) == 0 {
		return nil, fmt.Errorf("convert rate: empty chunk")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("convert rate: non-positive rate %d", sampleRate)
	}
	if c.SampleRate <= 0 {
		return nil, fmt.Errorf("convert rate: chunk has no sample rate")
	}
	if c.SampleRate == sampleRate {
		return c, nil
	}
	out, err := Resample(c, float64(c.SampleRate)/float64(sampleRate))
	if err != nil {
		return nil, err
	}
	out.SampleRate = sampleRate
	return out, nil
}

// ApplyFades applies a linear fade-in and fade-out in place. The fade
// length is capped at a quarter of the chunk so short chunks keep an
// audible middle.
func ApplyFades(c *Chunk, fade time.Duration) {
	if c == nil || len(c.Samples) == 0 || c.SampleRate <= 0 {
		return
	}
	n := int(fade.Seconds() * float64(c.SampleRate))
	if max := len(c.Samples) / 4; n > max {
		n = max
	}
	if n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		gain := float64(i) / float64(n)
		c.Samples[i] = int16(float64(c.Samples[i]) * gain)
		j := len(c.Samples) - 1 - i
		c.Samples[j] = int16(float64(c.Samples[j]) * gain)
	}
}
