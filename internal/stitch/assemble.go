package stitch

import (
	"github.com/antoniostano/dubstitch/internal/audio"
)

// Placed is a reconciled chunk positioned at its segment's start.
type Placed struct {
	Chunk *audio.Chunk
	Start float64
}

// Assemble lays every chunk into a silent buffer of totalDuration at
// sampleRate. Single writer, one voice track: overlapping placements
// are not mixed, later writes overwrite earlier samples, and a chunk
// reaching past the end of the buffer is truncated at the edge. Time
// ranges no chunk covers stay silent. Chunks delivered at a different
// sample rate are converted before placement so their timing holds.
func Assemble(placed []Placed, totalDuration float64, sampleRate int) *audio.Chunk {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	track := audio.Silence(totalDuration, sampleRate)
	for _, p := range placed {
		if p.Chunk == nil || len(p.Chunk.Samples) == 0 {
			continue
		}
		chunk := p.Chunk
		if chunk.SampleRate != sampleRate {
			converted, err := audio.ConvertRate(chunk, sampleRate)
			if err != nil {
				continue
			}
			chunk = converted
		}
		offset := int(p.Start*float64(sampleRate) + 0.5)
		if offset < 0 || offset >= len(track.Samples) {
			continue
		}
		copy(track.Samples[offset:], chunk.Samples)
	}
	return track
}

// Stats summarizes one stitching run for diagnostics. It is surfaced
// to the caller and never consulted internally.
type Stats struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	MeanDrift  float64 `json:"mean_drift_seconds"`
	MaxDrift   float64 `json:"max_drift_seconds"`
}

func buildStats(results []SegmentResult, skipped, totalInput int) Stats {
	st := Stats{Total: totalInput, Skipped: skipped}
	var driftSum float64
	for _, r := range results {
		if !r.Success {
			st.Failed++
			continue
		}
		st.Successful++
		driftSum += r.Drift
		if r.Drift > st.MaxDrift {
			st.MaxDrift = r.Drift
		}
	}
	if st.Successful > 0 {
		st.MeanDrift = driftSum / float64(st.Successful)
	}
	return st
}
