package stitch

import (
	"fmt"
	"time"

	"github.com/antoniostano/dubstitch/internal/audio"
)

// ReconcileOptions bound how far playback speed may be bent to fit a
// segment's timing window.
type ReconcileOptions struct {
	// MinRatio/MaxRatio clamp the speed ratio. Outside this range the
	// boundary value is used and residual drift is accepted; harder
	// time-stretching hurts intelligibility more than timing drift.
	MinRatio float64
	MaxRatio float64
	// Tolerance is the no-op band: ratios within it of 1.0 skip
	// resampling entirely since the difference is inaudible.
	Tolerance float64
	// Fade is the click-removal fade applied to both chunk edges,
	// capped at a quarter of the chunk length.
	Fade time.Duration
}

// DefaultReconcileOptions matches the audible-range limits used across
// the pipeline: half to double speed, 5% no-op band, 50ms fades.
func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{
		MinRatio:  0.5,
		MaxRatio:  2.0,
		Tolerance: 0.05,
		Fade:      50 * time.Millisecond,
	}
}

// Reconciled is a chunk whose duration has been fitted to its segment
// window, within the clamp bound.
type Reconciled struct {
	Chunk *audio.Chunk
	// Ratio is the clamped speed ratio that was targeted. 1.0 when the
	// chunk was already close enough.
	Ratio float64
	// Degraded marks the stretch-failed fallback: the original-duration
	// chunk was kept (fades still applied). Informational, never fatal.
	Degraded bool
}

// DriftFrom returns the remaining absolute difference between the chunk's
// duration and the target, in seconds.
func (r Reconciled) DriftFrom(target float64) float64 {
	d := r.Chunk.Duration() - target
	if d < 0 {
		d = -d
	}
	return d
}

// Reconcile fits chunk's playback duration to targetDuration by
// resampling, then applies edge fades unconditionally. Re-running on an
// already-fitting chunk leaves its duration untouched.
func Reconcile(chunk *audio.Chunk, targetDuration float64, opts ReconcileOptions) (Reconciled, error) {
	if chunk == nil || len(chunk.Samples) == 0 {
		return Reconciled{}, fmt.Errorf("reconcile: empty chunk")
	}
	if targetDuration <= 0 {
		return Reconciled{}, fmt.Errorf("reconcile: non-positive target duration %v", targetDuration)
	}
	if opts.MinRatio <= 0 || opts.MaxRatio < opts.MinRatio {
		return Reconciled{}, fmt.Errorf("reconcile: invalid ratio bounds [%v, %v]", opts.MinRatio, opts.MaxRatio)
	}

	out := Reconciled{Chunk: chunk, Ratio: 1.0}

	ratio := chunk.Duration() / targetDuration
	if ratio < opts.MinRatio {
		ratio = opts.MinRatio
	} else if ratio > opts.MaxRatio {
		ratio = opts.MaxRatio
	}

	if abs(ratio-1.0) > opts.Tolerance {
		stretched, err := audio.Resample(chunk, ratio)
		if err != nil {
			// Keep the original chunk; duration mismatch beats data loss.
			out.Degraded = true
		} else {
			out.Chunk = stretched
			out.Ratio = ratio
		}
	}

	out.Chunk = out.Chunk.Clone()
	audio.ApplyFades(out.Chunk, opts.Fade)
	return out, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
