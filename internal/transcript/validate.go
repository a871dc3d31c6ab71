package transcript

import (
	"fmt"
	"strings"
)

// Reason classifies a hard validation failure.
type Reason string

const (
	MissingField  Reason = "missing_field"
	InvalidTiming Reason = "invalid_timing"
)

// Problem points at one hard-invalid segment.
type Problem struct {
	Index  int
	Reason Reason
	Detail string
}

func (p Problem) String() string {
	return fmt.Sprintf("segment %d: %s (%s)", p.Index, p.Reason, p.Detail)
}

// ValidationError aggregates every hard-invalid segment in a batch so a
// caller can fix the whole transcript in one pass.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("transcript validation failed: %s", strings.Join(parts, "; "))
}

// Indexed pairs a kept segment with its position in the input batch.
// The original index survives filtering so chunk files and manifest
// rows stay aligned with the source transcript.
type Indexed struct {
	Index   int
	Segment Segment
}

// Result is the validated, filtered batch.
type Result struct {
	Segments []Indexed
	Skipped  int
}

// Validate checks the batch for structural and temporal
// well-formedness. Hard failures (missing fields, inverted or
// zero-length timing) abort the batch; empty-text segments are merely
// dropped. Pure function, no side effects.
func Validate(segments []Segment) (Result, error) {
	var res Result
	var problems []Problem
	for i, seg := range segments {
		var missing []string
		if !seg.hasStart {
			missing = append(missing, "start")
		}
		if !seg.hasEnd {
			missing = append(missing, "end")
		}
		if !seg.hasText {
			missing = append(missing, "text_translated")
		}
		if len(missing) > 0 {
			problems = append(problems, Problem{
				Index:  i,
				Reason: MissingField,
				Detail: strings.Join(missing, ", "),
			})
			continue
		}
		if seg.Start < 0 || seg.Start >= seg.End {
			problems = append(problems, Problem{
				Index:  i,
				Reason: InvalidTiming,
				Detail: fmt.Sprintf("start=%.3f end=%.3f", seg.Start, seg.End),
			})
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			res.Skipped++
			continue
		}
		res.Segments = append(res.Segments, Indexed{Index: i, Segment: seg})
	}
	if len(problems) > 0 {
		return Result{}, &ValidationError{Problems: problems}
	}
	return res, nil
}
