package synth

import (
	"context"
	"math"
	"testing"
)

func TestPlaceholderDurationScalesWithText(t *testing.T) {
	p := &Placeholder{SecondsPerChar: 0.1}
	short, _, err := p.Synthesize(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	long, _, err := p.Synthesize(context.Background(), "hello world", "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if long.Duration() <= short.Duration() {
		t.Fatalf("longer text duration %v <= shorter %v", long.Duration(), short.Duration())
	}
	if got := long.Duration(); math.Abs(got-1.1) > 0.01 {
		t.Fatalf("duration = %v, want 1.1", got)
	}
}

func TestPlaceholderIsDeterministic(t *testing.T) {
	p := &Placeholder{}
	a, _, _ := p.Synthesize(context.Background(), "same text", "")
	b, _, _ := p.Synthesize(context.Background(), "same text", "")
	if len(a.Samples) != len(b.Samples) {
		t.Fatalf("sample counts differ: %d vs %d", len(a.Samples), len(b.Samples))
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("sample %d differs", i)
		}
	}
}

func TestPlaceholderRejectsEmptyText(t *testing.T) {
	p := &Placeholder{}
	if _, _, err := p.Synthesize(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestPlaceholderMinimumDuration(t *testing.T) {
	p := &Placeholder{SecondsPerChar: 0.001}
	c, _, err := p.Synthesize(context.Background(), "x", "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if c.Duration() < placeholderMinSecs {
		t.Fatalf("duration = %v, want >= %v", c.Duration(), placeholderMinSecs)
	}
}
