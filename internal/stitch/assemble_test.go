package stitch

import (
	"testing"

	"github.com/antoniostano/dubstitch/internal/audio"
)

func TestAssembleConvertsMismatchedSampleRates(t *testing.T) {
	// A 1s chunk delivered at 48kHz must occupy 1s of a 24kHz track,
	// not 2s of it.
	placed := []Placed{{Chunk: flatChunkRate(1.0, 5000, 48000), Start: 0}}
	track := Assemble(placed, 3.0, audio.DefaultSampleRate)

	if got, want := len(track.Samples), 3*audio.DefaultSampleRate; got != want {
		t.Fatalf("track samples = %d, want %d", got, want)
	}
	if at := track.Samples[audio.DefaultSampleRate/2]; at == 0 {
		t.Fatal("expected audio at 0.5s inside the chunk's window")
	}
	if at := track.Samples[3*audio.DefaultSampleRate/2]; at != 0 {
		t.Fatalf("sample at 1.5s = %d, want silence past the chunk's window", at)
	}
}

func TestAssembleTilingCoversWholeTrack(t *testing.T) {
	placed := []Placed{
		{Chunk: flatChunk(3.0, 5000), Start: 0},
		{Chunk: flatChunk(3.0, 5000), Start: 3.0},
	}
	track := Assemble(placed, 6.0, audio.DefaultSampleRate)

	if got, want := len(track.Samples), 6*audio.DefaultSampleRate; got != want {
		t.Fatalf("track samples = %d, want %d", got, want)
	}
	for i, s := range track.Samples {
		if s == 0 {
			t.Fatalf("silent sample at %d in a gapless tiling", i)
		}
	}
}

func TestAssembleLeavesGapsSilent(t *testing.T) {
	placed := []Placed{
		{Chunk: flatChunk(1.0, 5000), Start: 0},
		{Chunk: flatChunk(1.0, 5000), Start: 3.0},
	}
	track := Assemble(placed, 4.0, audio.DefaultSampleRate)

	rate := audio.DefaultSampleRate
	for i := rate; i < 3*rate; i++ {
		if track.Samples[i] != 0 {
			t.Fatalf("gap sample %d = %d, want silence", i, track.Samples[i])
		}
	}
	if track.Samples[0] != 5000 || track.Samples[3*rate] != 5000 {
		t.Fatal("placed chunks missing from track")
	}
}

func TestAssembleOverlapLaterWriteWins(t *testing.T) {
	placed := []Placed{
		{Chunk: flatChunk(2.0, 1111), Start: 0},
		{Chunk: flatChunk(1.0, 2222), Start: 1.0},
	}
	track := Assemble(placed, 2.0, audio.DefaultSampleRate)

	rate := audio.DefaultSampleRate
	if track.Samples[rate/2] != 1111 {
		t.Fatalf("sample at 0.5s = %d, want 1111", track.Samples[rate/2])
	}
	if track.Samples[rate+rate/2] != 2222 {
		t.Fatalf("sample at 1.5s = %d, want 2222 (overwritten)", track.Samples[rate+rate/2])
	}
}

func TestAssembleTruncatesAtTrackEdge(t *testing.T) {
	placed := []Placed{{Chunk: flatChunk(3.0, 5000), Start: 1.0}}
	track := Assemble(placed, 2.0, audio.DefaultSampleRate)

	if got, want := len(track.Samples), 2*audio.DefaultSampleRate; got != want {
		t.Fatalf("track samples = %d, want %d (no growth)", got, want)
	}
	if track.Samples[len(track.Samples)-1] != 5000 {
		t.Fatal("chunk not written up to the edge")
	}
}

func TestAssembleIgnoresOutOfRangeAndEmptyChunks(t *testing.T) {
	placed := []Placed{
		{Chunk: flatChunk(1.0, 5000), Start: 10.0},
		{Chunk: nil, Start: 0},
		{Chunk: &audio.Chunk{SampleRate: audio.DefaultSampleRate}, Start: 0},
	}
	track := Assemble(placed, 2.0, audio.DefaultSampleRate)
	for i, s := range track.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %d, want all silence", i, s)
		}
	}
}

func TestBuildStatsDriftAggregation(t *testing.T) {
	results := []SegmentResult{
		{Success: true, Drift: 0.1},
		{Success: true, Drift: 0.3},
		{Success: false},
	}
	st := buildStats(results, 2, 3)
	if st.Successful != 2 || st.Failed != 1 || st.Skipped != 2 || st.Total != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if st.MaxDrift != 0.3 {
		t.Fatalf("MaxDrift = %v, want 0.3", st.MaxDrift)
	}
	if st.MeanDrift != 0.2 {
		t.Fatalf("MeanDrift = %v, want 0.2", st.MeanDrift)
	}
}
