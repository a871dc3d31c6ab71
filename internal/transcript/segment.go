package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Segment is one timed span of translated transcript text. Segments are
// produced by the translation stage and are read-only inputs here.
type Segment struct {
	Start float64
	End   float64
	Text  string

	hasStart bool
	hasEnd   bool
	hasText  bool
}

// NewSegment builds a fully populated segment, as tests and in-process
// callers do. JSON-decoded segments may be missing fields instead.
func NewSegment(start, end float64, text string) Segment {
	return Segment{
		Start:    start,
		End:      end,
		Text:     text,
		hasStart: true,
		hasEnd:   true,
		hasText:  true,
	}
}

// Duration returns the segment's timing window length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start          *float64 `json:"start"`
		End            *float64 `json:"end"`
		TextTranslated *string  `json:"text_translated"`
		Text           *string  `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Segment{}
	if raw.Start != nil {
		s.Start = *raw.Start
		s.hasStart = true
	}
	if raw.End != nil {
		s.End = *raw.End
		s.hasEnd = true
	}
	// Translated text wins; plain "text" is accepted for transcripts
	// that were translated in place.
	switch {
	case raw.TextTranslated != nil:
		s.Text = *raw.TextTranslated
		s.hasText = true
	case raw.Text != nil:
		s.Text = *raw.Text
		s.hasText = true
	}
	return nil
}

func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start          float64 `json:"start"`
		End            float64 `json:"end"`
		TextTranslated string  `json:"text_translated"`
	}{Start: s.Start, End: s.End, TextTranslated: s.Text})
}

// Load decodes a transcript JSON array from r.
func Load(r io.Reader) ([]Segment, error) {
	var segments []Segment
	dec := json.NewDecoder(r)
	if err := dec.Decode(&segments); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return segments, nil
}

// LoadFile decodes a transcript JSON file.
func LoadFile(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	segments, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return segments, nil
}
