package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV wraps a mono PCM16 chunk in a WAV container.
func EncodeWAV(c *Chunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVTo(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVTo writes a mono PCM16 chunk to out as a WAV stream.
func WriteWAVTo(out io.Writer, c *Chunk) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if c == nil {
		return fmt.Errorf("encode wav: nil chunk")
	}
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	dataSize := uint32(len(c.Samples) * 2)
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(numChannels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.Samples); err != nil {
		return err
	}
	return w.Flush()
}

// DecodeWAV parses a WAV payload into a mono chunk. Multichannel input
// is downmixed by averaging; sample depths other than 16 bit are
// rescaled to 16 bit.
func DecodeWAV(data []byte) (*Chunk, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	return fromIntBuffer(buf, int(dec.BitDepth))
}

// ReadFile loads a WAV file into a mono chunk.
func ReadFile(path string) (*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fromIntBuffer(buf, int(dec.BitDepth))
}

// WriteFile writes a chunk as a 16-bit mono WAV file.
func WriteFile(path string, c *Chunk) error {
	if c == nil {
		return fmt.Errorf("write wav: nil chunk")
	}
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(s)
	}
	buf := &gaudio.IntBuffer{
		Data:   data,
		Format: &gaudio.Format{SampleRate: sampleRate, NumChannels: 1},
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func fromIntBuffer(buf *gaudio.IntBuffer, bitDepth int) (*Chunk, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("decode wav: empty buffer")
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	shift := 0
	switch bitDepth {
	case 0, 8, 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		return nil, fmt.Errorf("decode wav: unsupported bit depth %d", bitDepth)
	}

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		v := sum / channels
		if bitDepth == 8 {
			// 8-bit WAV samples are unsigned, centered at 128.
			v = (v - 128) << 8
		} else if shift > 0 {
			v >>= shift
		}
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}
	return &Chunk{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
