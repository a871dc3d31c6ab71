package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/dubstitch/internal/audio"
)

// KokoroConfig configures the local Kokoro python worker.
type KokoroConfig struct {
	Python   string
	Script   string
	LangCode string
	Speed    float64
}

// Kokoro synthesizes speech through a long-lived python worker
// subprocess speaking line-delimited JSON over stdin/stdout. The
// worker handles one request at a time; a mutex keeps it single-flight.
type Kokoro struct {
	cfg KokoroConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	dec    *json.Decoder
	closed bool
}

type kokoroRequest struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	LangCode string  `json:"lang_code"`
	Speed    float64 `json:"speed"`
}

type kokoroResponse struct {
	ID          string `json:"id"`
	OK          bool   `json:"ok"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error"`
}

// NewKokoro starts the worker and fires a warmup request so missing
// python dependencies surface immediately instead of on segment one.
func NewKokoro(cfg KokoroConfig) (*Kokoro, error) {
	python := strings.TrimSpace(cfg.Python)
	if python == "" {
		python = "python3"
	}
	if strings.TrimSpace(cfg.Script) == "" {
		cfg.Script = "scripts/kokoro_worker.py"
	}
	cmd := exec.Command(python, "-u", cfg.Script)
	cmd.Env = append(os.Environ(), "PYTORCH_ENABLE_MPS_FALLBACK=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	k := &Kokoro{cfg: cfg, cmd: cmd, stdin: stdin, dec: json.NewDecoder(stdout)}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if _, _, err := k.Synthesize(ctx, "warmup", ""); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("kokoro worker failed to start: %s", msg)
	}
	return k, nil
}

func (k *Kokoro) Name() string { return "kokoro" }

func (k *Kokoro) Synthesize(ctx context.Context, text, voiceID string) (*audio.Chunk, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, "", fmt.Errorf("kokoro worker closed")
	}

	req := kokoroRequest{
		ID:       fmt.Sprintf("req-%d", time.Now().UnixNano()),
		Text:     text,
		Voice:    strings.TrimSpace(voiceID),
		LangCode: strings.TrimSpace(k.cfg.LangCode),
		Speed:    k.cfg.Speed,
	}
	if req.Voice == "" {
		req.Voice = "af_heart"
	}
	if req.LangCode == "" {
		req.LangCode = "a"
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}

	b, _ := json.Marshal(req)
	b = append(b, '\n')
	if _, err := k.stdin.Write(b); err != nil {
		return nil, "", err
	}

	// Decode exactly one response (worker is single-flight guarded by mu).
	type decoded struct {
		resp kokoroResponse
		err  error
	}
	replies := make(chan decoded, 1)
	dec := k.dec
	go func() {
		var resp kokoroResponse
		err := dec.Decode(&resp)
		replies <- decoded{resp: resp, err: err}
	}()

	var resp kokoroResponse
	select {
	case <-ctx.Done():
		// The pending reply can no longer be matched to a request, so
		// the worker is torn down rather than left out of sync.
		k.teardownLocked()
		return nil, "", ctx.Err()
	case d := <-replies:
		if d.err != nil {
			return nil, "", d.err
		}
		resp = d.resp
	}
	if resp.ID != req.ID {
		return nil, "", fmt.Errorf("kokoro worker out-of-sync (got %q, expected %q)", resp.ID, req.ID)
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown kokoro error"
		}
		return nil, "", fmt.Errorf("%s", msg)
	}
	if strings.TrimSpace(resp.AudioBase64) == "" {
		return nil, "", fmt.Errorf("kokoro worker returned no audio")
	}

	payload, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio_base64: %w", err)
	}

	chunk, err := decodeWorkerPayload(payload, resp.Format, resp.SampleRate)
	if err != nil {
		return nil, "", err
	}
	if len(chunk.Samples) == 0 {
		return nil, "", fmt.Errorf("kokoro worker returned empty audio")
	}
	return chunk, k.Name(), nil
}

func decodeWorkerPayload(payload []byte, format string, sampleRate int) (*audio.Chunk, error) {
	format = strings.TrimSpace(format)
	if format == "" {
		format = "wav_24000"
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	switch {
	case strings.HasPrefix(format, "wav"):
		return audio.DecodeWAV(payload)
	case strings.HasPrefix(format, "pcm"):
		return pcm16leChunk(payload, sampleRate), nil
	default:
		return nil, fmt.Errorf("unsupported worker audio format %q", format)
	}
}

func pcm16leChunk(payload []byte, sampleRate int) *audio.Chunk {
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return &audio.Chunk{Samples: samples, SampleRate: sampleRate}
}

// teardownLocked kills the worker process and marks the client closed.
// Callers must hold k.mu.
func (k *Kokoro) teardownLocked() {
	k.closed = true
	stdin := k.stdin
	cmd := k.cmd
	k.stdin = nil
	k.cmd = nil
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		go func() { _ = cmd.Wait() }()
	}
}

func (k *Kokoro) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	stdin := k.stdin
	cmd := k.cmd
	k.stdin = nil
	k.cmd = nil
	k.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}
