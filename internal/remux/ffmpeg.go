// Package remux wraps the ffmpeg/ffprobe invocations that attach a
// finished dub track to the source video. Thin by intent: the stitcher
// core never touches video files.
package remux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type Muxer struct {
	FFmpegPath  string
	FFprobePath string
}

func New(ffmpegPath, ffprobePath string) *Muxer {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	return &Muxer{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Mux replaces the video's audio with the dub track, copying the video
// stream untouched.
func (m *Muxer) Mux(ctx context.Context, videoPath, trackPath, outPath string) error {
	// ffmpeg -i video -i track -map 0:v -map 1:a -c:v copy -c:a aac out
	cmd := exec.CommandContext(ctx, m.FFmpegPath,
		"-y",
		"-i", videoPath,
		"-i", trackPath,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac", "-ac", "2", "-ar", "44100", "-ab", "120k",
		"-shortest",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg mux: %w: %s", err, tail(stderr.String(), 400))
	}
	return nil
}

// Duration probes the container duration of a media file in seconds.
func (m *Muxer) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, m.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", path, err)
	}
	return d, nil
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
