package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Converter transcodes recordings that cannot be decoded natively.
type Converter interface {
	// ToCanonicalWAV writes src as 16 kHz mono 16-bit PCM WAV to dst.
	ToCanonicalWAV(ctx context.Context, src, dst string) error

	// Probe returns the original stream format and duration of src.
	Probe(ctx context.Context, src string) (Format, time.Duration, error)
}

// FFmpeg is a [Converter] backed by the ffmpeg and ffprobe executables.
type FFmpeg struct {
	// FFmpegPath defaults to "ffmpeg" resolved through PATH.
	FFmpegPath string
	// FFprobePath defaults to "ffprobe" resolved through PATH.
	FFprobePath string
}

var _ Converter = (*FFmpeg)(nil)

// ToCanonicalWAV implements [Converter].
func (f *FFmpeg) ToCanonicalWAV(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, orDefault(f.FFmpegPath, "ffmpeg"),
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y", "-i", src,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(CanonicalSampleRate),
		"-sample_fmt", "s16", "-f", "wav",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio: ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe implements [Converter].
func (f *FFmpeg) Probe(ctx context.Context, src string) (Format, time.Duration, error) {
	cmd := exec.CommandContext(ctx, orDefault(f.FFprobePath, "ffprobe"),
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type,sample_rate,channels:format=duration",
		"-of", "json",
		src,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Format{}, 0, fmt.Errorf("audio: ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseFFprobe(stdout.Bytes())
}

func parseFFprobe(raw []byte) (Format, time.Duration, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Format{}, 0, fmt.Errorf("audio: parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Format{}, 0, errors.New("audio: no audio stream found")
	}
	s := out.Streams[0]
	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil {
		return Format{}, 0, fmt.Errorf("audio: parse sample rate %q: %w", s.SampleRate, err)
	}
	secs, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return Format{}, 0, fmt.Errorf("audio: parse duration %q: %w", out.Format.Duration, err)
	}
	return Format{SampleRate: rate, Channels: s.Channels}, time.Duration(secs * float64(time.Second)), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
