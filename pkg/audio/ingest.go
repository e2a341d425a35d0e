package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// MinDuration is the shortest recording the ingestor accepts.
const MinDuration = time.Second

// SupportedExtensions lists the accepted file extensions, without the dot.
var SupportedExtensions = []string{"wav", "mp3", "mp4", "m4a", "flac", "ogg"}

// Info describes an ingested recording.
type Info struct {
	// Duration is the playback length of the recording.
	Duration time.Duration
	// FileSize is the size of the original file in bytes.
	FileSize int64
	// SampleRate and Channels describe the original stream.
	SampleRate int
	Channels   int
	// CanonicalPath points to a 16 kHz mono 16-bit PCM WAV rendition. It is
	// empty for [Ingestor.Probe] results.
	CanonicalPath string
	// Temporary reports whether CanonicalPath was created by the ingestor and
	// must be released with [Info.Cleanup].
	Temporary bool
}

// DurationMinutes returns the duration in fractional minutes.
func (i Info) DurationMinutes() float64 { return i.Duration.Minutes() }

// FileSizeMB returns the original file size in megabytes.
func (i Info) FileSizeMB() float64 { return float64(i.FileSize) / (1024 * 1024) }

// Cleanup removes the canonical copy if the ingestor created one. It is safe
// to call on a zero Info and more than once.
func (i Info) Cleanup() {
	if !i.Temporary || i.CanonicalPath == "" {
		return
	}
	if err := os.Remove(i.CanonicalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("audio: failed to remove temporary file", "path", i.CanonicalPath, "err", err)
	}
}

// Ingestor validates recordings and normalises them to canonical WAV.
// An Ingestor is safe for concurrent use.
type Ingestor struct {
	converter   Converter
	tempDir     string
	minDuration time.Duration
}

// IngestorOption is a functional option for [NewIngestor].
type IngestorOption func(*Ingestor)

// WithConverter sets the converter used for formats that are not decoded
// natively. Without one, only PCM WAV input is accepted.
func WithConverter(c Converter) IngestorOption {
	return func(i *Ingestor) { i.converter = c }
}

// WithTempDir sets the directory canonical copies are written to.
// Defaults to [os.TempDir].
func WithTempDir(dir string) IngestorOption {
	return func(i *Ingestor) { i.tempDir = dir }
}

// WithMinDuration overrides [MinDuration].
func WithMinDuration(d time.Duration) IngestorOption {
	return func(i *Ingestor) { i.minDuration = d }
}

// NewIngestor creates an Ingestor.
func NewIngestor(opts ...IngestorOption) *Ingestor {
	i := &Ingestor{minDuration: MinDuration}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Process validates the recording at path and writes a canonical copy unless
// the file already is 16 kHz mono 16-bit PCM WAV. The original file is never
// modified. On error no temporary file is left behind.
func (g *Ingestor) Process(ctx context.Context, path string) (Info, error) {
	size, ext, err := g.checkFile(path)
	if err != nil {
		return Info{}, err
	}

	if ext == "wav" {
		info, err := g.processWAV(ctx, path, size)
		if !errors.Is(err, ErrUnsupportedWAV) {
			return info, err
		}
		slog.Debug("audio: wav encoding not handled natively, converting", "path", path, "err", err)
	}
	return g.processConverted(ctx, path, size)
}

func (g *Ingestor) processWAV(ctx context.Context, path string, size int64) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, decodeErr(path, "unreadable", err)
	}
	defer f.Close()

	pcm, hdr, err := DecodeWAV(f)
	if err != nil {
		if errors.Is(err, ErrUnsupportedWAV) {
			return Info{}, err
		}
		return Info{}, decodeErr(path, "invalid wav", err)
	}
	info := Info{
		Duration:   hdr.Format.Duration(len(pcm)),
		FileSize:   size,
		SampleRate: hdr.Format.SampleRate,
		Channels:   hdr.Format.Channels,
	}
	if info.Duration < g.minDuration {
		return Info{}, decodeErr(path, fmt.Sprintf("recording shorter than %s", g.minDuration), nil)
	}

	if hdr.Format == Canonical && hdr.AudioFormat == wavFormatPCM && hdr.BitsPerSample == 16 {
		info.CanonicalPath = path
		return info, nil
	}

	out, err := g.createTemp()
	if err != nil {
		return Info{}, err
	}
	info.CanonicalPath, info.Temporary = out.Name(), true
	err = EncodeWAV(out, ToCanonical(pcm, hdr.Format), Canonical)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		info.Cleanup()
		return Info{}, fmt.Errorf("audio: write canonical wav: %w", err)
	}
	return info, nil
}

func (g *Ingestor) processConverted(ctx context.Context, path string, size int64) (Info, error) {
	if g.converter == nil {
		return Info{}, decodeErr(path, "no converter configured for this format", nil)
	}
	out, err := g.createTemp()
	if err != nil {
		return Info{}, err
	}
	_ = out.Close()
	info := Info{FileSize: size, CanonicalPath: out.Name(), Temporary: true}

	if err := g.converter.ToCanonicalWAV(ctx, path, info.CanonicalPath); err != nil {
		info.Cleanup()
		return Info{}, decodeErr(path, "conversion failed", err)
	}

	hdr, err := readHeaderFile(info.CanonicalPath)
	if err != nil {
		info.Cleanup()
		return Info{}, decodeErr(path, "converted file unreadable", err)
	}
	info.Duration = hdr.Duration()
	info.SampleRate, info.Channels = hdr.Format.SampleRate, hdr.Format.Channels

	if orig, d, err := g.converter.Probe(ctx, path); err == nil {
		info.SampleRate, info.Channels = orig.SampleRate, orig.Channels
		if d > 0 {
			info.Duration = d
		}
	} else {
		slog.Debug("audio: probe failed, reporting canonical format", "path", path, "err", err)
	}

	if info.Duration < g.minDuration {
		info.Cleanup()
		return Info{}, decodeErr(path, fmt.Sprintf("recording shorter than %s", g.minDuration), nil)
	}
	return info, nil
}

// Validate performs the same checks as [Ingestor.Process] without writing
// anything.
func (g *Ingestor) Validate(ctx context.Context, path string) bool {
	info, err := g.Probe(ctx, path)
	if err != nil {
		slog.Debug("audio: validation failed", "path", path, "err", err)
		return false
	}
	return info.Duration >= g.minDuration
}

// Probe reads only the recording's metadata. CanonicalPath is left empty.
func (g *Ingestor) Probe(ctx context.Context, path string) (Info, error) {
	size, ext, err := g.checkFile(path)
	if err != nil {
		return Info{}, err
	}
	if ext == "wav" {
		hdr, err := readHeaderFile(path)
		if err == nil {
			return Info{
				Duration:   hdr.Duration(),
				FileSize:   size,
				SampleRate: hdr.Format.SampleRate,
				Channels:   hdr.Format.Channels,
			}, nil
		}
		if g.converter == nil {
			return Info{}, decodeErr(path, "invalid wav", err)
		}
	}
	if g.converter == nil {
		return Info{}, decodeErr(path, "no converter configured for this format", nil)
	}
	f, d, err := g.converter.Probe(ctx, path)
	if err != nil {
		return Info{}, decodeErr(path, "probe failed", err)
	}
	return Info{Duration: d, FileSize: size, SampleRate: f.SampleRate, Channels: f.Channels}, nil
}

func (g *Ingestor) checkFile(path string) (int64, string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, "", decodeErr(path, "unreadable", err)
	}
	if st.IsDir() {
		return 0, "", decodeErr(path, "is a directory", nil)
	}
	if st.Size() == 0 {
		return 0, "", decodeErr(path, "file is empty", nil)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !slices.Contains(SupportedExtensions, ext) {
		return 0, "", decodeErr(path, fmt.Sprintf("unsupported format %q", ext), nil)
	}
	return st.Size(), ext, nil
}

func (g *Ingestor) createTemp() (*os.File, error) {
	f, err := os.CreateTemp(g.tempDir, "privanote-*.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: create temp file: %w", err)
	}
	return f, nil
}

func readHeaderFile(path string) (WAVHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVHeader{}, err
	}
	defer f.Close()
	hdr, err := ReadWAVHeader(f)
	if err != nil {
		return hdr, err
	}
	// Streaming writers leave the data size unset; derive it from the file.
	if hdr.DataSize == 0 || hdr.DataSize == 0xFFFFFFFF {
		if pos, err := f.Seek(0, 1); err == nil {
			if st, err := f.Stat(); err == nil {
				hdr.DataSize = st.Size() - pos
			}
		}
	}
	return hdr, nil
}
