package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// OpusDecoder decodes a single Opus stream into interleaved int16 PCM.
// Decoder state carries across packets, so use one decoder per stream.
type OpusDecoder struct {
	dec      *gopus.Decoder
	format   Format
	maxFrame int
}

// NewOpusDecoder creates a decoder for the given output format. Opus supports
// 8, 12, 16, 24 and 48 kHz with one or two channels.
func NewOpusDecoder(f Format) (*OpusDecoder, error) {
	if f.Channels < 1 || f.Channels > 2 {
		return nil, fmt.Errorf("audio: opus supports 1 or 2 channels, got %d", f.Channels)
	}
	dec, err := gopus.NewDecoder(f.SampleRate, f.Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	// 120 ms is the longest frame an Opus packet can carry.
	return &OpusDecoder{dec: dec, format: f, maxFrame: f.SampleRate * 120 / 1000}, nil
}

// Format returns the decoder's output format.
func (d *OpusDecoder) Format() Format { return d.format }

// Decode decodes one Opus packet.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(packet, d.maxFrame, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return pcm, nil
}
