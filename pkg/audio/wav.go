package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// ErrUnsupportedWAV is returned for WAV files whose sample encoding is not
// handled natively. Callers may fall back to an external [Converter].
var ErrUnsupportedWAV = errors.New("audio: unsupported wav encoding")

// WAVHeader holds the fields of a RIFF/WAVE header needed to read its samples.
type WAVHeader struct {
	Format        Format
	AudioFormat   uint16
	BitsPerSample int
	DataSize      int64
}

// Duration returns the playback length of the data chunk.
func (h WAVHeader) Duration() time.Duration {
	bytesPerSample := h.BitsPerSample / 8
	if bytesPerSample == 0 {
		return 0
	}
	return h.Format.Duration(int(h.DataSize / int64(bytesPerSample)))
}

// EncodeWAV writes pcm as a 16-bit PCM WAV stream in format f.
func EncodeWAV(w io.Writer, pcm []int16, f Format) error {
	dataSize := uint32(len(pcm) * 2)
	byteRate := uint32(f.SampleRate * f.Channels * 2)
	blockAlign := uint16(f.Channels * 2)

	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr); err != nil {
		return fmt.Errorf("audio: write wav header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	return bw.Flush()
}

// EncodeWAVBytes is a convenience wrapper around [EncodeWAV].
func EncodeWAVBytes(pcm []int16, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm)*2)
	_ = EncodeWAV(&buf, pcm, f)
	return buf.Bytes()
}

// ReadWAVHeader parses the RIFF header of r and leaves r positioned at the
// first byte of the data chunk.
func ReadWAVHeader(r io.Reader) (WAVHeader, error) {
	var h WAVHeader
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return h, fmt.Errorf("audio: read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return h, errors.New("audio: not a RIFF/WAVE stream")
	}

	var sawFmt bool
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return h, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return h, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return h, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			h.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			h.Format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			h.Format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			h.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if h.AudioFormat == wavFormatExtensible && size >= 26 {
				// The first two bytes of the sub-format GUID carry the real format tag.
				h.AudioFormat = binary.LittleEndian.Uint16(body[24:26])
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return h, errors.New("audio: data chunk before fmt chunk")
			}
			if h.Format.Channels <= 0 || h.Format.SampleRate <= 0 {
				return h, fmt.Errorf("audio: invalid wav format %s", h.Format)
			}
			h.DataSize = size
			return h, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return h, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
	}
}

// DecodeWAV reads a complete WAV stream and returns its samples as
// interleaved int16 PCM together with the stream header. 8, 16, 24 and 32-bit
// integer PCM and 32-bit float are supported.
func DecodeWAV(r io.Reader) ([]int16, WAVHeader, error) {
	h, err := ReadWAVHeader(r)
	if err != nil {
		return nil, h, err
	}
	bytesPerSample := h.BitsPerSample / 8
	switch {
	case h.AudioFormat == wavFormatPCM && bytesPerSample >= 1 && bytesPerSample <= 4:
	case h.AudioFormat == wavFormatFloat && bytesPerSample == 4:
	default:
		return nil, h, fmt.Errorf("%w: format tag %d, %d bits", ErrUnsupportedWAV, h.AudioFormat, h.BitsPerSample)
	}

	// A zero or 0xFFFFFFFF size comes from streaming writers; read to EOF instead.
	var data []byte
	if h.DataSize == 0 || h.DataSize == math.MaxUint32 {
		data, err = io.ReadAll(r)
	} else {
		data = make([]byte, h.DataSize)
		var n int
		n, err = io.ReadFull(r, data)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			data, err = data[:n], nil
		}
	}
	if err != nil {
		return nil, h, fmt.Errorf("audio: read wav data: %w", err)
	}
	h.DataSize = int64(len(data))

	n := len(data) / bytesPerSample
	pcm := make([]int16, n)
	for i := range n {
		b := data[i*bytesPerSample : (i+1)*bytesPerSample]
		switch {
		case h.AudioFormat == wavFormatFloat:
			pcm[i] = floatSample(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case bytesPerSample == 1:
			pcm[i] = int16(int(b[0])-128) << 8
		case bytesPerSample == 2:
			pcm[i] = int16(binary.LittleEndian.Uint16(b))
		case bytesPerSample == 3:
			pcm[i] = int16(uint16(b[1]) | uint16(b[2])<<8)
		case bytesPerSample == 4:
			pcm[i] = int16(binary.LittleEndian.Uint32(b) >> 16)
		}
	}
	return pcm, h, nil
}
