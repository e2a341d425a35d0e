package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Recorder streams PCM chunks of a live recording into a canonical WAV file
// on disk. Chunks are converted from the source format as they arrive.
// Methods are safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	conv    FormatConverter
	src     Format
	samples int64
	done    bool
}

// NewRecorder creates a recorder writing into a new temporary file in dir
// (empty for [os.TempDir]). src is the format of the chunks passed to Write.
func NewRecorder(dir string, src Format) (*Recorder, error) {
	if src.SampleRate <= 0 || src.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid recorder format %s", src)
	}
	f, err := os.CreateTemp(dir, "privanote-live-*.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: create recording file: %w", err)
	}
	r := &Recorder{f: f, w: bufio.NewWriter(f), conv: FormatConverter{Target: Canonical}, src: src}
	// Placeholder header, patched with real sizes in Finish.
	if err := EncodeWAV(r.w, nil, Canonical); err != nil {
		r.Abort()
		return nil, err
	}
	return r, nil
}

// Write appends interleaved PCM in the recorder's source format.
func (r *Recorder) Write(pcm []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return errors.New("audio: recorder already finished")
	}
	out := r.conv.Convert(pcm, r.src)
	if err := binary.Write(r.w, binary.LittleEndian, out); err != nil {
		return fmt.Errorf("audio: write recording: %w", err)
	}
	r.samples += int64(len(out))
	return nil
}

// WriteBytes appends little-endian int16 PCM. A trailing odd byte is dropped.
func (r *Recorder) WriteBytes(b []byte) error {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return r.Write(pcm)
}

// Finish flushes the recording, fixes up the WAV header and returns an
// [Info] whose canonical file is temporary and owned by the caller.
func (r *Recorder) Finish() (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return Info{}, errors.New("audio: recorder already finished")
	}
	r.done = true

	dataSize := uint32(r.samples * 2)
	err := r.w.Flush()
	if err == nil {
		err = patchUint32(r.f, 4, 36+dataSize)
	}
	if err == nil {
		err = patchUint32(r.f, 40, dataSize)
	}
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	info := Info{
		Duration:      Canonical.Duration(int(r.samples)),
		FileSize:      44 + int64(dataSize),
		SampleRate:    r.src.SampleRate,
		Channels:      r.src.Channels,
		CanonicalPath: r.f.Name(),
		Temporary:     true,
	}
	if err != nil {
		info.Cleanup()
		return Info{}, fmt.Errorf("audio: finish recording: %w", err)
	}
	return info, nil
}

// Abort discards the recording and removes its file.
func (r *Recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	_ = r.f.Close()
	_ = os.Remove(r.f.Name())
}

func patchUint32(w io.WriterAt, off int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.WriteAt(b[:], off)
	return err
}
