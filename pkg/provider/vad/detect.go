package vad

import (
	"context"
	"fmt"
)

// Detect runs a session from eng over a complete mono recording and returns
// its speech regions in order. Each region is padded by cfg.SpeechPadMs on
// both sides, clipped to the recording, and overlapping regions are merged.
// Speech still active at the end of the recording closes at its last voiced
// frame. A recording without speech yields nil.
func Detect(ctx context.Context, eng Engine, samples []float32, cfg Config) ([]Region, error) {
	sess, err := eng.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	n := cfg.FrameSamples()
	if n <= 0 {
		return nil, fmt.Errorf("vad: invalid frame size %d", n)
	}
	pad := cfg.SampleRate * cfg.SpeechPadMs / 1000

	var (
		regions   []Region
		start     = -1
		lastVoice int
	)
	closeRegion := func(end int) {
		r := Region{Start: max(0, start-pad), End: min(len(samples), end+pad)}
		if k := len(regions); k > 0 && r.Start <= regions[k-1].End {
			regions[k-1].End = max(regions[k-1].End, r.End)
		} else {
			regions = append(regions, r)
		}
		start = -1
	}

	for off := 0; off+n <= len(samples); off += n {
		if off%(n*256) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ev, err := sess.ProcessFrame(samples[off : off+n])
		if err != nil {
			return nil, fmt.Errorf("vad: frame at sample %d: %w", off, err)
		}
		switch ev.Type {
		case SpeechStart:
			start, lastVoice = off, off+n
		case SpeechContinue:
			if ev.Probability >= cfg.SilenceThreshold {
				lastVoice = off + n
			}
		case SpeechEnd:
			if start >= 0 {
				closeRegion(lastVoice)
			}
		}
	}
	if start >= 0 {
		closeRegion(lastVoice)
	}
	return regions, nil
}
