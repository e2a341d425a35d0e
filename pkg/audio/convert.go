package audio

import (
	"log/slog"
	"math"
	"sync"
)

// FormatConverter converts interleaved int16 PCM to a target format. It logs
// once on the first format mismatch. Create one per stream; not designed for
// shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts pcm from src to the target format. If the formats already
// match, pcm is returned unchanged. Channels are folded first so only a mono
// stream is resampled.
func (c *FormatConverter) Convert(pcm []int16, src Format) []int16 {
	if src == c.Target {
		return pcm
	}
	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting", "from", src.String(), "to", c.Target.String())
	})

	if src.Channels != c.Target.Channels {
		switch {
		case c.Target.Channels == 1:
			pcm = DownmixMono(pcm, src.Channels)
		case src.Channels == 1 && c.Target.Channels == 2:
			pcm = MonoToStereo(pcm)
		}
	}
	if src.SampleRate != c.Target.SampleRate {
		if c.Target.Channels == 1 {
			pcm = ResampleMono(pcm, src.SampleRate, c.Target.SampleRate)
		} else {
			pcm = resampleInterleaved(pcm, c.Target.Channels, src.SampleRate, c.Target.SampleRate)
		}
	}
	return pcm
}

// ToCanonical converts pcm in format src to 16 kHz mono.
func ToCanonical(pcm []int16, src Format) []int16 {
	c := FormatConverter{Target: Canonical}
	return c.Convert(pcm, src)
}

// DownmixMono averages each interleaved frame of the given channel count into
// one sample. Trailing partial frames are dropped.
func DownmixMono(pcm []int16, channels int) []int16 {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(pcm[i*channels+ch])
		}
		out[i] = clamp16(sum / int32(channels))
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []int16) []int16 {
	out := make([]int16, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// ResampleMono resamples mono PCM from srcRate to dstRate using linear
// interpolation. If the rates match, pcm is returned unchanged.
func ResampleMono(pcm []int16, srcRate, dstRate int) []int16 {
	return resampleInterleaved(pcm, 1, srcRate, dstRate)
}

func resampleInterleaved(pcm []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	srcFrames := len(pcm) / channels
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			s0 := float64(pcm[idx*channels+ch])
			s1 := float64(pcm[next*channels+ch])
			out[i*channels+ch] = int16(s0*(1-frac) + s1*frac)
		}
	}
	return out
}

// PCMToFloat32 converts int16 samples to float32 in [-1.0, 1.0].
func PCMToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToPCM clamps float32 samples to [-1.0, 1.0] and scales them to int16.
func Float32ToPCM(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatSample(s)
	}
	return out
}

func floatSample(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// RMS returns the root-mean-square energy of float32 samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
