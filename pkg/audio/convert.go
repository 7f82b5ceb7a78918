package audio

import (
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a frame stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Normalizer converts frames to a target format. Capture sources deliver
// whatever their hardware produces (the wearable streams 48 kHz, desktop
// microphones vary); everything downstream of the source expects the
// canonical 16 kHz mono. The first mismatching frame logs a warning, then
// conversion proceeds silently. Create one per stream; not safe for shared
// use across goroutines.
type Normalizer struct {
	Target Format

	warned sync.Once
}

// Normalize converts a frame to the target format, channels first so a rate
// conversion never runs twice over stereo data. A frame already in the target
// format passes through untouched.
func (n *Normalizer) Normalize(f Frame) Frame {
	if f.SampleRate == n.Target.SampleRate && f.Channels == n.Target.Channels {
		return f
	}

	n.warned.Do(func() {
		slog.Warn("audio: normalizing frame format",
			"from_rate", f.SampleRate, "from_channels", f.Channels,
			"to_rate", n.Target.SampleRate, "to_channels", n.Target.Channels,
		)
	})

	samples := f.Samples
	if f.Channels == 2 && n.Target.Channels == 1 {
		samples = StereoToMono(samples)
	}
	if f.SampleRate != n.Target.SampleRate {
		samples = Resample(samples, f.SampleRate, n.Target.SampleRate)
	}

	return Frame{
		Samples:    samples,
		SampleRate: n.Target.SampleRate,
		Channels:   n.Target.Channels,
		Offset:     f.Offset,
	}
}

// StereoToMono averages each interleaved L/R pair. An odd trailing sample is
// passed through as-is.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, 0, (len(samples)+1)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		out = append(out, int16((int32(samples[i])+int32(samples[i+1]))/2))
	}
	if len(samples)%2 != 0 {
		out = append(out, samples[len(samples)-1])
	}
	return out
}

// Resample converts mono samples between arbitrary rates. The 16↔48 kHz pair
// takes the tuned paths; anything else falls back to linear interpolation
// over the source positions.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	switch {
	case srcRate == dstRate || len(samples) == 0:
		return samples
	case srcRate == 16000 && dstRate == 48000:
		return Upsample16To48(samples)
	case srcRate == 48000 && dstRate == 16000:
		return Downsample48To16(samples)
	}

	outLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if outLen == 0 {
		outLen = 1
	}
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * float64(srcRate) / float64(dstRate)
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac)
	}
	return out
}
