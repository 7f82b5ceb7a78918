// Package audio provides the PCM primitives shared by the capture pipeline:
// the AudioFrame carrier type, exact 3:1 sample-rate conversion between the
// 16 kHz ASR rate and the 48 kHz capture rate, a one-pole high-pass noise
// filter, and a minimal RIFF/WAV codec.
//
// All PCM data is 16-bit signed little-endian. Frames are ephemeral values:
// each frame is owned exclusively by whichever pipeline stage currently
// processes it and is never persisted.
package audio

import (
	"math"
	"time"
)

// Frame is a fixed-size buffer of 16-bit signed PCM samples together with its
// format. Offset is the frame's position relative to the start of the capture
// session, used for ordering downstream of the VAD.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Offset     time.Duration
}

// Duration returns the playback duration of the frame. Returns 0 for an
// invalid format.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samplesPerChannel := len(f.Samples) / f.Channels
	return time.Duration(samplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Energy returns the normalized RMS energy of the frame in [0, 1], where 1
// corresponds to a full-scale 16-bit signal. This is the value compared
// against the VAD speech threshold.
func (f Frame) Energy() float64 {
	return RMS(f.Samples) / 32768.0
}

// RMS returns the root-mean-square amplitude of samples in raw 16-bit PCM
// units (0–32767). Returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// SamplesToFloat32 converts 16-bit PCM samples to float32 in [-1, 1), the
// input format expected by whisper.cpp.
func SamplesToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToSamples converts float32 samples in [-1, 1] back to 16-bit PCM,
// clamping out-of-range values.
func Float32ToSamples(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// BytesToSamples reinterprets little-endian int16 PCM bytes as samples.
// A trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes serializes samples as little-endian int16 PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
