package audio

import "math"

// Default high-pass parameters. 80 Hz removes mains hum and handling rumble
// without touching the speech band.
const (
	DefaultCutoffHz   = 80.0
	DefaultSampleRate = 16000
)

// HighPass is a one-pole high-pass IIR filter applied to raw PCM before
// energy-based voice detection:
//
//	y[n] = α·(y[n-1] + x[n] − x[n-1])   with α = RC/(RC+dt), RC = 1/(2π·cutoff)
//
// It only removes low-frequency drone; it is not a substitute for spectral
// noise suppression and does nothing against broadband noise or competing
// speech.
//
// HighPass is stateful and not safe for concurrent use. Call [HighPass.Reset]
// at the start of every recording session so filter state cannot leak across
// sessions.
type HighPass struct {
	alpha      float64
	prevInput  float64
	prevOutput float64
}

// NewHighPass creates a high-pass filter with the given cutoff frequency and
// sample rate. Non-positive arguments fall back to the defaults (80 Hz,
// 16 kHz).
func NewHighPass(cutoffHz float64, sampleRate int) *HighPass {
	if cutoffHz <= 0 {
		cutoffHz = DefaultCutoffHz
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / float64(sampleRate)
	return &HighPass{alpha: rc / (rc + dt)}
}

// Process filters samples in place and returns the same slice. Output is
// clamped to the valid int16 range.
func (h *HighPass) Process(samples []int16) []int16 {
	for i, s := range samples {
		x := float64(s)
		y := h.alpha * (h.prevOutput + x - h.prevInput)
		h.prevInput = x
		h.prevOutput = y
		samples[i] = clampInt16(y)
	}
	return samples
}

// Reset clears the filter state. Must be called when a new recording session
// starts.
func (h *HighPass) Reset() {
	h.prevInput = 0
	h.prevOutput = 0
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
