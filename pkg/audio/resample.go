package audio

// Sample-rate conversion between the 48 kHz capture rate and the 16 kHz rate
// expected by the ASR model. The ratio is an exact 3:1, which keeps the
// conversion free of general-purpose resampling filters: upsampling is linear
// interpolation, downsampling is a mean over each input triple.
//
// Both directions have int16 and float32 variants with the same algorithmic
// shape. Empty input yields empty output; there are no error cases.

// Upsample16To48 converts 16 kHz PCM to 48 kHz by emitting three output
// samples per input sample: the sample itself followed by two linear
// interpolation steps toward the next sample. The final input sample has no
// successor and is repeated.
func Upsample16To48(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, len(in)*3)
	for i, s := range in {
		next := s
		if i+1 < len(in) {
			next = in[i+1]
		}
		d := float64(next) - float64(s)
		out[i*3] = s
		out[i*3+1] = int16(float64(s) + d/3)
		out[i*3+2] = int16(float64(s) + 2*d/3)
	}
	return out
}

// Downsample48To16 converts 48 kHz PCM to 16 kHz by averaging each triple of
// input samples into one output sample. If the input length is not a multiple
// of three, the remaining one or two samples are copied verbatim.
func Downsample48To16(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	full := len(in) / 3
	rem := len(in) % 3
	out := make([]int16, 0, full+rem)
	for i := 0; i < full; i++ {
		sum := int32(in[i*3]) + int32(in[i*3+1]) + int32(in[i*3+2])
		out = append(out, int16(sum/3))
	}
	out = append(out, in[full*3:]...)
	return out
}

// Upsample16To48Float is the float32 variant of [Upsample16To48].
func Upsample16To48Float(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float32, len(in)*3)
	for i, s := range in {
		next := s
		if i+1 < len(in) {
			next = in[i+1]
		}
		d := next - s
		out[i*3] = s
		out[i*3+1] = s + d/3
		out[i*3+2] = s + 2*d/3
	}
	return out
}

// Downsample48To16Float is the float32 variant of [Downsample48To16].
func Downsample48To16Float(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	full := len(in) / 3
	rem := len(in) % 3
	out := make([]float32, 0, full+rem)
	for i := 0; i < full; i++ {
		out = append(out, (in[i*3]+in[i*3+1]+in[i*3+2])/3)
	}
	out = append(out, in[full*3:]...)
	return out
}
