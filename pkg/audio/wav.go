package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the canonical 44-byte RIFF/WAV header written by
// [EncodeWAV]. All journal audio assets use this fixed layout (PCM, fmt chunk
// of 16 bytes, data chunk immediately following), so sample positions can be
// computed directly from file offsets.
const HeaderSize = 44

// ErrInvalidWAV indicates a missing, short, or non-PCM WAV header.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// WAVInfo describes the format of a parsed WAV header.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// DataSize is the byte length of the PCM data chunk.
	DataSize int
}

// Samples returns the total number of samples in the data chunk.
func (w WAVInfo) Samples() int {
	bytesPerSample := w.BitsPerSample / 8
	if bytesPerSample == 0 {
		return 0
	}
	return w.DataSize / bytesPerSample
}

// EncodeWAV wraps 16-bit PCM samples in a RIFF/WAV container.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	pcm := SamplesToBytes(samples)
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	dataSize := len(pcm)

	buf := make([]byte, HeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAVHeader validates the canonical 44-byte header at the start of data
// and returns the described format. data may be just the header or the whole
// file. Returns [ErrInvalidWAV] for short or malformed headers and for
// non-PCM or non-16-bit content.
func ParseWAVHeader(data []byte) (WAVInfo, error) {
	if len(data) < HeaderSize {
		return WAVInfo{}, fmt.Errorf("%w: header is %d bytes, need %d", ErrInvalidWAV, len(data), HeaderSize)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrInvalidWAV)
	}
	if string(data[12:16]) != "fmt " {
		return WAVInfo{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return WAVInfo{}, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidWAV, format)
	}
	bits := int(binary.LittleEndian.Uint16(data[34:36]))
	if bits != 16 {
		return WAVInfo{}, fmt.Errorf("%w: %d bits per sample, need 16", ErrInvalidWAV, bits)
	}
	if string(data[36:40]) != "data" {
		return WAVInfo{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}

	return WAVInfo{
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		BitsPerSample: bits,
		DataSize:      int(binary.LittleEndian.Uint32(data[40:44])),
	}, nil
}

// DecodeWAV parses a complete WAV file and returns its samples and format.
func DecodeWAV(data []byte) ([]int16, WAVInfo, error) {
	info, err := ParseWAVHeader(data)
	if err != nil {
		return nil, WAVInfo{}, err
	}
	pcm := data[HeaderSize:]
	if info.DataSize < len(pcm) {
		pcm = pcm[:info.DataSize]
	}
	return BytesToSamples(pcm), info, nil
}
