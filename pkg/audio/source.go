package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Source supplies raw PCM frames at a known sample rate. The live microphone
// and the Bluetooth wearable both sit behind this interface; the core never
// sees anything but frames. The channel is closed when the source is
// exhausted or closed.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

// defaultFrameDuration is the frame size emitted by FileSource. 30 ms matches
// the granularity the VAD hysteresis counters are tuned for.
const defaultFrameDuration = 30 * time.Millisecond

// FileSourceOption configures a [FileSource].
type FileSourceOption func(*FileSource)

// WithFrameDuration sets the duration of each emitted frame. Default 30 ms.
func WithFrameDuration(d time.Duration) FileSourceOption {
	return func(s *FileSource) {
		if d > 0 {
			s.frameDur = d
		}
	}
}

// WithRealtime makes the source pace frame delivery at playback speed instead
// of emitting as fast as the consumer reads. Useful when exercising the live
// pipeline against recorded audio.
func WithRealtime() FileSourceOption {
	return func(s *FileSource) { s.realtime = true }
}

// FileSource replays a WAV file as a stream of frames. It stands in for the
// capture collaborator in development and tests.
type FileSource struct {
	samples  []int16
	info     WAVInfo
	frameDur time.Duration
	realtime bool

	frames chan Frame
	done   chan struct{}
	eof    chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ Source = (*FileSource)(nil)

// NewFileSource opens a WAV file and starts emitting frames. The caller must
// call Close when done.
func NewFileSource(path string, opts ...FileSourceOption) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %q: %w", path, err)
	}
	samples, info, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}

	s := &FileSource{
		samples:  samples,
		info:     info,
		frameDur: defaultFrameDuration,
		frames:   make(chan Frame, 16),
		done:     make(chan struct{}),
		eof:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	s.wg.Add(1)
	go s.emit()
	return s, nil
}

// Frames returns the frame stream. The channel closes at end of file or on
// Close.
func (s *FileSource) Frames() <-chan Frame { return s.frames }

// Done is closed once the source has stopped emitting, whether the file was
// fully replayed or the source was closed early.
func (s *FileSource) Done() <-chan struct{} { return s.eof }

// Close stops emission and releases the source. Safe to call more than once.
func (s *FileSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *FileSource) emit() {
	defer s.wg.Done()
	defer close(s.eof)
	defer close(s.frames)

	perFrame := int(time.Duration(s.info.SampleRate) * s.frameDur / time.Second)
	if perFrame <= 0 {
		perFrame = 1
	}
	perFrame *= s.info.Channels

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(s.frameDur)
		defer ticker.Stop()
	}

	offset := time.Duration(0)
	for pos := 0; pos < len(s.samples); pos += perFrame {
		end := pos + perFrame
		if end > len(s.samples) {
			end = len(s.samples)
		}
		frame := Frame{
			Samples:    s.samples[pos:end],
			SampleRate: s.info.SampleRate,
			Channels:   s.info.Channels,
			Offset:     offset,
		}
		offset += s.frameDur

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-s.done:
				return
			}
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}
