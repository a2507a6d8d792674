package capture

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

// ReaderSource reads raw little-endian float32 mono samples, e.g. from
// stdin, at a known sample rate.
type ReaderSource struct {
	runner
	reader io.Reader
}

// NewReaderSource creates a source reading from r
func NewReaderSource(r io.Reader, sampleRate, frameSize int, logger zerolog.Logger) *ReaderSource {
	return &ReaderSource{
		runner: runner{
			sampleRate: sampleRate,
			frameSize:  frameSize,
			logger:     logger.With().Str("component", "capture").Str("input", "reader").Logger(),
		},
		reader: r,
	}
}

// Start begins reading frames
func (s *ReaderSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	frames := make(chan audio.Frame, frameBufferSize)
	go s.run(runCtx, frames)
	return frames, nil
}

func (s *ReaderSource) run(ctx context.Context, out chan<- audio.Frame) {
	defer close(s.done)
	defer close(out)

	tl := &timeline{base: time.Now(), rate: s.sampleRate}
	buf := make([]byte, s.frameSize*4)

	for {
		n, err := io.ReadFull(s.reader, buf)
		if n >= 4 {
			samples, decodeErr := audio.DecodeFloat32LE(buf[:n-n%4])
			if decodeErr == nil && !send(ctx, out, tl.next(samples)) {
				return
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			s.logger.Info().Msg("End of input")
		case ctx.Err() != nil:
		default:
			s.logger.Error().Err(err).Msg("Failed to read input")
		}
		return
	}
}

// Stop halts delivery. A blocked read is interrupted only when the reader
// is an io.Closer.
func (s *ReaderSource) Stop() error {
	if _, ok := s.halt(); !ok {
		return nil
	}
	if closer, ok := s.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
