package capture

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

// WAVSource replays a WAV file as capture input. The file is downmixed to
// mono and resampled to the requested rate. With realtime set, frames are
// paced at playback speed.
type WAVSource struct {
	runner
	path     string
	realtime bool
}

// NewWAVSource creates a source for the WAV file at path
func NewWAVSource(path string, sampleRate, frameSize int, realtime bool, logger zerolog.Logger) *WAVSource {
	return &WAVSource{
		runner: runner{
			sampleRate: sampleRate,
			frameSize:  frameSize,
			logger:     logger.With().Str("component", "capture").Str("path", path).Logger(),
		},
		path:     path,
		realtime: realtime,
	}
}

// Start decodes the file and begins delivering frames. Decode errors are
// returned before any frame is produced.
func (s *WAVSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	samples, rate, err := audio.ReadWAVFile(s.path)
	if err != nil {
		return nil, err
	}

	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	if rate != s.sampleRate {
		s.logger.Debug().Int("from", rate).Int("to", s.sampleRate).Msg("Resampling input")
		samples = audio.Resample(samples, rate, s.sampleRate)
	}

	s.logger.Info().
		Int("samples", len(samples)).
		Dur("duration", audio.SamplesDuration(len(samples), s.sampleRate)).
		Bool("realtime", s.realtime).
		Msg("Starting WAV capture")

	frames := make(chan audio.Frame, frameBufferSize)
	go s.run(runCtx, samples, frames)
	return frames, nil
}

func (s *WAVSource) run(ctx context.Context, samples []float32, out chan<- audio.Frame) {
	defer close(s.done)
	defer close(out)

	tl := &timeline{base: time.Now(), rate: s.sampleRate}

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(audio.SamplesDuration(s.frameSize, s.sampleRate))
		defer ticker.Stop()
	}

	for start := 0; start < len(samples); start += s.frameSize {
		end := start + s.frameSize
		if end > len(samples) {
			end = len(samples)
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}

		if !send(ctx, out, tl.next(samples[start:end])) {
			return
		}
	}

	s.logger.Info().Msg("End of WAV input")
}

// Stop halts delivery and waits for the producer to exit
func (s *WAVSource) Stop() error {
	done, ok := s.halt()
	if ok {
		<-done
	}
	return nil
}
