package segment

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

const (
	DefaultPreRoll    = 200 * time.Millisecond
	DefaultMaxSegment = 10 * time.Second
)

// Segment is one contiguous utterance.
type Segment struct {
	Samples    []float32
	SampleRate int
	Frames     int
	Duration   time.Duration
	DurationMs float64 // samples / rate * 1000
	StartedAt  time.Time
	Forced     bool // cut at the maximum length while speech continued
}

// Sink receives streamable chunks while recording and finished segments.
type Sink interface {
	OnChunk(frame audio.Frame)
	OnSegment(seg Segment)
}

// Config holds segmenter settings
type Config struct {
	PreRoll    time.Duration
	MaxSegment time.Duration // 0 disables forced cuts
}

// DefaultConfig returns the default segmenter settings
func DefaultConfig() Config {
	return Config{PreRoll: DefaultPreRoll, MaxSegment: DefaultMaxSegment}
}

// Segmenter keeps a pre-roll while silent and accumulates frames between
// speech start and speech end. Not safe for concurrent use.
type Segmenter struct {
	config  Config
	sink    Sink
	preRoll *audio.PreRollBuffer
	logger  zerolog.Logger

	recording  bool
	frames     []audio.Frame
	samples    int
	sampleRate int
	startedAt  time.Time
}

// New creates a segmenter that reports to sink.
func New(config Config, sink Sink, logger zerolog.Logger) *Segmenter {
	if config.PreRoll < 0 {
		config.PreRoll = 0
	}
	return &Segmenter{
		config:  config,
		sink:    sink,
		preRoll: audio.NewPreRollBuffer(config.PreRoll),
		logger:  logger.With().Str("component", "segmenter").Logger(),
	}
}

// Recording reports whether a segment is open
func (s *Segmenter) Recording() bool {
	return s.recording
}

// PreRollDuration returns the audio currently held in the pre-roll
func (s *Segmenter) PreRollDuration() time.Duration {
	return s.preRoll.Duration()
}

// OnFrame feeds one frame. While recording it is appended and streamed,
// otherwise it goes to the pre-roll.
func (s *Segmenter) OnFrame(frame audio.Frame) {
	if !s.recording {
		s.preRoll.Push(frame)
		return
	}

	s.append(frame.Clone())

	if s.config.MaxSegment > 0 && audio.SamplesDuration(s.samples, s.sampleRate) >= s.config.MaxSegment {
		seg := s.finalize(true)
		s.logger.Debug().
			Float64("duration_ms", seg.DurationMs).
			Msg("Segment reached maximum length")
		s.sink.OnSegment(seg)
	}
}

// OnSpeechStarted opens a segment seeded with the pre-roll. Each pre-roll
// frame is streamed as a chunk.
func (s *Segmenter) OnSpeechStarted() {
	if s.recording {
		return
	}

	s.recording = true
	for _, frame := range s.preRoll.Drain() {
		s.append(frame)
	}
}

// OnSpeechEnded closes the open segment and emits it. The silence gathered
// while the end of speech was being confirmed is kept as post-roll. Nothing
// is emitted when a forced cut already took every recorded sample.
func (s *Segmenter) OnSpeechEnded() (Segment, bool) {
	if !s.recording {
		return Segment{}, false
	}
	if s.samples == 0 {
		s.reset()
		s.recording = false
		return Segment{}, false
	}

	seg := s.finalize(false)
	s.recording = false
	s.sink.OnSegment(seg)
	return seg, true
}

// Flush closes any open segment at end of input.
func (s *Segmenter) Flush() (Segment, bool) {
	return s.OnSpeechEnded()
}

func (s *Segmenter) append(frame audio.Frame) {
	if len(s.frames) == 0 {
		s.startedAt = frame.Timestamp
		s.sampleRate = frame.SampleRate
	}
	s.frames = append(s.frames, frame)
	s.samples += len(frame.Samples)
	s.sink.OnChunk(frame)
}

func (s *Segmenter) finalize(forced bool) Segment {
	buf := make([]float32, 0, s.samples)
	for _, frame := range s.frames {
		buf = append(buf, frame.Samples...)
	}

	seg := Segment{
		Samples:    buf,
		SampleRate: s.sampleRate,
		Frames:     len(s.frames),
		Duration:   audio.SamplesDuration(len(buf), s.sampleRate),
		StartedAt:  s.startedAt,
		Forced:     forced,
	}
	if s.sampleRate > 0 {
		seg.DurationMs = float64(len(buf)) / float64(s.sampleRate) * 1000
	}

	s.reset()
	return seg
}

func (s *Segmenter) reset() {
	s.frames = nil
	s.samples = 0
	s.sampleRate = 0
	s.startedAt = time.Time{}
}
