package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
	"github.com/lexiqai/speech-streamer/internal/capture"
	"github.com/lexiqai/speech-streamer/internal/observability"
	"github.com/lexiqai/speech-streamer/internal/segment"
	"github.com/lexiqai/speech-streamer/internal/transport"
	"github.com/lexiqai/speech-streamer/internal/vad"
)

// Uplink carries speech to a transcription backend and reports what comes
// back to the Observer it was built with.
type Uplink interface {
	Connect(ctx context.Context) error
	SendAudio(samples []float32) bool
	SendControl(msg transport.ControlMessage) bool
	Disconnect() error
	State() transport.State
}

// UplinkFactory builds an uplink bound to the session's observer
type UplinkFactory func(observer transport.Observer) Uplink

// Config holds session settings
type Config struct {
	Detector  vad.Config
	Segmenter segment.Config
	DumpDir   string // segments are written here as WAV files when set
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the base logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithConnectionStateHook registers a callback for uplink state changes.
// It runs on the uplink's goroutines and must not block.
func WithConnectionStateHook(fn func(transport.State)) Option {
	return func(s *Session) { s.onState = append(s.onState, fn) }
}

// WithFinalHook registers a callback for every final transcript
func WithFinalHook(fn func(string)) Option {
	return func(s *Session) { s.onFinal = append(s.onFinal, fn) }
}

// WithStatsObserver receives per-frame scorer statistics
func WithStatsObserver(observer vad.StatsObserver) Option {
	return func(s *Session) { s.stats = observer }
}

// Session owns the capture to uplink pipeline of one stream: it runs
// detection and segmentation on every captured frame, streams audio while
// speech is being recorded and collects what the server sends back.
type Session struct {
	id          string
	config      Config
	source      capture.Source
	uplink      Uplink
	detector    *vad.Detector
	segmenter   *segment.Segmenter
	transcripts *TranscriptLog
	logger      zerolog.Logger
	stats       vad.StatsObserver
	onState     []func(transport.State)
	onFinal     []func(string)

	mu          sync.RWMutex
	connState   transport.State
	models      *transport.ModelList
	modelInfo   *transport.ModelInfo
	status      string
	lastSegment *segment.Segment
	segments    int

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New creates a session. The uplink is built immediately so that its
// observer is wired before any connection attempt.
func New(config Config, source capture.Source, newUplink UplinkFactory, opts ...Option) (*Session, error) {
	s := &Session{
		id:          observability.NewCorrelationID(),
		config:      config,
		source:      source,
		transcripts: NewTranscriptLog(),
		logger:      observability.GetLogger(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("session_id", s.id).Logger()

	detector, err := vad.NewDetector(config.Detector, s.stats, s.logger)
	if err != nil {
		return nil, err
	}
	s.detector = detector
	s.segmenter = segment.New(config.Segmenter, &segmentSink{s: s}, s.logger)
	s.uplink = newUplink(&uplinkObserver{s: s})

	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Run starts capture, connects the uplink and processes frames until the
// input ends, ctx is cancelled or Stop is called. A failed connection is
// not fatal: audio is dropped until the uplink reconnects.
func (s *Session) Run(ctx context.Context) error {
	observability.SessionStarted()
	defer observability.SessionEnded()

	frames, err := s.source.Start(ctx)
	if err != nil {
		observability.RecordError("capture_start", "session")
		if stopErr := s.Stop(); stopErr != nil {
			s.logger.Warn().Err(stopErr).Msg("Teardown after capture failure")
		}
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.logger.Info().
		Int("sample_rate", s.source.SampleRate()).
		Int("frame_size", s.source.FrameSize()).
		Msg("Session started")

	if err := s.uplink.Connect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Uplink not connected, will keep retrying")
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				s.finish("end of input")
				return nil
			}
			s.processFrame(frame)

		case <-ctx.Done():
			s.finish("cancelled")
			return nil

		case <-s.done:
			s.finish("stopped")
			return nil
		}
	}
}

func (s *Session) processFrame(frame audio.Frame) {
	start := time.Now()

	result := s.detector.Process(frame)
	s.segmenter.OnFrame(frame)

	if ev := result.Event; ev != nil {
		observability.RecordSpeechEvent(ev.Type.String())
		switch ev.Type {
		case vad.SpeechStarted:
			s.segmenter.OnSpeechStarted()
		case vad.SpeechEnded:
			s.segmenter.OnSpeechEnded()
			s.uplink.SendControl(transport.Silence())
		}
	}

	elapsed := time.Since(start)
	budget := frame.Duration()
	observability.RecordFrame(elapsed, budget)
	observability.RecordDetectorState(result.NoiseFloor, result.Score.Smoothed)

	if budget > 0 && elapsed > budget {
		s.logger.Warn().
			Dur("elapsed", elapsed).
			Dur("budget", budget).
			Msg("Frame processing exceeded its time budget")
	}
}

func (s *Session) finish(reason string) {
	if seg, ok := s.segmenter.Flush(); ok {
		s.logger.Debug().Float64("duration_ms", seg.DurationMs).Msg("Flushed open segment")
	}
	s.logger.Info().Str("reason", reason).Int("finals", s.transcripts.Len()).Msg("Session finished")
}

// Stop releases capture and the connection. It is safe to call more than
// once; later calls return the first result.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)

		var errs []error
		if err := s.source.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop capture: %w", err))
		}
		if err := s.uplink.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect uplink: %w", err))
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

// ConnectionState returns the last reported uplink state
func (s *Session) ConnectionState() transport.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// Transcripts returns a copy of the transcript log
func (s *Session) Transcripts() TranscriptSnapshot {
	return s.transcripts.Snapshot()
}

// Models returns the last model inventory received, if any
func (s *Session) Models() (transport.ModelList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.models == nil {
		return transport.ModelList{}, false
	}
	return *s.models, true
}

// ModelInfo returns the last model_info received, if any
func (s *Session) ModelInfo() (transport.ModelInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.modelInfo == nil {
		return transport.ModelInfo{}, false
	}
	return *s.modelInfo, true
}

// Status returns the last status line received
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastSegmentWAV encodes the most recent segment as a WAV file. ok is
// false when no segment has been produced yet.
func (s *Session) LastSegmentWAV() (data []byte, ok bool, err error) {
	s.mu.RLock()
	seg := s.lastSegment
	s.mu.RUnlock()

	if seg == nil {
		return nil, false, nil
	}
	data, err = audio.EncodeWAV(audio.Float32ToPCM16(seg.Samples), seg.SampleRate)
	if err != nil {
		return nil, true, err
	}
	return data, true, nil
}

// RequestModels asks the server for its model inventory
func (s *Session) RequestModels() bool {
	return s.uplink.SendControl(transport.RequestModels())
}

// segmentSink streams chunks to the uplink and records finished segments.
type segmentSink struct {
	s *Session
}

func (k *segmentSink) OnChunk(frame audio.Frame) {
	k.s.uplink.SendAudio(frame.Samples)
}

func (k *segmentSink) OnSegment(seg segment.Segment) {
	s := k.s
	reason := "natural"
	if seg.Forced {
		reason = "forced"
	}
	observability.RecordSegment(reason, seg.Duration)

	s.mu.Lock()
	s.segments++
	n := s.segments
	s.lastSegment = &seg
	s.mu.Unlock()

	s.logger.Info().
		Int("segment", n).
		Str("reason", reason).
		Float64("duration_ms", seg.DurationMs).
		Int("frames", seg.Frames).
		Msg("Segment ready")

	if s.config.DumpDir != "" {
		if err := s.dumpSegment(n, seg); err != nil {
			observability.RecordError("segment_dump", "session")
			s.logger.Error().Err(err).Int("segment", n).Msg("Failed to write segment")
		}
	}
}

func (s *Session) dumpSegment(n int, seg segment.Segment) error {
	if err := os.MkdirAll(s.config.DumpDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	path := filepath.Join(s.config.DumpDir, fmt.Sprintf("segment-%s-%04d.wav", shortID(s.id), n))
	if err := audio.WriteWAVFile(path, seg.Samples, seg.SampleRate); err != nil {
		return err
	}
	s.logger.Debug().Str("path", path).Msg("Segment written")
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// uplinkObserver feeds inbound messages into the session. It is called
// from the uplink's goroutines.
type uplinkObserver struct {
	s *Session
}

func (o *uplinkObserver) OnModels(models transport.ModelList) {
	o.s.mu.Lock()
	o.s.models = &models
	o.s.mu.Unlock()
	o.s.logger.Info().
		Str("current", models.Current).
		Strs("installed", models.Installed).
		Msg("Received model list")
}

func (o *uplinkObserver) OnPartial(text string) {
	o.s.transcripts.SetPartial(text)
}

func (o *uplinkObserver) OnFinal(text string) {
	o.s.transcripts.AppendFinal(text)
	o.s.logger.Info().Str("text", text).Msg("Final transcript")
	for _, fn := range o.s.onFinal {
		fn(text)
	}
}

func (o *uplinkObserver) OnStatus(status string) {
	o.s.mu.Lock()
	o.s.status = status
	o.s.mu.Unlock()
	o.s.logger.Info().Str("status", status).Msg("Server status")
}

func (o *uplinkObserver) OnModelInfo(info transport.ModelInfo) {
	o.s.mu.Lock()
	o.s.modelInfo = &info
	o.s.mu.Unlock()
	o.s.logger.Info().
		Str("device", info.Device).
		Str("compute_type", info.ComputeType).
		Msg("Model info")
}

func (o *uplinkObserver) OnDebug(status string) {
	o.s.logger.Debug().Str("status", status).Msg("Server debug")
}

func (o *uplinkObserver) OnError(message string) {
	observability.RecordError("server", "uplink")
	o.s.logger.Warn().Str("error", message).Msg("Server reported an error")
}

func (o *uplinkObserver) OnConnectionState(state transport.State) {
	o.s.mu.Lock()
	o.s.connState = state
	o.s.mu.Unlock()
	for _, fn := range o.s.onState {
		fn(state)
	}
}
