package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

// ErrSourceStarted is returned by Start on a source that is already running.
var ErrSourceStarted = errors.New("capture source already started")

// Buffered so a slow consumer does not stall decoding of short bursts
const frameBufferSize = 100

// Source produces fixed-size mono frames at a fixed sample rate until it is
// stopped or the input ends. The channel is closed when no more frames will
// be delivered.
type Source interface {
	Start(ctx context.Context) (<-chan audio.Frame, error)
	Stop() error
	SampleRate() int
	FrameSize() int
}

// runner holds the lifecycle shared by the concrete sources.
type runner struct {
	sampleRate int
	frameSize  int
	logger     zerolog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func (r *runner) SampleRate() int { return r.sampleRate }
func (r *runner) FrameSize() int  { return r.frameSize }

// begin marks the source as running and returns its context.
func (r *runner) begin(ctx context.Context) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, ErrSourceStarted
	}
	r.started = true
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	return runCtx, nil
}

// halt cancels the producer and reports whether it was running.
func (r *runner) halt() (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return nil, false
	}
	r.cancel()
	r.cancel = nil
	return r.done, true
}

// timeline stamps frames by their sample offset so that detection timing
// follows the audio rather than the wall clock.
type timeline struct {
	base   time.Time
	rate   int
	offset int
}

func (tl *timeline) next(samples []float32) audio.Frame {
	frame := audio.Frame{
		Samples:    samples,
		SampleRate: tl.rate,
		Timestamp:  tl.base.Add(audio.SamplesDuration(tl.offset, tl.rate)),
	}
	tl.offset += len(samples)
	return frame
}

// send delivers a frame unless ctx is cancelled first.
func send(ctx context.Context, out chan<- audio.Frame, frame audio.Frame) bool {
	select {
	case out <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}
