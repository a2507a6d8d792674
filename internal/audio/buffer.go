package audio

import (
	"sync"
	"time"
)

// defaultMaxFrames bounds the buffer when frames carry no sample rate and
// therefore no duration.
const defaultMaxFrames = 64

// PreRollBuffer is a thread-safe ring of frames bounded by total duration.
// Pushing past the budget drops the oldest frames first.
type PreRollBuffer struct {
	frames    []Frame
	head      int
	count     int
	maxFrames int
	budget    time.Duration
	buffered  time.Duration
	mu        sync.RWMutex
}

// NewPreRollBuffer creates a buffer holding at most budget worth of audio.
func NewPreRollBuffer(budget time.Duration) *PreRollBuffer {
	if budget < 0 {
		budget = 0
	}
	return &PreRollBuffer{
		frames:    make([]Frame, defaultMaxFrames),
		maxFrames: defaultMaxFrames,
		budget:    budget,
	}
}

// Push copies frame into the buffer and prunes the oldest frames until the
// buffered duration fits the budget.
func (rb *PreRollBuffer) Push(frame Frame) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == len(rb.frames) {
		if rb.count >= rb.maxFrames && frame.Duration() == 0 {
			rb.popOldest()
		} else {
			rb.grow()
		}
	}

	idx := (rb.head + rb.count) % len(rb.frames)
	rb.frames[idx] = frame.Clone()
	rb.count++
	rb.buffered += frame.Duration()

	for rb.count > 0 && rb.buffered > rb.budget {
		rb.popOldest()
	}
}

func (rb *PreRollBuffer) popOldest() {
	oldest := rb.frames[rb.head]
	rb.buffered -= oldest.Duration()
	rb.frames[rb.head] = Frame{}
	rb.head = (rb.head + 1) % len(rb.frames)
	rb.count--
}

func (rb *PreRollBuffer) grow() {
	grown := make([]Frame, len(rb.frames)*2)
	for i := 0; i < rb.count; i++ {
		grown[i] = rb.frames[(rb.head+i)%len(rb.frames)]
	}
	rb.frames = grown
	rb.head = 0
}

// Drain returns the buffered frames oldest first and empties the buffer.
func (rb *PreRollBuffer) Drain() []Frame {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]Frame, 0, rb.count)
	for rb.count > 0 {
		out = append(out, rb.frames[rb.head])
		rb.frames[rb.head] = Frame{}
		rb.head = (rb.head + 1) % len(rb.frames)
		rb.count--
	}
	rb.head = 0
	rb.buffered = 0
	return out
}

// Len returns the number of buffered frames
func (rb *PreRollBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Duration returns the total buffered duration
func (rb *PreRollBuffer) Duration() time.Duration {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.buffered
}

// Budget returns the configured duration cap
func (rb *PreRollBuffer) Budget() time.Duration {
	return rb.budget
}

// Clear clears the buffer
func (rb *PreRollBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range rb.frames {
		rb.frames[i] = Frame{}
	}
	rb.head = 0
	rb.count = 0
	rb.buffered = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *PreRollBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count == 0
}
