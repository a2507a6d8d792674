package session

import (
	"sync"
	"time"
)

// Transcript is one final result from the server
type Transcript struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// TranscriptSnapshot is a point-in-time copy of the log
type TranscriptSnapshot struct {
	Finals  []Transcript `json:"finals"`
	Partial string       `json:"partial,omitempty"`
}

// TranscriptLog keeps every final in arrival order and the most recent
// partial since the last final. Finals are not deduplicated.
type TranscriptLog struct {
	mu      sync.RWMutex
	finals  []Transcript
	partial string
	now     func() time.Time
}

// NewTranscriptLog creates an empty log
func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{now: time.Now}
}

// AppendFinal records a final result and clears the pending partial
func (l *TranscriptLog) AppendFinal(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finals = append(l.finals, Transcript{Text: text, At: l.now()})
	l.partial = ""
}

// SetPartial replaces the pending partial
func (l *TranscriptLog) SetPartial(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.partial = text
}

// Snapshot returns a copy of the log
func (l *TranscriptLog) Snapshot() TranscriptSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	finals := make([]Transcript, len(l.finals))
	copy(finals, l.finals)
	return TranscriptSnapshot{Finals: finals, Partial: l.partial}
}

// Len returns the number of finals
func (l *TranscriptLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.finals)
}
