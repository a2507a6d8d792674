package vad

import (
	"context"
	"time"

	"github.com/looplab/fsm"
)

// ActivityState is the speech/silence state of the detector.
type ActivityState string

const (
	StateSilent   ActivityState = "silent"
	StateSpeaking ActivityState = "speaking"
)

const (
	eventSpeechStart = "speech_start"
	eventSpeechEnd   = "speech_end"
)

const (
	DefaultMinSpeak   = 150 * time.Millisecond
	DefaultMinSilence = 500 * time.Millisecond
	DefaultDebounce   = 40 * time.Millisecond
)

// EventType identifies a state transition.
type EventType int

const (
	SpeechStarted EventType = iota + 1
	SpeechEnded
)

func (t EventType) String() string {
	switch t {
	case SpeechStarted:
		return "speech_started"
	case SpeechEnded:
		return "speech_ended"
	default:
		return "unknown"
	}
}

// Event is emitted on every transition.
type Event struct {
	Type EventType
	At   time.Time

	// SilenceDuration is set on SpeechStarted: time spent in the previous state.
	SilenceDuration time.Duration
	// TriggerDuration is set on SpeechEnded: how long silence was held.
	TriggerDuration time.Duration
}

// MachineConfig holds the hysteresis timings.
type MachineConfig struct {
	MinSpeak   time.Duration
	MinSilence time.Duration
	Debounce   time.Duration
}

// DefaultMachineConfig returns the balanced timings
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		MinSpeak:   DefaultMinSpeak,
		MinSilence: DefaultMinSilence,
		Debounce:   DefaultDebounce,
	}
}

// ActivityStateMachine is a two-state hysteresis machine. It is driven by
// a per-frame speech decision and the frame time, and is not safe for
// concurrent use.
type ActivityStateMachine struct {
	config MachineConfig
	fsm    *fsm.FSM

	// Zero values mean "not running". At most one of speakStart and
	// silenceStart is set.
	speakStart    time.Time
	silenceStart  time.Time
	oppositeSince time.Time
	stateEnter    time.Time

	pending *Event
}

// NewActivityStateMachine creates a machine in the silent state.
func NewActivityStateMachine(config MachineConfig) *ActivityStateMachine {
	m := &ActivityStateMachine{config: config}
	m.fsm = fsm.NewFSM(
		string(StateSilent),
		fsm.Events{
			{Name: eventSpeechStart, Src: []string{string(StateSilent)}, Dst: string(StateSpeaking)},
			{Name: eventSpeechEnd, Src: []string{string(StateSpeaking)}, Dst: string(StateSilent)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.enterState(ActivityState(e.Dst), e.Args)
			},
		},
	)
	return m
}

// State returns the current state
func (m *ActivityStateMachine) State() ActivityState {
	return ActivityState(m.fsm.Current())
}

// Update advances the machine with one speech decision taken at now.
// It returns the transition event, if any.
func (m *ActivityStateMachine) Update(isSpeech bool, now time.Time) (Event, bool) {
	if m.stateEnter.IsZero() {
		m.stateEnter = now
	}

	switch m.State() {
	case StateSilent:
		if isSpeech {
			m.oppositeSince = time.Time{}
			if m.speakStart.IsZero() {
				m.speakStart = now
			}
			if now.Sub(m.speakStart) >= m.config.MinSpeak {
				return m.fire(eventSpeechStart, now)
			}
		} else if !m.speakStart.IsZero() && m.debounceElapsed(now) {
			m.speakStart = time.Time{}
		}

	case StateSpeaking:
		if !isSpeech {
			m.oppositeSince = time.Time{}
			if m.silenceStart.IsZero() {
				m.silenceStart = now
			}
			if now.Sub(m.silenceStart) >= m.config.MinSilence {
				return m.fire(eventSpeechEnd, now)
			}
		} else if !m.silenceStart.IsZero() && m.debounceElapsed(now) {
			m.silenceStart = time.Time{}
		}
	}

	return Event{}, false
}

// debounceElapsed reports whether the condition opposing the running timer
// has persisted longer than the debounce window.
func (m *ActivityStateMachine) debounceElapsed(now time.Time) bool {
	if m.oppositeSince.IsZero() {
		m.oppositeSince = now
	}
	if m.config.Debounce <= 0 || now.Sub(m.oppositeSince) > m.config.Debounce {
		m.oppositeSince = time.Time{}
		return true
	}
	return false
}

func (m *ActivityStateMachine) fire(event string, now time.Time) (Event, bool) {
	m.pending = nil
	// The event table and the switch in Update agree, so an error here
	// means no transition happened.
	if err := m.fsm.Event(context.Background(), event, now); err != nil || m.pending == nil {
		return Event{}, false
	}
	ev := *m.pending
	m.pending = nil
	return ev, true
}

func (m *ActivityStateMachine) enterState(dst ActivityState, args []interface{}) {
	now, _ := args[0].(time.Time)

	ev := Event{At: now}
	switch dst {
	case StateSpeaking:
		ev.Type = SpeechStarted
		ev.SilenceDuration = now.Sub(m.stateEnter)
	case StateSilent:
		ev.Type = SpeechEnded
		ev.TriggerDuration = now.Sub(m.silenceStart)
	}

	m.speakStart = time.Time{}
	m.silenceStart = time.Time{}
	m.oppositeSince = time.Time{}
	m.stateEnter = now
	m.pending = &ev
}

// Reset returns the machine to silent without emitting an event.
func (m *ActivityStateMachine) Reset() {
	m.fsm.SetState(string(StateSilent))
	m.speakStart = time.Time{}
	m.silenceStart = time.Time{}
	m.oppositeSince = time.Time{}
	m.stateEnter = time.Time{}
	m.pending = nil
}
