package stt

import (
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

// TranscriptionResult represents a transcription result from Deepgram
type TranscriptionResult struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// resultFromMessage extracts the best alternative of a Results message.
// It returns nil when there is no transcript text.
func resultFromMessage(msg *msginterfaces.MessageResponse) *TranscriptionResult {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return nil
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}

	startTime := msg.Start
	duration := msg.Duration
	if len(alt.Words) > 0 && duration == 0 {
		// Derive timing from the words when the message carries none
		startTime = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - startTime
	}

	return &TranscriptionResult{
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
		StartTime:  startTime,
		Duration:   duration,
	}
}
