package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
	"github.com/lexiqai/speech-streamer/internal/observability"
	"github.com/lexiqai/speech-streamer/internal/resilience"
	"github.com/lexiqai/speech-streamer/internal/transport"
)

const breakerName = "deepgram"

// DeepgramConfig holds Deepgram live transcription settings
type DeepgramConfig struct {
	APIKey              string
	Model               string
	Language            string
	SampleRate          int
	UtteranceEndMs      int
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	BackoffFloor        time.Duration
	BackoffCap          time.Duration
}

// messageCallbackHandler embeds the SDK's default handler and overrides
// only the methods the uplink needs.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

// Message routes transcription results to the uplink
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error routes server errors to the uplink
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramUplink streams detected speech to Deepgram's live API instead of
// the websocket transcription server. It honours the same contract as the
// stream transport: audio is dropped while not connected and lost
// connections are retried with backoff until Disconnect.
type DeepgramUplink struct {
	config   DeepgramConfig
	observer transport.Observer
	logger   zerolog.Logger
	breaker  *resilience.CircuitBreaker
	backoff  *resilience.Backoff

	mu          sync.RWMutex
	client      *listenClient.WSCallback
	state       transport.State
	manualClose bool
	ctx         context.Context
	cancel      context.CancelFunc
	loop        context.Context // context of the running reconnect loop, if any
}

// NewDeepgramUplink creates a disconnected uplink
func NewDeepgramUplink(cfg DeepgramConfig, observer transport.Observer, logger zerolog.Logger) *DeepgramUplink {
	if observer == nil {
		observer = transport.NopObserver{}
	}
	d := &DeepgramUplink{
		config:   cfg,
		observer: observer,
		logger:   logger.With().Str("component", "deepgram").Logger(),
		backoff:  resilience.NewBackoff(cfg.BackoffFloor, cfg.BackoffCap),
	}
	d.breaker = resilience.NewCircuitBreaker(breakerName, cfg.BreakerMaxFailures, cfg.BreakerResetTimeout,
		func(name string, from, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
			d.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		})
	return d
}

// State returns the current connection state
func (d *DeepgramUplink) State() transport.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Connect opens the live transcription session. On failure a background
// reconnect is started and the error is returned. While that reconnect loop
// runs, Connect adopts it instead of dialing again.
func (d *DeepgramUplink) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state == transport.Connected || d.state == transport.Connecting {
		d.mu.Unlock()
		return nil
	}
	d.manualClose = false
	if d.loopRunningLocked() {
		d.mu.Unlock()
		return nil
	}
	if d.ctx == nil || d.ctx.Err() != nil {
		d.ctx, d.cancel = context.WithCancel(context.Background())
	}
	d.state = transport.Connecting
	d.mu.Unlock()
	d.emitState(transport.Connecting)

	if err := d.open(ctx); err != nil {
		d.startReconnect()
		return err
	}
	return nil
}

func (d *DeepgramUplink) open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	runCtx := d.ctx
	d.mu.RUnlock()

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.Model,
		Language:       d.config.Language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: fmt.Sprintf("%d", d.config.UtteranceEndMs),
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.config.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler:           d.handleError,
	}

	client, err := listenClient.NewWSUsingCallback(runCtx, d.config.APIKey, nil, tOptions, callback)
	if err != nil {
		observability.RecordError("create_client", "deepgram")
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		observability.RecordError("connect", "deepgram")
		return fmt.Errorf("failed to connect to Deepgram")
	}

	d.mu.Lock()
	if d.manualClose {
		d.mu.Unlock()
		client.Finish()
		return errors.New("deepgram uplink closed while connecting")
	}
	prev := d.client
	d.client = client
	d.state = transport.Connected
	d.mu.Unlock()

	if prev != nil && prev != client {
		prev.Finish()
	}

	d.backoff.Reset()
	d.breaker.Reset()
	d.logger.Info().
		Str("model", d.config.Model).
		Str("language", d.config.Language).
		Msg("Deepgram streaming session started")
	d.emitState(transport.Connected)

	// Deepgram has no model inventory; report the configured one.
	d.observer.OnModels(transport.ModelList{
		Supported: []string{d.config.Model},
		Installed: []string{d.config.Model},
		Current:   d.config.Model,
		Default:   d.config.Model,
	})
	return nil
}

func (d *DeepgramUplink) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "SpeechStarted", "UtteranceEnd":
		d.observer.OnDebug(msg.Type)

	case "Results", "Message":
		result := resultFromMessage(msg)
		if result == nil {
			return
		}
		if result.IsFinal {
			observability.RecordInbound(transport.TypeFinal)
			d.logger.Debug().Float64("confidence", result.Confidence).Msg("Final transcript")
			d.observer.OnFinal(result.Text)
		} else {
			observability.RecordInbound(transport.TypePartial)
			d.observer.OnPartial(result.Text)
		}

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Ignoring Deepgram message")
	}
}

func (d *DeepgramUplink) handleError(errorResponse *msginterfaces.ErrorResponse) error {
	text := fmt.Sprintf("%+v", errorResponse)
	d.logger.Error().Str("error", text).Msg("Deepgram error")
	d.observer.OnError(text)

	d.breaker.RecordResult(false)
	observability.IncrementCircuitBreakerFailures(breakerName)

	d.markLost()
	return nil
}

// markLost drops the current client and starts reconnecting unless the
// uplink was closed on purpose.
func (d *DeepgramUplink) markLost() {
	d.mu.Lock()
	if d.manualClose {
		d.mu.Unlock()
		return
	}
	d.client = nil
	d.mu.Unlock()

	d.startReconnect()
}

func (d *DeepgramUplink) startReconnect() {
	d.mu.Lock()
	if d.manualClose || d.loopRunningLocked() {
		d.mu.Unlock()
		return
	}
	d.state = transport.Reconnecting
	runCtx := d.ctx
	d.loop = runCtx
	d.mu.Unlock()
	d.emitState(transport.Reconnecting)

	go func() {
		defer func() {
			d.mu.Lock()
			if d.loop == runCtx {
				d.loop = nil
			}
			d.mu.Unlock()
		}()
		err := resilience.Reconnect(runCtx, func(ctx context.Context) error {
			observability.RecordReconnectAttempt()
			return d.open(ctx)
		}, d.backoff, d.logger)
		if err != nil {
			d.logger.Debug().Err(err).Msg("Deepgram reconnect stopped")
		}
	}()
}

// loopRunningLocked reports whether a reconnect loop is live for the
// current context. Must be called with mu held.
func (d *DeepgramUplink) loopRunningLocked() bool {
	return d.loop != nil && d.loop == d.ctx && d.loop.Err() == nil
}

// SendAudio converts samples to linear16 and writes them to Deepgram.
// It returns false when the frame was not delivered.
func (d *DeepgramUplink) SendAudio(samples []float32) bool {
	d.mu.RLock()
	client := d.client
	connected := d.state == transport.Connected
	d.mu.RUnlock()

	if !connected || client == nil {
		observability.RecordDropped("audio")
		return false
	}

	data := audio.Float32ToLinear16(samples)
	err := d.breaker.Call(func() error {
		if _, err := client.Write(data); err != nil {
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		observability.RecordAudioBytes("out", len(data))
		return true
	case errors.Is(err, resilience.ErrCircuitOpen):
		observability.RecordDropped("audio")
		return false
	default:
		observability.IncrementCircuitBreakerFailures(breakerName)
		observability.RecordDropped("audio")
		d.logger.Warn().Err(err).Msg("Deepgram write failed")
		d.markLost()
		return false
	}
}

// SendControl has no Deepgram equivalent; messages are dropped.
func (d *DeepgramUplink) SendControl(msg transport.ControlMessage) bool {
	d.logger.Debug().Str("type", msg.Type).Msg("Control message not supported by Deepgram")
	observability.RecordDropped("control")
	return false
}

// Disconnect finishes the session and stops reconnecting. It is safe to
// call more than once.
func (d *DeepgramUplink) Disconnect() error {
	d.mu.Lock()
	d.manualClose = true
	if d.cancel != nil {
		d.cancel()
	}
	client := d.client
	d.client = nil
	prev := d.state
	d.state = transport.Disconnected
	d.mu.Unlock()

	if client != nil {
		client.Finish()
	}
	if prev != transport.Disconnected {
		d.logger.Info().Msg("Deepgram streaming session stopped")
		d.emitState(transport.Disconnected)
	}
	return nil
}

func (d *DeepgramUplink) emitState(state transport.State) {
	observability.SetTransportState(int(state))
	d.observer.OnConnectionState(state)
}
