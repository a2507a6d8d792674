package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
	"github.com/lexiqai/speech-streamer/internal/observability"
	"github.com/lexiqai/speech-streamer/internal/resilience"
)

// ErrClosedDuringDial is returned when Disconnect wins the race against a dial.
var ErrClosedDuringDial = errors.New("transport closed while dialing")

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	closeGracePeriod    = time.Second
)

// Config holds stream transport settings
type Config struct {
	URL          string
	Params       StreamParams
	Model        string // sent with select_model when set
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	BackoffFloor time.Duration
	BackoffCap   time.Duration
	Header       http.Header
}

// StreamTransport owns a single websocket connection to the transcription
// server. It sends binary audio frames and JSON control messages, routes
// inbound messages to an Observer and reconnects with backoff after any
// close it did not initiate.
type StreamTransport struct {
	config   Config
	observer Observer
	logger   zerolog.Logger
	dialer   *websocket.Dialer
	backoff  *resilience.Backoff

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	generation  uint64 // bumped for every new or discarded connection
	dialing     bool
	manualClose bool
	timer       *time.Timer

	writeMu sync.Mutex
}

// NewStreamTransport creates a disconnected transport. observer must not be nil.
func NewStreamTransport(config Config, observer Observer, logger zerolog.Logger) *StreamTransport {
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaultDialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &StreamTransport{
		config:   config,
		observer: observer,
		logger:   logger.With().Str("component", "transport").Str("url", config.URL).Logger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.DialTimeout,
		},
		backoff: resilience.NewBackoff(config.BackoffFloor, config.BackoffCap),
	}
}

// State returns the current connection state
func (t *StreamTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ReconnectDelay returns the delay that will be used for the next reconnect
func (t *StreamTransport) ReconnectDelay() time.Duration {
	return t.backoff.Current()
}

// Connect opens the connection and sends the handshake. It is a no-op while
// connected. While another attempt is in flight that attempt is adopted,
// even if Disconnect was called in the meantime. A pending reconnect is
// replaced by this attempt. On failure a reconnect is scheduled and the dial
// error is returned.
func (t *StreamTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == Connected {
		t.mu.Unlock()
		return nil
	}
	t.manualClose = false
	if t.dialing {
		resumed := t.state == Disconnected
		if resumed {
			t.state = Connecting
		}
		t.mu.Unlock()
		if resumed {
			t.emitState(Connecting)
		}
		return nil
	}
	t.stopTimerLocked()
	t.dialing = true
	t.state = Connecting
	t.mu.Unlock()

	t.emitState(Connecting)
	return t.dial(ctx)
}

func (t *StreamTransport) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(dialCtx, t.config.URL, t.config.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.mu.Lock()
	t.dialing = false

	if err != nil {
		if t.manualClose {
			t.state = Disconnected
			t.mu.Unlock()
			t.emitState(Disconnected)
			return fmt.Errorf("failed to connect to %s: %w", t.config.URL, err)
		}
		delay := t.scheduleReconnectLocked()
		t.mu.Unlock()

		t.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to connect")
		observability.RecordError("dial", "transport")
		t.emitState(Reconnecting)
		return fmt.Errorf("failed to connect to %s: %w", t.config.URL, err)
	}

	if t.manualClose {
		t.mu.Unlock()
		conn.Close()
		return ErrClosedDuringDial
	}

	t.conn = conn
	t.generation++
	gen := t.generation
	t.state = Connected
	t.backoff.Reset()
	t.mu.Unlock()

	t.logger.Info().Msg("Connected to transcription server")
	t.emitState(Connected)

	go t.readLoop(conn, gen)
	t.sendHandshake()
	return nil
}

func (t *StreamTransport) sendHandshake() {
	t.SendControl(SetParams(t.config.Params))
	if t.config.Model != "" {
		t.SendControl(SelectModel(t.config.Model))
	}
	t.SendControl(RequestModels())
}

// scheduleReconnectLocked arms the reconnect timer. Must be called with mu held.
func (t *StreamTransport) scheduleReconnectLocked() time.Duration {
	t.stopTimerLocked()
	t.state = Reconnecting
	delay := t.backoff.Next()
	observability.RecordReconnectAttempt()

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		// A stopped timer may still fire once; only the armed one may dial
		if t.timer != timer || t.manualClose || t.dialing || t.state == Connected {
			t.mu.Unlock()
			return
		}
		t.timer = nil
		t.dialing = true
		t.state = Connecting
		t.mu.Unlock()

		t.emitState(Connecting)
		t.dial(context.Background())
	})
	t.timer = timer
	return delay
}

func (t *StreamTransport) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *StreamTransport) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(gen, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		observability.RecordAudioBytes("in", len(data))
		msg, err := ParseInbound(data)
		if err != nil {
			// Malformed payloads never close the connection
			t.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Ignoring inbound message")
			observability.RecordInboundParseError()
			continue
		}
		for _, kind := range Dispatch(msg, t.observer) {
			observability.RecordInbound(kind)
		}
	}
}

func (t *StreamTransport) handleClose(gen uint64, cause error) {
	t.mu.Lock()
	if gen != t.generation || t.conn == nil {
		// Superseded or closed by Disconnect
		t.mu.Unlock()
		return
	}

	t.conn.Close()
	t.conn = nil
	t.generation++

	if t.manualClose {
		t.state = Disconnected
		t.mu.Unlock()
		t.emitState(Disconnected)
		return
	}

	delay := t.scheduleReconnectLocked()
	t.mu.Unlock()

	t.logger.Warn().Err(cause).Dur("retry_in", delay).Msg("Connection lost, reconnecting")
	t.emitState(Reconnecting)
}

// SendAudio sends samples as one binary little-endian float32 frame. It
// returns false, dropping the frame, when not connected.
func (t *StreamTransport) SendAudio(samples []float32) bool {
	data := audio.EncodeFloat32LE(samples)
	if !t.write(websocket.BinaryMessage, data) {
		observability.RecordDropped("audio")
		return false
	}
	observability.RecordAudioBytes("out", len(data))
	return true
}

// SendControl sends msg as a JSON text frame. It returns false, dropping
// the message, when not connected.
func (t *StreamTransport) SendControl(msg ControlMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode control message")
		return false
	}
	if !t.write(websocket.TextMessage, data) {
		observability.RecordDropped("control")
		t.logger.Debug().Str("type", msg.Type).Msg("Dropped control message while disconnected")
		return false
	}
	return true
}

func (t *StreamTransport) write(messageType int, data []byte) bool {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == Connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	if err := conn.WriteMessage(messageType, data); err != nil {
		t.logger.Warn().Err(err).Msg("Write failed")
		// Closing wakes the read loop, which schedules the reconnect
		conn.Close()
		return false
	}
	return true
}

// Disconnect closes the connection and suppresses reconnection until the
// next Connect. It is safe to call more than once.
func (t *StreamTransport) Disconnect() error {
	t.mu.Lock()
	t.manualClose = true
	t.stopTimerLocked()
	conn := t.conn
	t.conn = nil
	t.generation++
	prev := t.state
	t.state = Disconnected
	t.mu.Unlock()

	var err error
	if conn != nil {
		deadline := time.Now().Add(closeGracePeriod)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = conn.Close()
	}

	if prev != Disconnected {
		t.logger.Info().Msg("Disconnected from transcription server")
		t.emitState(Disconnected)
	}
	return err
}

func (t *StreamTransport) emitState(state State) {
	observability.SetTransportState(int(state))
	t.observer.OnConnectionState(state)
}
