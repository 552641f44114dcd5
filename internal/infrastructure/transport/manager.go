// Package transport owns the websocket connection to the inference service.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bgstream/internal/adapters/wire"
	"bgstream/internal/domain"
	"bgstream/internal/infrastructure/observability"
	"bgstream/pkg/shared/redact"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateGaveUp       State = "gave_up"
)

var allStates = []string{
	string(StateDisconnected), string(StateConnecting), string(StateConnected),
	string(StateReconnecting), string(StateGaveUp),
}

// Handler receives connection lifecycle and inbound traffic. Calls are made
// without any Manager lock held; OnMessage and OnDecodeError run on the read
// goroutine in receipt order.
type Handler interface {
	StreamingRequested() bool
	OnConnected()
	OnDisconnected(err error)
	OnReconnectScheduled(attempt int, delay time.Duration)
	OnGiveUp(err error)
	OnMessage(msg domain.InboundMessage)
	OnDecodeError(err error)
}

type Config struct {
	URL              string
	InsecureTLS      bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// Keepalive is the application ping interval; zero disables it.
	Keepalive time.Duration
	Reconnect ReconnectConfig
}

type Manager struct {
	cfg     Config
	handler Handler
	logger  *zerolog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	gen      uint64
	attempts int
	timer    *time.Timer

	writeMu    sync.Mutex
	reconnects atomic.Uint64
}

func NewManager(cfg Config, h Handler, logger *zerolog.Logger, metrics *observability.Metrics) *Manager {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	def := DefaultReconnectConfig()
	if cfg.Reconnect.RetryDelay <= 0 {
		cfg.Reconnect.RetryDelay = def.RetryDelay
	}
	if cfg.Reconnect.MaxRetryDelay <= 0 {
		cfg.Reconnect.MaxRetryDelay = def.MaxRetryDelay
	}
	m := &Manager{cfg: cfg, handler: h, logger: logger, metrics: metrics, state: StateDisconnected}
	metrics.SetConnectionState(string(StateDisconnected), allStates)
	return m
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.SetConnectionState(string(s), allStates)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool { return m.State() == StateConnected }

// Reconnects is the number of reconnect attempts scheduled so far.
func (m *Manager) Reconnects() uint64 { return m.reconnects.Load() }

// Connect dials the service. It is a no-op while connecting or connected and
// cancels any pending reconnect. A failure schedules a reconnect when
// streaming is still requested.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	case StateGaveUp:
		m.attempts = 0
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	return m.dial(ctx)
}

func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateConnecting)
	gen := m.gen
	m.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		NetDialContext:   (&net.Dialer{Timeout: m.cfg.HandshakeTimeout}).DialContext,
	}
	if m.cfg.InsecureTLS {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	target := redact.RedactURL(m.cfg.URL)
	conn, resp, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("url", target).Msg("transport: connect failed")
		m.mu.Lock()
		if m.gen == gen && m.state == StateConnecting {
			m.setStateLocked(StateDisconnected)
		}
		m.mu.Unlock()
		m.scheduleReconnect(err)
		return fmt.Errorf("connect %s: %w", target, err)
	}

	m.mu.Lock()
	if m.gen != gen || m.state != StateConnecting {
		// disconnected while dialing
		m.mu.Unlock()
		_ = conn.Close()
		return domain.ErrNotConnected
	}
	m.gen++
	gen = m.gen
	m.conn = conn
	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info().Str("url", target).Msg("transport: connected")
	go m.readPump(conn, gen)
	if m.cfg.Keepalive > 0 {
		go m.keepalive(conn, gen)
	}
	m.handler.OnConnected()
	return nil
}

func (m *Manager) readPump(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.lost(conn, gen, err)
			return
		}
		msg, derr := wire.Decode(data)
		if derr != nil {
			if e := m.logger.Debug(); e.Enabled() {
				e.Err(derr).Int("size", len(data)).Str("raw", redact.RedactJSON(preview(data))).Msg("transport: undecodable message")
			}
			m.handler.OnDecodeError(derr)
			continue
		}
		m.handler.OnMessage(msg)
	}
}

// lost handles an unexpected close of the current connection.
func (m *Manager) lost(conn *websocket.Conn, gen uint64, err error) {
	_ = conn.Close()
	m.mu.Lock()
	if m.gen != gen {
		// closed deliberately
		m.mu.Unlock()
		return
	}
	m.gen++
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.logger.Warn().Err(err).Msg("transport: connection lost")
	m.handler.OnDisconnected(err)
	m.scheduleReconnect(err)
}

// scheduleReconnect arms a single reconnect timer with capped exponential
// backoff, or gives up once the attempt budget is spent.
func (m *Manager) scheduleReconnect(cause error) {
	if !m.handler.StreamingRequested() {
		m.logger.Debug().Msg("transport: streaming stopped, not reconnecting")
		return
	}
	m.mu.Lock()
	if m.timer != nil || m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	if limit := m.cfg.Reconnect.MaxRetries; limit > 0 && attempt > limit {
		m.setStateLocked(StateGaveUp)
		m.mu.Unlock()
		err := fmt.Errorf("%w after %d attempts: %v", domain.ErrGaveUp, limit, cause)
		m.logger.Error().Err(err).Msg("transport: giving up")
		m.handler.OnGiveUp(err)
		return
	}
	delay := calculateBackoff(attempt, m.cfg.Reconnect)
	m.setStateLocked(StateReconnecting)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.timer != t || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		if !m.handler.StreamingRequested() {
			return
		}
		_ = m.dial(context.Background())
	})
	m.timer = t
	m.mu.Unlock()

	m.reconnects.Add(1)
	m.metrics.ReconnectScheduled()
	m.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("transport: reconnect scheduled")
	m.handler.OnReconnectScheduled(attempt, delay)
}

func (m *Manager) keepalive(conn *websocket.Conn, gen uint64) {
	t := time.NewTicker(m.cfg.Keepalive)
	defer t.Stop()
	for range t.C {
		m.mu.Lock()
		current := m.gen == gen
		m.mu.Unlock()
		if !current {
			return
		}
		if err := m.write(conn, wire.EncodePing()); err != nil {
			m.logger.Debug().Err(err).Msg("transport: keepalive failed")
			return
		}
	}
}

func (m *Manager) write(conn *websocket.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *Manager) current() *websocket.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.conn
}

// Send transmits one frame as a single text message.
func (m *Manager) Send(f domain.OutboundFrame) error {
	conn := m.current()
	if conn == nil {
		m.logger.Debug().Msg("transport: send while not connected")
		return domain.ErrNotConnected
	}
	data, err := wire.EncodeFrame(f)
	if err != nil {
		return err
	}
	return m.write(conn, data)
}

func (m *Manager) ChangeBackground(background string, s domain.Settings) error {
	conn := m.current()
	if conn == nil {
		return domain.ErrNotConnected
	}
	data, err := wire.EncodeChangeBackground(background, s)
	if err != nil {
		return err
	}
	return m.write(conn, data)
}

// Disconnect closes the connection and cancels any pending reconnect. It
// never triggers a reconnect.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	m.writeMu.Unlock()
	m.logger.Info().Msg("transport: disconnected")
	return conn.Close()
}

// preview bounds what ends up in logs; frames carry large base64 payloads.
func preview(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit])
	}
	return string(data)
}
