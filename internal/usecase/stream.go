package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bgstream/internal/domain"
	"bgstream/pkg/shared/id"
)

type StreamDeps struct {
	Camera    Surface
	Render    RenderTarget
	Codec     FrameCodec
	Telemetry *Aggregator
	Reporter  *Reporter
	Metrics   Instruments
	Notifier  Notifier
	Logger    *zerolog.Logger
}

type StreamOptions struct {
	Settings        domain.Settings
	RefreshInterval time.Duration
	InFlightTimeout time.Duration
	// MaxSendFPS caps outbound frames per second; zero means uncapped.
	MaxSendFPS float64
}

type StreamStatus struct {
	Session   *domain.Session   `json:"session"`
	Connected bool              `json:"connected"`
	InFlight  bool              `json:"inFlight"`
	Telemetry TelemetrySnapshot `json:"telemetry"`
}

// StreamService owns the session and is the only component that mutates it
// or the in-flight gate. It receives inbound traffic from the transport.
type StreamService struct {
	deps StreamDeps
	opts StreamOptions
	gate *Gate
	loop *CaptureLoop

	mu        sync.Mutex
	transport Transport
	onGiveUp  func()
	session   *domain.Session
	settings  domain.Settings
	streaming bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewStreamService(deps StreamDeps, opts StreamOptions) *StreamService {
	if deps.Metrics == nil {
		deps.Metrics = nopInstruments{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second / 60
	}
	if opts.Settings.Quality == "" {
		opts.Settings.Quality = domain.QualityMedium
	}
	s := &StreamService{deps: deps, opts: opts, settings: opts.Settings, gate: NewGate(opts.InFlightTimeout)}
	var limiter *rate.Limiter
	if opts.MaxSendFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxSendFPS), 1)
	}
	s.loop = &CaptureLoop{svc: s, limiter: limiter, interval: opts.RefreshInterval}
	return s
}

// SetTransport wires the connection; it must be called before Start.
func (s *StreamService) SetTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

// SetGiveUpHook installs fn to run when the transport gives up, before the
// session ends.
func (s *StreamService) SetGiveUpHook(fn func()) {
	s.mu.Lock()
	s.onGiveUp = fn
	s.mu.Unlock()
}

// Start begins a session: telemetry is reset, the transport connects and the
// capture loop runs until Stop. Starting an active session is a no-op.
func (s *StreamService) Start(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	if s.transport == nil {
		s.mu.Unlock()
		return domain.Session{}, errors.New("stream: transport not configured")
	}
	if s.streaming {
		cur := *s.session
		s.mu.Unlock()
		return cur, nil
	}
	now := time.Now()
	s.deps.Telemetry.Reset(now)
	s.gate.Clear()
	s.loop.reset()
	s.session = &domain.Session{ID: id.NewSession(), StartedAt: now.UTC(), Settings: s.settings, Streaming: true}
	s.streaming = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	sess := *s.session
	t := s.transport
	s.mu.Unlock()

	s.deps.Logger.Info().Str("session", sess.ID).Str("quality", string(sess.Settings.Quality)).Msg("stream: session started")
	s.deps.Notifier.Notify("session_started", sess.ID, "")

	if err := t.Connect(ctx); err != nil {
		s.deps.Reporter.Report(domain.KindConnection, "connect failed", err)
	}
	go func() {
		defer close(done)
		s.loop.Run(loopCtx)
	}()
	return sess, nil
}

// Stop ends the session: the loop is cancelled, the transport closed without
// reconnecting and the gate cleared.
func (s *StreamService) Stop() (domain.Session, error) {
	sess, err := s.halt()
	if err != nil {
		return sess, err
	}
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t != nil {
		if err := t.Disconnect(); err != nil {
			s.deps.Reporter.Report(domain.KindConnection, "disconnect failed", err)
		}
	}
	s.gate.Clear()
	return sess, nil
}

// halt flips the session to stopped and waits for the capture loop to exit.
func (s *StreamService) halt() (domain.Session, error) {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return domain.Session{}, domain.ErrNotStreaming
	}
	s.streaming = false
	stopped := time.Now().UTC()
	s.session.Streaming = false
	s.session.StoppedAt = &stopped
	sess := *s.session
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	s.deps.Logger.Info().Str("session", sess.ID).Int("sent", sess.Frames.Sent).Int("processed", sess.Frames.Processed).Msg("stream: session stopped")
	s.deps.Notifier.Notify("session_stopped", sess.ID, "")
	return sess, nil
}

func (s *StreamService) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *StreamService) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *StreamService) SetQuality(q domain.Quality) {
	s.mu.Lock()
	s.settings.Quality = q
	if s.session != nil && s.streaming {
		s.session.Settings.Quality = q
	}
	s.mu.Unlock()
}

func (s *StreamService) SetEdgeSmoothing(v float64) {
	s.mu.Lock()
	s.settings.EdgeSmoothing = v
	s.mu.Unlock()
}

// ChangeBackground asks the service to switch backgrounds. The local setting
// follows once the service acknowledges.
func (s *StreamService) ChangeBackground(background string) error {
	s.mu.Lock()
	t, settings := s.transport, s.settings
	s.mu.Unlock()
	if t == nil || !t.Connected() {
		return domain.ErrNotConnected
	}
	return t.ChangeBackground(background, settings)
}

func (s *StreamService) Status() StreamStatus {
	s.mu.Lock()
	var sess *domain.Session
	if s.session != nil {
		cp := *s.session
		sess = &cp
	}
	t := s.transport
	s.mu.Unlock()
	st := StreamStatus{Session: sess, InFlight: s.gate.Busy(), Telemetry: s.deps.Telemetry.Snapshot()}
	if t != nil {
		st.Connected = t.Connected()
	}
	return st
}

func (s *StreamService) currentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

func (s *StreamService) countSent() {
	s.mu.Lock()
	if s.session != nil {
		s.session.Frames.Sent++
	}
	s.mu.Unlock()
}

func (s *StreamService) countDropped(reason string) {
	s.mu.Lock()
	if s.session != nil {
		s.session.Frames.Dropped++
	}
	s.mu.Unlock()
	s.deps.Metrics.FrameDropped(reason)
	if reason != DropRateLimited {
		s.deps.Telemetry.CountDrop()
	}
}

// StreamingRequested reports whether the transport should keep reconnecting.
func (s *StreamService) StreamingRequested() bool { return s.Streaming() }

func (s *StreamService) OnConnected() {
	s.deps.Reporter.Info("connected to inference service")
	s.deps.Notifier.Notify("connected", s.currentSessionID(), "")
}

func (s *StreamService) OnDisconnected(err error) {
	s.gate.Clear()
	s.deps.Reporter.Report(domain.KindConnection, "connection lost", err)
	s.deps.Notifier.Notify("disconnected", s.currentSessionID(), "")
}

func (s *StreamService) OnReconnectScheduled(attempt int, delay time.Duration) {
	s.deps.Notifier.Notify("reconnect_scheduled", s.currentSessionID(), delay.String())
}

// OnGiveUp ends the session after the transport exhausted its reconnect attempts.
func (s *StreamService) OnGiveUp(err error) {
	s.deps.Reporter.Report(domain.KindConnection, "giving up on inference service", err)
	s.deps.Notifier.Notify("reconnect_gave_up", s.currentSessionID(), "")
	s.mu.Lock()
	hook := s.onGiveUp
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if _, herr := s.halt(); herr == nil {
		s.gate.Clear()
	}
}

// OnDecodeError reports a message that could not be parsed. A processed
// frame with an unreadable image still answers the frame in flight.
func (s *StreamService) OnDecodeError(err error) {
	s.deps.Metrics.DecodeError()
	if errors.Is(err, domain.ErrFramePayload) {
		s.failInFlight()
		s.deps.Reporter.Report(domain.KindProcessing, "dropped unreadable processed frame", err)
		return
	}
	s.deps.Reporter.Report(domain.KindProtocol, "dropped malformed message", err)
}

// failInFlight treats the current hold as answered without a usable frame.
func (s *StreamService) failInFlight() {
	if ok, _ := s.gate.Release(time.Time{}); ok {
		s.countDropped(DropServiceError)
	}
}

// OnMessage applies one inbound message. Messages arrive in receipt order on
// the transport's read goroutine.
func (s *StreamService) OnMessage(msg domain.InboundMessage) {
	switch m := msg.(type) {
	case domain.ProcessedFrame:
		s.onProcessedFrame(m)
	case domain.BackgroundChanged:
		s.onBackgroundChanged(m)
	case domain.ServiceError:
		s.failInFlight()
		s.deps.Reporter.Report(domain.KindProcessing, "inference service error", m)
	case domain.PerformanceUpdate:
		s.deps.Telemetry.MergePerformance(m)
	case domain.Pong:
		s.deps.Logger.Debug().Msg("stream: pong")
	default:
		s.deps.Reporter.Report(domain.KindProtocol, "unhandled message kind "+string(msg.Kind()), nil)
	}
}

func (s *StreamService) onProcessedFrame(m domain.ProcessedFrame) {
	now := time.Now()
	released, since := s.gate.Release(m.CapturedAt)
	if !s.Streaming() {
		// late reply for a stopped session; the render surface is detached
		return
	}
	img, err := s.deps.Codec.Decode(m.Data)
	if err != nil {
		s.deps.Reporter.Report(domain.KindProcessing, "decode processed frame", err)
		return
	}
	s.deps.Render.Swap(img)

	var latency time.Duration
	switch {
	case !m.CapturedAt.IsZero():
		latency = now.Sub(m.CapturedAt)
	case released:
		latency = now.Sub(since)
	}
	if latency > 0 {
		s.deps.Telemetry.ObserveLatency(float64(latency.Microseconds()) / 1000)
	}
	s.deps.Metrics.FrameProcessed(latency)

	s.mu.Lock()
	var sid string
	if s.session != nil {
		s.session.Frames.Processed++
		sid = s.session.ID
	}
	s.mu.Unlock()
	s.deps.Notifier.Notify("frame_processed", sid, "")
}

func (s *StreamService) onBackgroundChanged(m domain.BackgroundChanged) {
	if !m.Success {
		s.deps.Reporter.Report(domain.KindProcessing, "background change rejected: "+m.Background, nil)
		return
	}
	s.mu.Lock()
	s.settings.Background = m.Background
	if s.session != nil {
		s.session.Settings.Background = m.Background
	}
	s.mu.Unlock()
	s.deps.Reporter.Info("background changed to " + m.Background)
}
