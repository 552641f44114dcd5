package usecase

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"bgstream/internal/domain"
)

// CaptureLoop runs once per refresh tick while a session is active. Each
// cycle samples the newest camera frame and transmits it only when the gate
// is free, so stale frames are never queued.
type CaptureLoop struct {
	svc      *StreamService
	limiter  *rate.Limiter
	interval time.Duration

	// lastSeq is the camera generation most recently sent or dropped.
	lastSeq uint64

	// newTicker is swapped in tests.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

func (l *CaptureLoop) reset() { l.lastSeq = 0 }

func (l *CaptureLoop) Run(ctx context.Context) {
	tick, stop := l.ticker()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			if !l.cycle(now) {
				return
			}
		}
	}
}

func (l *CaptureLoop) ticker() (<-chan time.Time, func()) {
	if l.newTicker != nil {
		return l.newTicker(l.interval)
	}
	t := time.NewTicker(l.interval)
	return t.C, t.Stop
}

// cycle performs one capture step and reports whether the loop should continue.
func (l *CaptureLoop) cycle(now time.Time) bool {
	s := l.svc
	if !s.Streaming() {
		return false
	}
	s.deps.Telemetry.Tick(now)
	if s.gate.Expire(now) {
		s.countDropped(DropTimeout)
		s.deps.Logger.Debug().Msg("capture: in-flight frame timed out")
	}

	s.mu.Lock()
	t, settings := s.transport, s.settings
	s.mu.Unlock()
	if t == nil || !t.Connected() {
		return true
	}
	seq := s.deps.Camera.Seq()
	if seq == 0 || seq == l.lastSeq {
		return true
	}
	img, ok := s.deps.Camera.Snapshot()
	if !ok {
		return true
	}
	if s.gate.Busy() {
		l.lastSeq = seq
		s.countDropped(DropBackpressure)
		return true
	}
	if l.limiter != nil && !l.limiter.AllowN(now, 1) {
		l.lastSeq = seq
		s.countDropped(DropRateLimited)
		return true
	}

	payload, err := s.deps.Codec.Encode(img, settings.Quality.EncodeLevel())
	if err != nil {
		l.lastSeq = seq
		s.deps.Reporter.Report(domain.KindProcessing, "encode frame", err)
		return true
	}
	if !s.gate.TryAcquire(now) {
		return true
	}
	frame := domain.OutboundFrame{Payload: payload, CapturedAt: now, Settings: settings}
	if err := t.Send(frame); err != nil {
		s.gate.Abort()
		s.deps.Reporter.Report(domain.KindConnection, "send frame", err)
		return true
	}
	l.lastSeq = seq
	s.deps.Telemetry.CountFrame()
	s.deps.Metrics.FrameSent(len(payload))
	s.countSent()
	return true
}
