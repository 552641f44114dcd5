package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"bgstream/internal/domain"
)

type streamFixture struct {
	svc       *StreamService
	transport *fakeTransport
	camera    *fakeSurface
	render    *fakeSurface
	feed      *feed
	ticks     *manualTickers
}

func newStreamFixture(t *testing.T, opts StreamOptions) *streamFixture {
	t.Helper()
	f := &streamFixture{transport: &fakeTransport{}, camera: &fakeSurface{}, render: &fakeSurface{}, feed: &feed{}, ticks: &manualTickers{}}
	logger := discardLogger()
	f.svc = NewStreamService(StreamDeps{
		Camera:    f.camera,
		Render:    f.render,
		Codec:     grayCodec{},
		Telemetry: NewAggregator(0, 0, nil, nil, nil),
		Reporter:  NewReporter(f.feed, logger, nil),
		Logger:    logger,
	}, opts)
	f.svc.loop.newTicker = f.ticks.factory
	f.svc.SetTransport(f.transport)
	if _, err := f.svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _, _ = f.svc.Stop() })
	return f
}

func (f *streamFixture) reply(v uint8) {
	f.svc.OnMessage(domain.ProcessedFrame{Data: []byte{v}})
}

func TestSingleInFlight(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	now := time.Now()
	for i := 1; i <= 5; i++ {
		f.camera.Swap(grayFrame(uint8(i)))
		f.svc.loop.cycle(now.Add(time.Duration(i) * time.Millisecond))
		if got := len(f.transport.payloads()); got != 1 {
			t.Fatalf("cycle %d: %d sends without a reply", i, got)
		}
	}
}

func TestLatestFrameWins(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	now := time.Now()
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(now)
	for i := 2; i <= 4; i++ {
		f.camera.Swap(grayFrame(uint8(i)))
		f.svc.loop.cycle(now.Add(time.Duration(i) * time.Millisecond))
	}
	f.reply(1)
	f.svc.loop.cycle(now.Add(10 * time.Millisecond))
	if got := string(f.transport.payloads()); got != "\x01" {
		t.Fatalf("intermediate frames were sent: %v", []byte(got))
	}
	f.camera.Swap(grayFrame(5))
	f.svc.loop.cycle(now.Add(20 * time.Millisecond))
	if got := f.transport.payloads(); len(got) != 2 || got[1] != 5 {
		t.Fatalf("want latest frame 5 after reply, got %v", got)
	}
	st := f.svc.Status()
	if st.Session.Frames.Sent != 2 || st.Session.Frames.Processed != 1 || st.Session.Frames.Dropped != 3 {
		t.Fatalf("unexpected counters: %+v", st.Session.Frames)
	}
}

func TestCycleSkipsUntilSurfaceReady(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.svc.loop.cycle(time.Now())
	if len(f.transport.payloads()) != 0 {
		t.Fatalf("sent without a camera frame")
	}
	if st := f.svc.Status(); st.Session.Frames.Dropped != 0 {
		t.Fatalf("skip counted as drop")
	}
	if f.feed.count(domain.KindProcessing) != 0 {
		t.Fatalf("skip reported as error")
	}
}

func TestEncodeFailureLeavesGateClear(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.svc.deps.Codec = grayCodec{failEncode: true}
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(time.Now())
	if f.svc.gate.Busy() {
		t.Fatalf("gate held after encode failure")
	}
	if f.feed.count(domain.KindProcessing) != 1 {
		t.Fatalf("encode failure not reported")
	}
}

func TestSendFailureReleasesGate(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.transport.sendErr = errors.New("broken pipe")
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(time.Now())
	if f.svc.gate.Busy() {
		t.Fatalf("gate held after send failure")
	}
}

func TestInFlightTimeoutIgnoresLateEchoedReply(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{InFlightTimeout: 100 * time.Millisecond})
	now := time.Now()
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(now)

	second := now.Add(250 * time.Millisecond)
	f.camera.Swap(grayFrame(2))
	f.svc.loop.cycle(second)
	if got := f.transport.payloads(); len(got) != 2 || got[1] != 2 {
		t.Fatalf("frame after timeout not sent: %v", got)
	}
	if d := f.svc.Status().Session.Frames.Dropped; d != 1 {
		t.Fatalf("timeout drops = %d, want 1", d)
	}

	// late reply for the expired frame
	f.svc.OnMessage(domain.ProcessedFrame{Data: []byte{1}, CapturedAt: time.UnixMilli(now.UnixMilli())})
	if !f.svc.gate.Busy() {
		t.Fatalf("late reply released the newer frame")
	}
	f.svc.OnMessage(domain.ProcessedFrame{Data: []byte{2}, CapturedAt: time.UnixMilli(second.UnixMilli())})
	if f.svc.gate.Busy() {
		t.Fatalf("matching reply did not release the gate")
	}
}

func TestUnansweredFrameDoesNotStallLaterReplies(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{InFlightTimeout: 100 * time.Millisecond})
	now := time.Now()
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(now)

	// frame 1 is never answered and expires
	at := now.Add(250 * time.Millisecond)
	f.camera.Swap(grayFrame(2))
	f.svc.loop.cycle(at)
	for i := 3; i <= 8; i++ {
		f.reply(uint8(i - 1))
		if f.svc.gate.Busy() {
			t.Fatalf("gate still busy after reply for frame %d", i-1)
		}
		at = at.Add(10 * time.Millisecond)
		f.camera.Swap(grayFrame(uint8(i)))
		f.svc.loop.cycle(at)
	}
	if got := f.transport.payloads(); len(got) != 8 || got[7] != 8 {
		t.Fatalf("sent %v, want every frame after the unanswered one", got)
	}
	if d := f.svc.Status().Session.Frames.Dropped; d != 1 {
		t.Fatalf("drops = %d, want only the timed out frame", d)
	}
}

func TestServiceErrorAnswersFrameInFlight(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{InFlightTimeout: time.Minute})
	now := time.Now()
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(now)
	f.svc.OnMessage(domain.ServiceError{Message: "cannot identify image"})
	if f.svc.gate.Busy() {
		t.Fatalf("service error left the gate busy")
	}
	f.camera.Swap(grayFrame(2))
	f.svc.loop.cycle(now.Add(10 * time.Millisecond))
	if got := f.transport.payloads(); len(got) != 2 {
		t.Fatalf("next frame not sent after service error: %v", got)
	}

	f.svc.OnDecodeError(fmt.Errorf("%w: %w", domain.ErrFramePayload, errors.New("illegal base64 data")))
	if f.svc.gate.Busy() {
		t.Fatalf("unreadable processed frame left the gate busy")
	}
	st := f.svc.Status()
	if st.Session.Frames.Dropped != 2 || st.Session.Frames.Processed != 0 {
		t.Fatalf("counters: %+v", st.Session.Frames)
	}
}

func TestMalformedMessageKeepsStreaming(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.svc.OnDecodeError(errors.New("invalid character"))
	f.svc.OnMessage(domain.ServiceError{Message: "model overloaded"})
	f.svc.OnMessage(domain.ProcessedFrame{Data: []byte("not an image")})
	if !f.svc.Streaming() {
		t.Fatalf("streaming state changed")
	}
	if f.feed.count(domain.KindProtocol) != 1 || f.feed.count(domain.KindProcessing) != 2 {
		t.Fatalf("unexpected activity: %+v", f.feed.items)
	}
}

func TestReplyAfterStopIsNotRendered(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(time.Now())
	if _, err := f.svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	f.reply(1)
	if f.render.Seq() != 0 {
		t.Fatalf("late reply rendered on detached surface")
	}
	if f.transport.disconnects != 1 {
		t.Fatalf("transport not closed on stop")
	}
	if _, err := f.svc.Stop(); !errors.Is(err, domain.ErrNotStreaming) {
		t.Fatalf("second stop: %v", err)
	}
}

func TestProcessedFrameUpdatesRenderAndLatency(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.svc.OnMessage(domain.ProcessedFrame{Data: []byte{9}, CapturedAt: time.Now().Add(-40 * time.Millisecond)})
	img, ok := f.render.Snapshot()
	if !ok {
		t.Fatalf("render surface not updated")
	}
	if img.Bounds() != image.Rect(0, 0, 1, 1) {
		t.Fatalf("unexpected render frame %v", img.Bounds())
	}
	if lat := f.svc.Status().Telemetry.LatencyMs; lat < 40 {
		t.Fatalf("latency = %v, want >= 40", lat)
	}
}

func TestBackgroundAcknowledgement(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{Settings: domain.Settings{Background: "office"}})
	if err := f.svc.ChangeBackground("beach"); err != nil {
		t.Fatalf("change background: %v", err)
	}
	if f.svc.Settings().Background != "office" {
		t.Fatalf("background changed before acknowledgement")
	}
	f.svc.OnMessage(domain.BackgroundChanged{Background: "beach", Success: true})
	if f.svc.Settings().Background != "beach" {
		t.Fatalf("background not applied")
	}
	f.svc.OnMessage(domain.BackgroundChanged{Background: "space", Success: false})
	if f.svc.Settings().Background != "beach" {
		t.Fatalf("rejected background applied")
	}
}

func TestGiveUpEndsSession(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.svc.OnGiveUp(domain.ErrGaveUp)
	if f.svc.Streaming() {
		t.Fatalf("still streaming after give up")
	}
	if f.svc.StreamingRequested() {
		t.Fatalf("reconnect still requested")
	}
}

func TestGiveUpRunsHookBeforeSessionEnds(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	var streamingAtHook, called bool
	f.svc.SetGiveUpHook(func() {
		called = true
		streamingAtHook = f.svc.Streaming()
	})
	f.svc.OnGiveUp(domain.ErrGaveUp)
	if !called || !streamingAtHook {
		t.Fatalf("hook called=%v streaming=%v", called, streamingAtHook)
	}
}

func TestDisconnectClearsGate(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{})
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(time.Now())
	f.svc.OnDisconnected(errors.New("eof"))
	if f.svc.gate.Busy() {
		t.Fatalf("gate held across disconnect")
	}
}

func TestRateLimitedSends(t *testing.T) {
	f := newStreamFixture(t, StreamOptions{MaxSendFPS: 1})
	now := time.Now()
	f.camera.Swap(grayFrame(1))
	f.svc.loop.cycle(now)
	f.reply(1)
	f.camera.Swap(grayFrame(2))
	f.svc.loop.cycle(now.Add(10 * time.Millisecond))
	if got := len(f.transport.payloads()); got != 1 {
		t.Fatalf("rate limit not applied, %d sends", got)
	}
	f.camera.Swap(grayFrame(3))
	f.svc.loop.cycle(now.Add(1100 * time.Millisecond))
	if got := len(f.transport.payloads()); got != 2 {
		t.Fatalf("send after limiter refill missing, %d sends", got)
	}
}
