package telemetrysink

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"bgstream/internal/domain"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
	gate     chan struct{}
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return doneToken{err: p.err}
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func newTestSink(pub *fakePublisher) *MQTT {
	logger := zerolog.New(io.Discard)
	s := newSink(Config{Topic: "bgstream/telemetry"}, pub, &logger)
	go s.run()
	return s
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishesSampleAsJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub)
	defer s.Close()

	s.Publish(domain.Sample{Timestamp: time.UnixMilli(1700000000000), FPS: 24, LatencyMs: 42, FrameDrops: 1})
	eventually(t, func() bool { return s.Stats().Published == 1 })

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topics[0] != "bgstream/telemetry" {
		t.Fatalf("topic = %q", pub.topics[0])
	}
	want := `{"timestamp":1700000000000,"fps":24,"latencyMs":42,"cpu":0,"memory":0,"frameDrops":1}`
	if string(pub.payloads[0]) != want {
		t.Fatalf("payload = %s", pub.payloads[0])
	}
}

func TestPublishKeepsNewestWhenBehind(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{})}
	s := newTestSink(pub)
	defer s.Close()

	s.Publish(domain.Sample{FPS: 1})
	// the first sample is now blocked inside Publish
	eventually(t, func() bool { return len(s.pending) == 0 })
	s.Publish(domain.Sample{FPS: 2})
	s.Publish(domain.Sample{FPS: 3})
	close(pub.gate)
	eventually(t, func() bool { return pub.count() == 2 })

	if st := s.Stats(); st.Dropped != 1 {
		t.Fatalf("dropped = %d", st.Dropped)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	var got samplePayload
	if err := json.Unmarshal(pub.payloads[1], &got); err != nil || got.FPS != 3 {
		t.Fatalf("newest sample not kept: %s", pub.payloads[1])
	}
}

func TestPublishErrorsAreCounted(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not authorized")}
	s := newTestSink(pub)
	defer s.Close()
	s.Publish(domain.Sample{})
	eventually(t, func() bool { return s.Stats().Errors == 1 })
}
