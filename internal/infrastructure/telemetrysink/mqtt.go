// Package telemetrysink exports telemetry samples to an MQTT broker.
package telemetrysink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"bgstream/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	Broker   string
	Topic    string
	ClientID string
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type samplePayload struct {
	Timestamp  int64   `json:"timestamp"`
	FPS        float64 `json:"fps"`
	LatencyMs  float64 `json:"latencyMs"`
	CPUPct     float64 `json:"cpu"`
	MemPct     float64 `json:"memory"`
	FrameDrops int     `json:"frameDrops"`
}

// MQTT publishes samples from a background goroutine. Publish never blocks;
// when the broker falls behind only the newest pending sample is kept.
type MQTT struct {
	cfg    Config
	client mqtt.Client
	pub    publisher
	logger *zerolog.Logger

	pending chan domain.Sample
	done    chan struct{}

	mu        sync.RWMutex
	connected bool
	published uint64
	dropped   uint64
	errors    uint64
}

func newSink(cfg Config, pub publisher, logger *zerolog.Logger) *MQTT {
	return &MQTT{cfg: cfg, pub: pub, logger: logger, pending: make(chan domain.Sample, 1), done: make(chan struct{})}
}

// Connect dials the broker with auto-reconnect and starts the publisher.
func Connect(ctx context.Context, cfg Config, logger *zerolog.Logger) (*MQTT, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	s := newSink(cfg, nil, logger)
	opts.OnConnect = func(mqtt.Client) {
		s.setConnected(true)
		logger.Info().Str("broker", cfg.Broker).Msg("telemetry: mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("telemetry: mqtt connection lost")
	}
	client := mqtt.NewClient(opts)
	s.client, s.pub = client, client

	token := client.Connect()
	deadline := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		deadline = time.Until(dl)
	}
	if !token.WaitTimeout(deadline) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	s.setConnected(true)
	go s.run()
	return s, nil
}

func (s *MQTT) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Publish queues a sample for export.
func (s *MQTT) Publish(sample domain.Sample) {
	select {
	case s.pending <- sample:
		return
	default:
	}
	// replace the stale pending sample
	select {
	case <-s.pending:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	default:
	}
	select {
	case s.pending <- sample:
	default:
	}
}

func (s *MQTT) run() {
	for {
		select {
		case <-s.done:
			return
		case sample := <-s.pending:
			if err := s.send(sample); err != nil {
				s.mu.Lock()
				s.errors++
				s.mu.Unlock()
				s.logger.Debug().Err(err).Msg("telemetry: publish failed")
			}
		}
	}
}

func (s *MQTT) send(sample domain.Sample) error {
	payload, err := json.Marshal(samplePayload{
		Timestamp:  sample.Timestamp.UnixMilli(),
		FPS:        sample.FPS,
		LatencyMs:  sample.LatencyMs,
		CPUPct:     sample.CPUPct,
		MemPct:     sample.MemPct,
		FrameDrops: sample.FrameDrops,
	})
	if err != nil {
		return err
	}
	token := s.pub.Publish(s.cfg.Topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}

type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

func (s *MQTT) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Connected: s.connected, Published: s.published, Dropped: s.dropped, Errors: s.errors}
}

// Close stops the publisher and disconnects from the broker.
func (s *MQTT) Close() {
	close(s.done)
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.setConnected(false)
}
