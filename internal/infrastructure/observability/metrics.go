package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bgstream/internal/domain"
)

const namespace = "bgstream"

// Metrics is the private registry for the streaming client. All methods are
// safe on a nil receiver.
type Metrics struct {
	registry          *prometheus.Registry
	FramesSent        prometheus.Counter
	BytesSent         prometheus.Counter
	FramesProcessed   prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	DecodeErrors      prometheus.Counter
	Reconnects        prometheus.Counter
	ConnectionState   *prometheus.GaugeVec
	Latency           prometheus.Histogram
	FPS               prometheus.Gauge
	QualityScore      prometheus.Gauge
	RecordingsTotal   prometheus.Counter
	RecordingBytes    prometheus.Counter
	ActiveMonitorConn prometheus.Gauge
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames transmitted to the inference service",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_sent_total",
			Help:      "Encoded frame bytes transmitted",
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Processed frames received back",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames not transmitted or never answered, by reason",
		}, []string{"reason"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound messages that could not be parsed",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled",
		}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state",
		}, []string{"state"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latency_ms",
			Help:      "Round trip from capture to processed frame",
			Buckets:   []float64{10, 25, 50, 75, 100, 150, 250, 500, 1000, 2500},
		}),
		FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps",
			Help:      "Transmitted frames per second over the last interval",
		}),
		QualityScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quality_score",
			Help:      "Composite performance score (0-100)",
		}),
		RecordingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Finalized recordings",
		}),
		RecordingBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_bytes",
			Help:      "Bytes of finalized recordings",
		}),
		ActiveMonitorConn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_clients",
			Help:      "Connected monitor websocket clients",
		}),
	}
	r.MustRegister(m.FramesSent, m.BytesSent, m.FramesProcessed, m.FramesDropped, m.DecodeErrors,
		m.Reconnects, m.ConnectionState, m.Latency, m.FPS, m.QualityScore,
		m.RecordingsTotal, m.RecordingBytes, m.ActiveMonitorConn)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) FrameSent(bytes int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

func (m *Metrics) FrameProcessed(latency time.Duration) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	if latency > 0 {
		m.Latency.Observe(float64(latency.Microseconds()) / 1000)
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) SampleRecorded(s domain.Sample, score domain.Score) {
	if m == nil {
		return
	}
	m.FPS.Set(s.FPS)
	m.QualityScore.Set(score.Total)
}

func (m *Metrics) RecordingFinalized(size int64) {
	if m == nil {
		return
	}
	m.RecordingsTotal.Inc()
	m.RecordingBytes.Add(float64(size))
}

// SetConnectionState marks state as the only active connection state.
func (m *Metrics) SetConnectionState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) MonitorClients(delta int) {
	if m == nil {
		return
	}
	m.ActiveMonitorConn.Add(float64(delta))
}
