package usecase

import (
	"sync"
	"time"

	"bgstream/internal/domain"
)

const (
	DefaultChartWindow = 20
	DefaultScoreWindow = 10

	fpsInterval = time.Second
	// estimatedFrameBytes is the nominal encoded frame size used for the bitrate estimate.
	estimatedFrameBytes = 50_000
)

// TelemetrySnapshot is a point-in-time view of the aggregator.
type TelemetrySnapshot struct {
	FPS         float64         `json:"fps"`
	BitrateKbps float64         `json:"bitrateKbps"`
	LatencyMs   float64         `json:"latencyMs"`
	Processed   int             `json:"processed"`
	Dropped     int             `json:"dropped"`
	Score       domain.Score    `json:"score"`
	Samples     []domain.Sample `json:"samples"`
}

// Aggregator keeps the most recent telemetry samples and the rolling per-second
// counters they are built from.
type Aggregator struct {
	mu          sync.Mutex
	capacity    int
	scoreWindow int
	samples     []domain.Sample

	windowStart time.Time
	frames      int
	drops       int
	latSum      float64
	latN        int

	fps         float64
	bitrateKbps float64
	lastLatency float64
	processed   int
	dropped     int

	probe   ResourceProbe
	sink    TelemetrySink
	metrics Instruments
}

func NewAggregator(capacity, scoreWindow int, probe ResourceProbe, sink TelemetrySink, metrics Instruments) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultChartWindow
	}
	if scoreWindow <= 0 || scoreWindow > capacity {
		scoreWindow = min(DefaultScoreWindow, capacity)
	}
	if metrics == nil {
		metrics = nopInstruments{}
	}
	return &Aggregator{
		capacity:    capacity,
		scoreWindow: scoreWindow,
		samples:     make([]domain.Sample, 0, capacity),
		probe:       probe,
		sink:        sink,
		metrics:     metrics,
	}
}

// Reset clears all samples and counters; called when a session starts.
func (a *Aggregator) Reset(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = a.samples[:0]
	a.windowStart = now
	a.frames, a.drops, a.latSum, a.latN = 0, 0, 0, 0
	a.fps, a.bitrateKbps, a.lastLatency = 0, 0, 0
	a.processed, a.dropped = 0, 0
}

func (a *Aggregator) CountFrame() {
	a.mu.Lock()
	a.frames++
	a.mu.Unlock()
}

func (a *Aggregator) CountDrop() {
	a.mu.Lock()
	a.drops++
	a.dropped++
	a.mu.Unlock()
}

func (a *Aggregator) ObserveLatency(ms float64) {
	a.mu.Lock()
	a.latSum += ms
	a.latN++
	a.lastLatency = ms
	a.processed++
	a.mu.Unlock()
}

// Tick closes the rolling interval once at least a second has elapsed and
// appends the resulting sample. It reports whether a sample was produced.
func (a *Aggregator) Tick(now time.Time) bool {
	a.mu.Lock()
	if a.windowStart.IsZero() {
		a.windowStart = now
		a.mu.Unlock()
		return false
	}
	elapsed := now.Sub(a.windowStart)
	if elapsed < fpsInterval {
		a.mu.Unlock()
		return false
	}
	a.fps = float64(a.frames) * 1000 / float64(elapsed.Milliseconds())
	a.bitrateKbps = a.fps * estimatedFrameBytes * 8 / 1000
	lat := a.lastLatency
	if a.latN > 0 {
		lat = a.latSum / float64(a.latN)
	}
	s := domain.Sample{Timestamp: now, FPS: a.fps, LatencyMs: lat, FrameDrops: a.drops}
	a.windowStart = now
	a.frames, a.drops, a.latSum, a.latN = 0, 0, 0, 0
	a.mu.Unlock()

	if a.probe != nil {
		s.CPUPct, s.MemPct = a.probe.Usage()
	}
	a.Append(s)
	return true
}

// Append adds a sample, dropping the oldest once the window is full.
func (a *Aggregator) Append(s domain.Sample) {
	a.mu.Lock()
	if len(a.samples) >= a.capacity {
		copy(a.samples, a.samples[1:])
		a.samples = a.samples[:len(a.samples)-1]
	}
	a.samples = append(a.samples, s)
	score := domain.ComputeScore(a.tailLocked(a.scoreWindow))
	a.mu.Unlock()

	a.metrics.SampleRecorded(s, score)
	if a.sink != nil {
		a.sink.Publish(s)
	}
}

// MergePerformance overlays reported fields onto the latest sample. With no
// sample yet, the update becomes the first one.
func (a *Aggregator) MergePerformance(u domain.PerformanceUpdate) {
	a.mu.Lock()
	if len(a.samples) == 0 {
		a.samples = append(a.samples, domain.Sample{Timestamp: time.Now()})
	}
	s := &a.samples[len(a.samples)-1]
	if u.FPS != nil {
		s.FPS = *u.FPS
	}
	if u.LatencyMs != nil {
		s.LatencyMs = *u.LatencyMs
	}
	if u.CPUPct != nil {
		s.CPUPct = *u.CPUPct
	}
	if u.MemPct != nil {
		s.MemPct = *u.MemPct
	}
	if u.FrameDrops != nil {
		s.FrameDrops = *u.FrameDrops
	}
	a.mu.Unlock()
}

func (a *Aggregator) Latest() (domain.Sample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.samples) == 0 {
		return domain.Sample{}, false
	}
	return a.samples[len(a.samples)-1], true
}

// Window returns a copy of the retained samples, oldest first.
func (a *Aggregator) Window() []domain.Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Sample(nil), a.samples...)
}

func (a *Aggregator) Score() domain.Score {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.ComputeScore(a.tailLocked(a.scoreWindow))
}

func (a *Aggregator) Snapshot() TelemetrySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TelemetrySnapshot{
		FPS:         a.fps,
		BitrateKbps: a.bitrateKbps,
		LatencyMs:   a.lastLatency,
		Processed:   a.processed,
		Dropped:     a.dropped,
		Score:       domain.ComputeScore(a.tailLocked(a.scoreWindow)),
		Samples:     append([]domain.Sample(nil), a.samples...),
	}
}

func (a *Aggregator) tailLocked(n int) []domain.Sample {
	if len(a.samples) <= n {
		return a.samples
	}
	return a.samples[len(a.samples)-n:]
}
