package domain

import "time"

type MessageKind string

const (
	KindProcessedFrame    MessageKind = "processed_frame"
	KindBackgroundChanged MessageKind = "background_changed"
	KindError             MessageKind = "error"
	KindPerformanceUpdate MessageKind = "performance_update"
	KindPong              MessageKind = "pong"
)

// InboundMessage is the closed set of messages the inference service sends.
// Only types in this package implement it.
type InboundMessage interface {
	Kind() MessageKind
	inbound()
}

type ProcessedFrame struct {
	Data       []byte
	Background string
	// CapturedAt is the capture timestamp echoed by the service, zero when absent.
	CapturedAt time.Time
}

type BackgroundChanged struct {
	Background string
	Success    bool
}

type ServiceError struct {
	Message string
}

// PerformanceUpdate carries service-side measurements. Nil fields were not reported.
type PerformanceUpdate struct {
	FPS        *float64
	LatencyMs  *float64
	CPUPct     *float64
	MemPct     *float64
	FrameDrops *int
}

type Pong struct{}

func (ProcessedFrame) Kind() MessageKind    { return KindProcessedFrame }
func (BackgroundChanged) Kind() MessageKind { return KindBackgroundChanged }
func (ServiceError) Kind() MessageKind      { return KindError }
func (PerformanceUpdate) Kind() MessageKind { return KindPerformanceUpdate }
func (Pong) Kind() MessageKind              { return KindPong }

func (ProcessedFrame) inbound()    {}
func (BackgroundChanged) inbound() {}
func (ServiceError) inbound()      {}
func (PerformanceUpdate) inbound() {}
func (Pong) inbound()              {}

func (e ServiceError) Error() string { return "service error: " + e.Message }
