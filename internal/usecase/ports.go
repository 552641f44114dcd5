package usecase

import (
	"context"
	"image"
	"time"

	"bgstream/internal/domain"
)

// Transport is the connection to the inference service.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Send(f domain.OutboundFrame) error
	ChangeBackground(background string, s domain.Settings) error
}

// Surface is a readable live feed.
type Surface interface {
	Snapshot() (image.Image, bool)
	Seq() uint64
}

// RenderTarget receives processed frames.
type RenderTarget interface {
	Surface
	Swap(img image.Image)
	Reset()
}

type FrameCodec interface {
	Encode(img image.Image, quality int) ([]byte, error)
	Decode(data []byte) (image.Image, error)
}

// SegmentSink accumulates recorded frames. It is used from one goroutine.
type SegmentSink interface {
	WriteFrame(img image.Image) error
	Cut() int
	Finalize() []byte
}

// Exporter hands a finalized recording to the local machine.
type Exporter interface {
	Save(ctx context.Context, r domain.Recording) (string, error)
	Share(ctx context.Context, r domain.Recording, link string) error
}

type ResourceProbe interface {
	Usage() (cpuPct, memPct float64)
}

type TelemetrySink interface {
	Publish(s domain.Sample)
}

// Notifier fans out lifecycle events to observers.
type Notifier interface {
	Notify(kind, id, ref string)
}

// Instruments receives counters for the metrics backend.
type Instruments interface {
	FrameSent(bytes int)
	FrameProcessed(latency time.Duration)
	FrameDropped(reason string)
	DecodeError()
	SampleRecorded(s domain.Sample, score domain.Score)
	RecordingFinalized(size int64)
}

type nopInstruments struct{}

func (nopInstruments) FrameSent(int)                              {}
func (nopInstruments) FrameProcessed(time.Duration)               {}
func (nopInstruments) FrameDropped(string)                        {}
func (nopInstruments) DecodeError()                               {}
func (nopInstruments) SampleRecorded(domain.Sample, domain.Score) {}
func (nopInstruments) RecordingFinalized(int64)                   {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, string) {}

const (
	DropBackpressure = "backpressure"
	DropTimeout      = "timeout"
	DropRateLimited  = "rate_limited"
	DropServiceError = "service_error"
)
