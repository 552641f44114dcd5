package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bgstream/internal/domain"
	"bgstream/pkg/shared/id"
)

const (
	DefaultRecordingFPS    = 30
	DefaultSegmentInterval = time.Second
)

var ErrNoFrames = errors.New("recorder: no frames captured")

type RecorderDeps struct {
	Render   Surface
	NewSink  func() SegmentSink
	Catalog  *CatalogService
	Exporter Exporter
	Reporter *Reporter
	Metrics  Instruments
	Notifier Notifier
	Logger   *zerolog.Logger
	// Active reports whether a session is streaming.
	Active func() bool
	// Link builds the reference link handed to the share fallback.
	Link func(domain.Recording) string
}

type RecorderOptions struct {
	FPS             int
	SegmentInterval time.Duration
}

type RecorderStatus struct {
	Recording bool      `json:"recording"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Duration  int       `json:"duration"`
	Segments  int       `json:"segments"`
}

// Recorder captures the render surface into segments while active and
// finalizes them into a catalog entry on Stop.
type Recorder struct {
	deps RecorderDeps
	opts RecorderOptions

	mu        sync.Mutex
	active    bool
	stopping  bool
	startedAt time.Time
	duration  int
	segments  int
	stopReq   chan chan []byte
	done      chan struct{}

	// newTicker is swapped in tests; tickers are created frame, segment, second.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

func NewRecorder(deps RecorderDeps, opts RecorderOptions) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = DefaultRecordingFPS
	}
	if opts.SegmentInterval <= 0 {
		opts.SegmentInterval = DefaultSegmentInterval
	}
	if deps.Metrics == nil {
		deps.Metrics = nopInstruments{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Recorder{deps: deps, opts: opts}
}

// Start begins recording. It fails when no session is streaming, when the
// render surface has no frame yet, or when a recording is already running.
func (r *Recorder) Start() error {
	if r.deps.Active != nil && !r.deps.Active() {
		return domain.ErrNotStreaming
	}
	if _, ok := r.deps.Render.Snapshot(); !ok {
		return domain.ErrSurfaceNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return domain.ErrRecordingActive
	}
	r.active = true
	r.startedAt = time.Now().UTC()
	r.duration = 0
	r.segments = 0
	r.stopReq = make(chan chan []byte)
	r.done = make(chan struct{})

	frameC, stopFrame := r.ticker(time.Second / time.Duration(r.opts.FPS))
	segC, stopSeg := r.ticker(r.opts.SegmentInterval)
	secC, stopSec := r.ticker(time.Second)
	go func(stopReq chan chan []byte, done chan struct{}) {
		defer close(done)
		defer stopFrame()
		defer stopSeg()
		defer stopSec()
		r.run(r.deps.NewSink(), frameC, segC, secC, stopReq)
	}(r.stopReq, r.done)

	r.deps.Logger.Info().Int("fps", r.opts.FPS).Dur("segment", r.opts.SegmentInterval).Msg("recorder: started")
	r.deps.Notifier.Notify("recording_started", "", "")
	return nil
}

func (r *Recorder) run(sink SegmentSink, frameC, segC, secC <-chan time.Time, stopReq chan chan []byte) {
	for {
		select {
		case <-frameC:
			img, ok := r.deps.Render.Snapshot()
			if !ok {
				continue
			}
			if err := sink.WriteFrame(img); err != nil {
				r.deps.Reporter.Report(domain.KindProcessing, "record frame", err)
			}
		case <-segC:
			if sink.Cut() > 0 {
				r.mu.Lock()
				r.segments++
				r.mu.Unlock()
			}
		case <-secC:
			r.mu.Lock()
			r.duration++
			r.mu.Unlock()
		case reply := <-stopReq:
			reply <- sink.Finalize()
			return
		}
	}
}

func (r *Recorder) ticker(d time.Duration) (<-chan time.Time, func()) {
	if r.newTicker != nil {
		return r.newTicker(d)
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Stop finalizes the active recording and prepends it to the catalog. Only
// one caller finalizes; concurrent callers get ErrNotRecording.
func (r *Recorder) Stop(ctx context.Context) (domain.Recording, error) {
	r.mu.Lock()
	if !r.active || r.stopping {
		r.mu.Unlock()
		return domain.Recording{}, domain.ErrNotRecording
	}
	r.stopping = true
	stopReq, done := r.stopReq, r.done
	r.mu.Unlock()

	reply := make(chan []byte, 1)
	stopReq <- reply
	data := <-reply
	<-done

	r.mu.Lock()
	duration := r.duration
	r.active = false
	r.stopping = false
	r.duration = 0
	r.segments = 0
	r.stopReq, r.done = nil, nil
	r.mu.Unlock()

	if len(data) == 0 {
		r.deps.Reporter.Report(domain.KindProcessing, "recording discarded", ErrNoFrames)
		return domain.Recording{}, ErrNoFrames
	}
	now := time.Now()
	size := int64(len(data))
	rec := domain.Recording{
		ID:        id.New(),
		Name:      domain.RecordingName(now),
		Duration:  duration,
		Size:      size,
		SizeHuman: domain.FormatSize(size),
		CreatedAt: now.UTC(),
		MimeType:  domain.MimeMJPEG,
		Data:      data,
	}
	if err := r.deps.Catalog.Add(ctx, rec); err != nil {
		r.deps.Reporter.Report(domain.KindProcessing, "store recording", err)
		return domain.Recording{}, err
	}
	r.deps.Metrics.RecordingFinalized(size)
	r.deps.Logger.Info().Str("id", rec.ID).Int("duration", duration).Str("size", rec.SizeHuman).Msg("recorder: finalized")
	r.deps.Notifier.Notify("recording_finalized", rec.ID, rec.Name)
	return rec, nil
}

func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RecorderStatus{Recording: r.active, Duration: r.duration, Segments: r.segments}
	if r.active {
		st.StartedAt = r.startedAt
	}
	return st
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Download saves the recording locally and returns the written path.
func (r *Recorder) Download(ctx context.Context, recID string) (string, error) {
	rec, err := r.deps.Catalog.Get(ctx, recID)
	if err != nil {
		return "", err
	}
	path, err := r.deps.Exporter.Save(ctx, rec)
	if err != nil {
		r.deps.Reporter.Report(domain.KindCapability, "download recording", err)
		return "", err
	}
	r.deps.Logger.Info().Str("id", rec.ID).Str("path", path).Msg("recorder: downloaded")
	return path, nil
}

// Share is best effort; failures are reported and returned.
func (r *Recorder) Share(ctx context.Context, recID string) error {
	rec, err := r.deps.Catalog.Get(ctx, recID)
	if err != nil {
		return err
	}
	link := ""
	if r.deps.Link != nil {
		link = r.deps.Link(rec)
	}
	if err := r.deps.Exporter.Share(ctx, rec, link); err != nil {
		r.deps.Reporter.Report(domain.KindCapability, "share recording", err)
		return err
	}
	return nil
}
