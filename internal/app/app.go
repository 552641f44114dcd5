// Package app assembles the streaming client from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bgstream/interfaces/go/client"
	"bgstream/internal/adapters/media"
	"bgstream/internal/adapters/storage/memory"
	"bgstream/internal/adapters/storage/sqlite"
	"bgstream/internal/domain"
	"bgstream/internal/infrastructure/config"
	"bgstream/internal/infrastructure/httpapi"
	obs "bgstream/internal/infrastructure/observability"
	"bgstream/internal/infrastructure/share"
	"bgstream/internal/infrastructure/telemetrysink"
	"bgstream/internal/infrastructure/transport"
	"bgstream/internal/usecase"
)

type App struct {
	cfg    config.Config
	logger *zerolog.Logger

	Metrics  *obs.Metrics
	Camera   *media.Surface
	Render   *media.Surface
	Stream   *usecase.StreamService
	Conn     *transport.Manager
	Recorder *usecase.Recorder
	Catalog  *usecase.CatalogService
	Reporter *usecase.Reporter
	Monitor  *httpapi.MonitorHub

	source  media.Source
	export  *telemetrysink.MQTT
	closers []func() error
	handler http.Handler
}

// New wires every component. Optional collaborators (MQTT export, process
// probe) that fail to start are reported and left out.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, Metrics: obs.NewMetrics()}
	a.Monitor = httpapi.NewMonitorHub(a.Metrics)

	store := memory.NewStore(cfg.RecordingsMax, cfg.RecordingsMaxBytes, cfg.ActivityMax)
	a.Reporter = usecase.NewReporter(store, logger, a.Monitor)
	var recordings usecase.RecordingRepository = store
	if cfg.CatalogDB != "" {
		cat, err := sqlite.Open(cfg.CatalogDB, cfg.RecordingsDir, cfg.RecordingsMax, cfg.RecordingsMaxBytes)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		recordings = cat
		a.closers = append(a.closers, cat.Close)
		logger.Info().Str("db", cfg.CatalogDB).Str("media", cfg.RecordingsDir).Msg("persistent recording catalog enabled")
	}
	a.Catalog = usecase.NewCatalogService(recordings, a.Reporter)

	var probe usecase.ResourceProbe
	if p, err := obs.NewProcessProbe(logger); err != nil {
		a.Reporter.Report(domain.KindCapability, "process probe unavailable", err)
	} else {
		probe = p
	}
	var sink usecase.TelemetrySink
	if cfg.MQTTBroker != "" {
		m, err := telemetrysink.Connect(ctx, telemetrysink.Config{Broker: cfg.MQTTBroker, Topic: cfg.MQTTTopic, ClientID: cfg.MQTTClientID}, logger)
		if err != nil {
			a.Reporter.Report(domain.KindConnection, "telemetry export disabled", err)
		} else {
			a.export = m
			sink = m
		}
	}
	agg := usecase.NewAggregator(cfg.TelemetryWindow, cfg.ScoreWindow, probe, sink, a.Metrics)

	codec := media.JPEGEncoder{Width: cfg.CaptureWidth, Height: cfg.CaptureHeight}
	a.Camera = media.NewSurface()
	a.Render = media.NewSurface()
	if cfg.SourceImage != "" {
		a.source = media.ImageSource{Path: cfg.SourceImage, FPS: cfg.CaptureFPS}
	} else {
		a.source = media.PatternSource{Width: cfg.CaptureWidth, Height: cfg.CaptureHeight, FPS: cfg.CaptureFPS}
	}

	a.Stream = usecase.NewStreamService(usecase.StreamDeps{
		Camera:    a.Camera,
		Render:    a.Render,
		Codec:     codec,
		Telemetry: agg,
		Reporter:  a.Reporter,
		Metrics:   a.Metrics,
		Notifier:  a.Monitor,
		Logger:    logger,
	}, usecase.StreamOptions{
		Settings: domain.Settings{
			Background:    cfg.Background,
			Quality:       domain.ParseQuality(cfg.Quality),
			EdgeSmoothing: cfg.EdgeSmoothing,
			Tier:          cfg.Tier,
		},
		RefreshInterval: cfg.RefreshInterval(),
		InFlightTimeout: cfg.InFlightTimeout,
		MaxSendFPS:      cfg.MaxSendFPS,
	})
	a.Conn = transport.NewManager(transport.Config{
		URL:         cfg.ServiceWSURL,
		InsecureTLS: cfg.InsecureTLS,
		Keepalive:   cfg.Keepalive,
		Reconnect: transport.ReconnectConfig{
			MaxRetries:    cfg.ReconnectMaxAttempts,
			RetryDelay:    cfg.ReconnectDelay,
			MaxRetryDelay: cfg.ReconnectMaxDelay,
		},
	}, a.Stream, logger, a.Metrics)
	a.Stream.SetTransport(a.Conn)

	a.Recorder = usecase.NewRecorder(usecase.RecorderDeps{
		Render: a.Render,
		NewSink: func() usecase.SegmentSink {
			return media.NewSegmentWriter(codec, domain.QualityHigh.EncodeLevel())
		},
		Catalog:  a.Catalog,
		Exporter: share.NewExporter(cfg.DownloadDir, cfg.CompressDownloads, logger),
		Reporter: a.Reporter,
		Metrics:  a.Metrics,
		Notifier: a.Monitor,
		Logger:   logger,
		Active:   a.Stream.Streaming,
		Link:     a.recordingLink,
	}, usecase.RecorderOptions{FPS: cfg.RecordingFPS, SegmentInterval: cfg.SegmentInterval})
	a.Stream.SetGiveUpHook(func() { a.finalizeRecording("give up") })

	deps := &httpapi.Deps{
		Cfg:      cfg,
		Logger:   logger,
		Metrics:  a.Metrics,
		Stream:   a.Stream,
		Recorder: a.Recorder,
		Catalog:  a.Catalog,
		Reporter: a.Reporter,
		Conn:     a.Conn,
		Render:   a.Render,
		Codec:    codec,
		Monitor:  a.Monitor,
		Export:   a.export,
	}
	if cfg.ServiceHTTPURL != "" {
		deps.Uploader = client.New(cfg.ServiceHTTPURL)
	}
	a.handler = httpapi.NewRouter(deps)
	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }

// BaseURL is the control API address as seen from this machine.
func (a *App) BaseURL() string {
	addr := a.cfg.Addr
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	if !strings.HasPrefix(addr, "http") {
		return "http://" + addr
	}
	return addr
}

func (a *App) recordingLink(r domain.Recording) string {
	return a.BaseURL() + "/api/recordings/" + r.ID
}

// RunSource feeds the camera surface until ctx ends. A failing source is a
// capability error; the session keeps running without new frames.
func (a *App) RunSource(ctx context.Context) {
	if err := a.source.Run(ctx, a.Camera); err != nil {
		a.Reporter.Report(domain.KindCapability, "capture source unavailable", err)
	}
}

// Run serves the control API and the capture source until ctx is cancelled,
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.RunSource(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.Addr).Msg("control API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.cfg.Autostart {
		if _, err := a.Stream.Start(gctx); err != nil {
			a.Reporter.Report(domain.KindConnection, "autostart failed", err)
		}
	}
	return g.Wait()
}

// finalizeRecording stops an active recording so it lands in the catalog.
func (a *App) finalizeRecording(reason string) {
	if !a.Recorder.Active() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Recorder.Stop(ctx)
	if err != nil && !errors.Is(err, usecase.ErrNoFrames) && !errors.Is(err, domain.ErrNotRecording) {
		a.logger.Warn().Err(err).Str("reason", reason).Msg("finalize recording")
	}
}

// Shutdown finalizes an active recording, ends the session and releases
// collaborators. It is safe to call more than once.
func (a *App) Shutdown() {
	a.finalizeRecording("shutdown")
	if a.Stream.Streaming() {
		_, _ = a.Stream.Stop()
	}
	a.Monitor.Close()
	if a.export != nil {
		a.export.Close()
		a.export = nil
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
