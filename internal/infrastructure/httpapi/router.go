package httpapi

import (
    "context"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"

    "bgstream/interfaces/go/client"
    "bgstream/internal/infrastructure/config"
    obs "bgstream/internal/infrastructure/observability"
    "bgstream/internal/infrastructure/telemetrysink"
    "bgstream/internal/infrastructure/transport"
    "bgstream/internal/usecase"
)

// Uploader is the inference service's REST surface.
type Uploader interface {
    UploadBackground(ctx context.Context, filename string, r io.Reader) (client.Upload, error)
    ListBackgrounds(ctx context.Context) (client.Backgrounds, error)
}

// Connection exposes the transport state for status endpoints.
type Connection interface {
    State() transport.State
    Reconnects() uint64
}

type Deps struct {
    Cfg      config.Config
    Logger   *zerolog.Logger
    Metrics  *obs.Metrics
    Stream   *usecase.StreamService
    Recorder *usecase.Recorder
    Catalog  *usecase.CatalogService
    Reporter *usecase.Reporter
    Uploader Uploader
    Conn     Connection
    Render   usecase.Surface
    Codec    usecase.FrameCodec
    Monitor  *MonitorHub
    // optional
    Export *telemetrysink.MQTT
}

func NewRouter(d *Deps) http.Handler {
    return withCORS(d.Cfg, buildBaseMux(d))
}

func buildBaseMux(d *Deps) *http.ServeMux {
    mux := http.NewServeMux()

    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("/readyz", d.handleReady)

    mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))

    mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
        b := obs.Build()
        writeJSON(w, http.StatusOK, map[string]any{
            "name":    "bgstream",
            "version": b.Version,
            "commit":  b.Commit,
            "date":    b.Date,
            "time":    time.Now().UTC(),
        })
    })

    // streaming session
    mux.HandleFunc("/api/session", d.handleSession)
    mux.HandleFunc("/api/session/start", d.handleSessionStart)
    mux.HandleFunc("/api/session/stop", d.handleSessionStop)
    mux.HandleFunc("/api/settings", d.handleSettings)
    mux.HandleFunc("/api/background", d.handleBackground)
    mux.HandleFunc("/api/backgrounds", d.handleBackgrounds)
    mux.HandleFunc("/api/backgrounds/upload", d.handleUpload)

    mux.HandleFunc("/api/telemetry", d.handleTelemetry)
    mux.HandleFunc("/api/activity", d.handleActivity)
    mux.HandleFunc("/api/snapshot", d.handleSnapshot)
    mux.HandleFunc("/api/events", d.handleEvents)

    // recordings; /api/recordings/{id}[/share] shares the prefix handler with start/stop
    mux.HandleFunc("/api/recordings", d.handleListRecordings)
    mux.HandleFunc("/api/recordings/", func(w http.ResponseWriter, r *http.Request) {
        switch strings.TrimPrefix(r.URL.Path, "/api/recordings/") {
        case "start":
            d.handleRecordingStart(w, r)
        case "stop":
            d.handleRecordingStop(w, r)
        default:
            d.handleRecordingByID(w, r)
        }
    })

    mux.HandleFunc("/api/monitor/ws", d.Monitor.HandleWS)

    return mux
}

// handleReady fails once the transport has given up reconnecting.
func (d *Deps) handleReady(w http.ResponseWriter, r *http.Request) {
    if d.Conn != nil && d.Conn.State() == transport.StateGaveUp {
        writeError(w, http.StatusServiceUnavailable, "GAVE_UP", "inference service unreachable", nil)
        return
    }
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte("ready"))
}

func withCORS(cfg config.Config, h http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
        w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        h.ServeHTTP(w, r)
    })
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
    for _, m := range methods {
        if r.Method == m {
            return true
        }
    }
    w.Header().Set("Allow", strings.Join(methods, ", "))
    writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
    return false
}
