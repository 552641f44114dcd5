package httpapi

import (
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"bgstream/internal/domain"
)

func (d *Deps) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	out := map[string]any{"telemetry": d.Stream.Status().Telemetry}
	if d.Export != nil {
		out["export"] = d.Export.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Deps) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	items, err := d.Reporter.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ACTIVITY_LIST_FAILED", err.Error(), nil)
		return
	}
	if items == nil {
		items = []domain.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleSnapshot encodes the current render surface as JPEG at the session quality.
// ?download=1 marks it as an attachment.
func (d *Deps) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	img, ok := d.Render.Snapshot()
	if !ok {
		writeDomainError(w, domain.ErrSurfaceNotReady, "SNAPSHOT_FAILED")
		return
	}
	data, err := d.Codec.Encode(img, d.Stream.Settings().Quality.EncodeLevel())
	if err != nil {
		d.Reporter.Report(domain.KindProcessing, "encode snapshot", err)
		writeError(w, http.StatusInternalServerError, "SNAPSHOT_FAILED", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Get("download") == "1" {
		name := "snapshot-" + time.Now().UTC().Format("2006-01-02-15-04-05") + ".jpg"
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	_, _ = w.Write(data)
}

// handleEvents streams monitor events over SSE, plus a telemetry frame every second.
func (d *Deps) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "stream unsupported", nil)
		return
	}

	sub := d.Monitor.Subscribe()
	defer d.Monitor.Unsubscribe(sub)
	enc := json.NewEncoder(w)
	_ = writeSSE(w, flusher, "session", d.sessionStatus(), enc)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			_ = writeSSE(w, flusher, ev.Type, ev, enc)
		case <-tick.C:
			if d.Stream.Streaming() {
				_ = writeSSE(w, flusher, "telemetry", d.Stream.Status().Telemetry, enc)
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any, enc *jsoniter.Encoder) error {
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	// Encode terminates the data line
	if err := enc.Encode(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n"))
	flusher.Flush()
	return err
}
