package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"bgstream/interfaces/go/client"
	"bgstream/internal/domain"
	"bgstream/internal/usecase"
)

// maxUploadBytes bounds background uploads proxied to the service.
const maxUploadBytes = 10 << 20

type connectionDTO struct {
	State      string `json:"state"`
	Reconnects uint64 `json:"reconnects"`
}

type sessionDTO struct {
	usecase.StreamStatus
	Connection *connectionDTO          `json:"connection,omitempty"`
	Recorder   *usecase.RecorderStatus `json:"recorder,omitempty"`
}

func (d *Deps) sessionStatus() sessionDTO {
	out := sessionDTO{StreamStatus: d.Stream.Status()}
	if d.Conn != nil {
		out.Connection = &connectionDTO{State: string(d.Conn.State()), Reconnects: d.Conn.Reconnects()}
	}
	if d.Recorder != nil {
		st := d.Recorder.Status()
		out.Recorder = &st
	}
	return out
}

func (d *Deps) handleSession(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, d.sessionStatus())
}

func (d *Deps) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess, err := d.Stream.Start(r.Context())
	if err != nil {
		writeDomainError(w, err, "SESSION_START_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSessionStop finalizes an active recording before the session ends.
func (d *Deps) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if d.Recorder != nil && d.Recorder.Active() {
		if _, err := d.Recorder.Stop(r.Context()); err != nil && !errors.Is(err, usecase.ErrNoFrames) && !errors.Is(err, domain.ErrNotRecording) {
			d.Logger.Warn().Err(err).Msg("httpapi: finalize recording on stop")
		}
	}
	sess, err := d.Stream.Stop()
	if err != nil {
		writeDomainError(w, err, "SESSION_STOP_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type settingsDTO struct {
	Quality       *string  `json:"quality,omitempty"`
	EdgeSmoothing *float64 `json:"edgeSmoothing,omitempty"`
}

// handleSettings reads or updates the per-frame settings; changes apply from the next frame.
func (d *Deps) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		var in settingsDTO
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid json", nil)
			return
		}
		if in.EdgeSmoothing != nil && (*in.EdgeSmoothing < 0 || *in.EdgeSmoothing > 1) {
			writeError(w, http.StatusBadRequest, "BAD_VALUE", "edgeSmoothing must be within [0,1]", nil)
			return
		}
		if in.Quality != nil {
			d.Stream.SetQuality(domain.ParseQuality(*in.Quality))
		}
		if in.EdgeSmoothing != nil {
			d.Stream.SetEdgeSmoothing(*in.EdgeSmoothing)
		}
	}
	writeJSON(w, http.StatusOK, d.Stream.Settings())
}

func (d *Deps) handleBackground(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		Background string `json:"background"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid json", nil)
		return
	}
	in.Background = strings.TrimSpace(in.Background)
	if in.Background == "" {
		writeError(w, http.StatusBadRequest, "BAD_VALUE", "background is required", nil)
		return
	}
	if err := d.Stream.ChangeBackground(in.Background); err != nil {
		writeDomainError(w, err, "BACKGROUND_FAILED")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (d *Deps) handleBackgrounds(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if d.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_SERVICE", "service REST endpoint not configured", nil)
		return
	}
	list, err := d.Uploader.ListBackgrounds(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleUpload proxies a multipart "file" to the service and, when connected,
// switches to the new background.
func (d *Deps) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if d.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_SERVICE", "service REST endpoint not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_UPLOAD", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()
	up, err := d.Uploader.UploadBackground(r.Context(), filepath.Base(hdr.Filename), file)
	if err != nil {
		d.Reporter.Report(domain.KindProcessing, "upload background", err)
		writeUpstreamError(w, err)
		return
	}
	applied := false
	if up.BackgroundID != "" {
		if err := d.Stream.ChangeBackground(up.BackgroundID); err == nil {
			applied = true
		} else if !errors.Is(err, domain.ErrNotConnected) {
			d.Reporter.Report(domain.KindConnection, "apply uploaded background", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"upload": up, "applied": applied})
}

// writeUpstreamError surfaces the service's detail verbatim.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", apiErr.Detail, map[string]any{"status": apiErr.Status})
		return
	}
	writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", err.Error(), nil)
}
