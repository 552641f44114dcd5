package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"bgstream/internal/domain"
	"bgstream/internal/usecase"
)

func (d *Deps) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	items, total, err := d.Catalog.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "RECORDINGS_LIST_FAILED", err.Error(), nil)
		return
	}
	stats, err := d.Catalog.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "RECORDINGS_STATS_FAILED", err.Error(), nil)
		return
	}
	if items == nil {
		items = []domain.Recording{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "stats": stats})
}

func (d *Deps) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := d.Recorder.Start(); err != nil {
		writeDomainError(w, err, "RECORDING_START_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, d.Recorder.Status())
}

func (d *Deps) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	rec, err := d.Recorder.Stop(r.Context())
	if err != nil {
		writeDomainError(w, err, "RECORDING_STOP_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecordingByID serves /api/recordings/{id} and /api/recordings/{id}/share.
func (d *Deps) handleRecordingByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/recordings/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "share") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
		return
	}
	if len(parts) == 2 {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if err := d.Recorder.Share(r.Context(), id); err != nil {
			writeDomainError(w, err, "SHARE_FAILED")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("save") == "1" {
			path, err := d.Recorder.Download(r.Context(), id)
			if err != nil {
				writeDomainError(w, err, "DOWNLOAD_FAILED")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"path": path})
			return
		}
		d.streamRecording(w, r, id)
	case http.MethodDelete:
		if err := d.Catalog.Delete(r.Context(), id); err != nil {
			writeDomainError(w, err, "RECORDING_DELETE_FAILED")
			return
		}
		d.Monitor.Notify("recording_deleted", id, "")
		w.WriteHeader(http.StatusNoContent)
	default:
		allowMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (d *Deps) streamRecording(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := d.Catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "RECORDING_GET_FAILED")
		return
	}
	body, err := usecase.OpenRecording(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "RECORDING_OPEN_FAILED", err.Error(), nil)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.Filename()+`"`)
	if _, err := io.Copy(w, body); err != nil {
		d.Logger.Debug().Err(err).Str("id", id).Msg("httpapi: recording stream interrupted")
	}
}
