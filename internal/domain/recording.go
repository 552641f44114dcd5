package domain

import (
	"fmt"
	"time"
)

const MimeMJPEG = "video/x-motion-jpeg"

// Recording is a finalized, immutable media artifact.
type Recording struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Duration  int       `json:"duration"` // seconds
	Size      int64     `json:"size"`
	SizeHuman string    `json:"sizeHuman"`
	CreatedAt time.Time `json:"createdAt"`
	MimeType  string    `json:"mimeType"`
	Path      string    `json:"path,omitempty"`
	Data      []byte    `json:"-"`
}

// Filename is the name used when the recording is saved locally.
func (r Recording) Filename() string { return r.Name + ".mjpeg" }

type CatalogStats struct {
	Count      int     `json:"count"`
	TotalBytes int64   `json:"totalBytes"`
	TotalHuman string  `json:"totalHuman"`
	Capacity   float64 `json:"capacity"` // display hint, count / CapacityHint
}

const CapacityHint = 10

func NewCatalogStats(count int, total int64) CatalogStats {
	return CatalogStats{
		Count:      count,
		TotalBytes: total,
		TotalHuman: FormatSize(total),
		Capacity:   float64(count) / CapacityHint,
	}
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count with base-1024 units and two decimals.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, sizeUnits[i])
}

// RecordingName derives the display name from the finalize time.
func RecordingName(t time.Time) string {
	return "recording-" + t.Format("2006-01-02-15-04-05")
}
