package domain

import "time"

// OutboundFrame is one encoded snapshot of the capture surface. It is sent at
// most once and never re-queued.
type OutboundFrame struct {
	Payload    []byte    `json:"-"`
	CapturedAt time.Time `json:"capturedAt"`
	Settings   Settings  `json:"settings"`
}

type Settings struct {
	Background    string  `json:"background"`
	Quality       Quality `json:"quality"`
	EdgeSmoothing float64 `json:"edgeSmoothing"`
	Tier          string  `json:"tier,omitempty"`
}
