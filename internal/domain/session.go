package domain

import "time"

type FrameCounters struct {
	Sent      int `json:"sent"`
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`
}

// Session is one continuous streaming attempt, from start to stop.
type Session struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	StoppedAt *time.Time    `json:"stoppedAt,omitempty"`
	Settings  Settings      `json:"settings"`
	Streaming bool          `json:"streaming"`
	Frames    FrameCounters `json:"frames"`
}
