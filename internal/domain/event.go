package domain

import "time"

// ErrorKind classifies entries of the activity feed.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindProtocol   ErrorKind = "protocol"
	KindProcessing ErrorKind = "processing"
	KindCapability ErrorKind = "capability"
	KindInfo       ErrorKind = "info"
)

type Activity struct {
	ID      string    `json:"id"`
	Ts      time.Time `json:"ts"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
