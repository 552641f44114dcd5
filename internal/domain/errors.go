package domain

import "errors"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotStreaming     = errors.New("session is not streaming")
	ErrSurfaceNotReady  = errors.New("surface not ready")
	ErrRecordingActive  = errors.New("a recording is already active")
	ErrNotRecording     = errors.New("no active recording")
	ErrShareUnsupported = errors.New("share is not supported on this platform")
	ErrNotFound         = errors.New("not found")
	ErrGaveUp           = errors.New("reconnect attempts exhausted")
	// ErrFramePayload marks a processed_frame whose image payload could not be read.
	ErrFramePayload = errors.New("unreadable processed frame payload")
)
