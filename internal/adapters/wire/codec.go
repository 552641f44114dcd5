package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"bgstream/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrEmpty       = errors.New("empty message")
	ErrUnknownType = errors.New("unknown message type")
)

type outboundSettings struct {
	Background    string  `json:"background,omitempty"`
	Quality       string  `json:"quality"`
	EdgeSmoothing float64 `json:"edgeSmoothing"`
	Tier          string  `json:"tier,omitempty"`
}

type frameMessage struct {
	Type      string           `json:"type"`
	Data      string           `json:"data"`
	Timestamp int64            `json:"timestamp"`
	Settings  outboundSettings `json:"settings"`
}

type controlMessage struct {
	Type       string           `json:"type"`
	Background string           `json:"background"`
	Settings   outboundSettings `json:"settings"`
}

// EncodeFrame renders a frame as one text message: base64 payload, ms-epoch timestamp, settings.
func EncodeFrame(f domain.OutboundFrame) ([]byte, error) {
	return json.Marshal(frameMessage{
		Type:      "frame",
		Data:      base64.StdEncoding.EncodeToString(f.Payload),
		Timestamp: f.CapturedAt.UnixMilli(),
		Settings:  toWire(f.Settings),
	})
}

func EncodeChangeBackground(background string, s domain.Settings) ([]byte, error) {
	ws := toWire(s)
	ws.Background = ""
	ws.Tier = ""
	return json.Marshal(controlMessage{Type: "change_background", Background: background, Settings: ws})
}

func EncodePing() []byte { return []byte(`{"type":"ping"}`) }

func toWire(s domain.Settings) outboundSettings {
	return outboundSettings{
		Background:    s.Background,
		Quality:       string(s.Quality),
		EdgeSmoothing: s.EdgeSmoothing,
		Tier:          s.Tier,
	}
}

// inbound is the superset of fields any service message may carry.
type inbound struct {
	Type       string   `json:"type"`
	Data       string   `json:"data"`
	Background string   `json:"background"`
	Timestamp  int64    `json:"timestamp"`
	Success    *bool    `json:"success"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail"`
	FPS        *float64 `json:"fps"`
	Latency    *float64 `json:"latency"`
	LatencyMs  *float64 `json:"latencyMs"`
	CPU        *float64 `json:"cpu"`
	CPUUsage   *float64 `json:"cpuUsage"`
	Memory     *float64 `json:"memory"`
	MemUsage   *float64 `json:"memoryUsage"`
	FrameDrops *int     `json:"frameDrops"`
}

// Decode parses one service message into its variant. Any failure leaves the
// caller with nothing to apply.
func Decode(raw []byte) (domain.InboundMessage, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, ErrEmpty
	}
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch domain.MessageKind(in.Type) {
	case domain.KindProcessedFrame:
		data, err := decodeImage(in.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFramePayload, err)
		}
		pf := domain.ProcessedFrame{Data: data, Background: in.Background}
		if in.Timestamp > 0 {
			pf.CapturedAt = time.UnixMilli(in.Timestamp)
		}
		return pf, nil
	case domain.KindBackgroundChanged:
		ok := true
		if in.Success != nil {
			ok = *in.Success
		}
		return domain.BackgroundChanged{Background: in.Background, Success: ok}, nil
	case domain.KindError:
		msg := in.Message
		if msg == "" {
			msg = in.Detail
		}
		return domain.ServiceError{Message: msg}, nil
	case domain.KindPerformanceUpdate:
		return domain.PerformanceUpdate{
			FPS:        in.FPS,
			LatencyMs:  firstNonNil(in.LatencyMs, in.Latency),
			CPUPct:     firstNonNil(in.CPU, in.CPUUsage),
			MemPct:     firstNonNil(in.Memory, in.MemUsage),
			FrameDrops: in.FrameDrops,
		}, nil
	case domain.KindPong:
		return domain.Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func firstNonNil(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
