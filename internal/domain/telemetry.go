package domain

import (
	"math"
	"time"
)

type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	FPS        float64   `json:"fps"`
	LatencyMs  float64   `json:"latencyMs"`
	CPUPct     float64   `json:"cpuPct"`
	MemPct     float64   `json:"memPct"`
	FrameDrops int       `json:"frameDrops"`
}

// Score is the composite 0-100 quality signal and its four sub-scores.
type Score struct {
	Total     float64 `json:"total"`
	Grade     string  `json:"grade"`
	FPS       float64 `json:"fps"`
	Latency   float64 `json:"latency"`
	CPU       float64 `json:"cpu"`
	Stability float64 `json:"stability"`
}

const subScoreMax = 25.0

// ComputeScore scores a telemetry window. An empty window scores zero with grade D.
func ComputeScore(window []Sample) Score {
	if len(window) == 0 {
		return Score{Grade: Grade(0)}
	}
	var fps, lat, cpu, drops float64
	for _, s := range window {
		fps += s.FPS
		lat += s.LatencyMs
		cpu += s.CPUPct
		drops += float64(s.FrameDrops)
	}
	n := float64(len(window))
	fps, lat, cpu, drops = fps/n, lat/n, cpu/n, drops/n

	sc := Score{
		FPS:       clampSub(math.Min(fps/30, 1) * subScoreMax),
		Latency:   clampSub(math.Max(0, 1-lat/100) * subScoreMax),
		CPU:       clampSub(math.Max(0, 1-cpu/100) * subScoreMax),
		Stability: clampSub(stability(fps, drops) * subScoreMax),
	}
	sc.Total = sc.FPS + sc.Latency + sc.CPU + sc.Stability
	sc.Grade = Grade(sc.Total)
	return sc
}

// stability is the fraction of attempted frames per second that were not dropped.
func stability(fps, drops float64) float64 {
	if fps+drops <= 0 {
		return 1
	}
	return 1 - drops/(fps+drops)
}

func clampSub(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > subScoreMax {
		return subScoreMax
	}
	return v
}

func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	default:
		return "D"
	}
}
