package domain

import (
	"testing"
	"time"
)

func TestComputeScorePerfectWindow(t *testing.T) {
	w := make([]Sample, 10)
	for i := range w {
		w[i] = Sample{Timestamp: time.Unix(int64(i), 0), FPS: 30}
	}
	sc := ComputeScore(w)
	if sc.Total != 100 || sc.Grade != "A+" {
		t.Fatalf("want 100/A+, got %v/%s", sc.Total, sc.Grade)
	}
}

func TestComputeScoreSubScoresClamped(t *testing.T) {
	sc := ComputeScore([]Sample{{FPS: 120, LatencyMs: 400, CPUPct: 250}})
	if sc.FPS != 25 {
		t.Fatalf("fps sub-score not capped: %v", sc.FPS)
	}
	if sc.Latency != 0 || sc.CPU != 0 {
		t.Fatalf("latency/cpu sub-scores should floor at 0: %v %v", sc.Latency, sc.CPU)
	}
}

func TestComputeScoreStabilityFromDrops(t *testing.T) {
	sc := ComputeScore([]Sample{{FPS: 15, FrameDrops: 15}})
	if sc.Stability != 12.5 {
		t.Fatalf("want stability 12.5, got %v", sc.Stability)
	}
}

func TestComputeScoreEmpty(t *testing.T) {
	sc := ComputeScore(nil)
	if sc.Total != 0 || sc.Grade != "D" {
		t.Fatalf("unexpected empty score: %+v", sc)
	}
}

func TestGradeBoundaries(t *testing.T) {
	cases := map[float64]string{100: "A+", 90: "A+", 89.9: "A", 80: "A", 70: "B", 60: "C", 59.99: "D", 0: "D"}
	for in, want := range cases {
		if got := Grade(in); got != want {
			t.Fatalf("Grade(%v)=%s want %s", in, got, want)
		}
	}
}
