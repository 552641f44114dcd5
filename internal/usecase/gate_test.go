package usecase

import (
	"testing"
	"time"
)

func TestGateSingleHold(t *testing.T) {
	g := NewGate(0)
	now := time.Now()
	if !g.TryAcquire(now) {
		t.Fatalf("first acquire failed")
	}
	if g.TryAcquire(now) {
		t.Fatalf("second acquire succeeded")
	}
	ok, since := g.Release(time.Time{})
	if !ok || !since.Equal(now) {
		t.Fatalf("release = %v, %v", ok, since)
	}
	if ok, _ := g.Release(time.Time{}); ok {
		t.Fatalf("release of a free gate reported a hold")
	}
}

func TestGateExpiryMatchesEchoedReplies(t *testing.T) {
	g := NewGate(time.Second)
	t0 := time.Now()
	g.TryAcquire(t0)
	if g.Expire(t0.Add(500 * time.Millisecond)) {
		t.Fatalf("expired early")
	}
	if !g.Expire(t0.Add(2 * time.Second)) {
		t.Fatalf("did not expire")
	}
	t1 := t0.Add(2 * time.Second)
	g.TryAcquire(t1)
	if ok, _ := g.Release(time.UnixMilli(t0.UnixMilli())); ok {
		t.Fatalf("reply for the expired frame released the current hold")
	}
	if ok, _ := g.Release(time.UnixMilli(t1.UnixMilli())); !ok {
		t.Fatalf("reply for the current hold ignored")
	}
}

func TestGateUnansweredHoldOwesNothing(t *testing.T) {
	g := NewGate(time.Second)
	t0 := time.Now()
	g.TryAcquire(t0)
	g.Expire(t0.Add(2 * time.Second))
	for i := 1; i <= 3; i++ {
		g.TryAcquire(t0.Add(time.Duration(i+2) * time.Second))
		if ok, _ := g.Release(time.Time{}); !ok {
			t.Fatalf("reply %d did not clear the hold", i)
		}
	}
}

func TestGateNoTimeout(t *testing.T) {
	g := NewGate(0)
	t0 := time.Now()
	g.TryAcquire(t0)
	if g.Expire(t0.Add(time.Hour)) {
		t.Fatalf("gate without timeout expired")
	}
}

func TestGateClear(t *testing.T) {
	g := NewGate(time.Millisecond)
	g.TryAcquire(time.Now())
	g.Clear()
	if g.Busy() {
		t.Fatalf("clear left gate busy")
	}
}

func TestGateAbort(t *testing.T) {
	g := NewGate(0)
	g.TryAcquire(time.Now())
	g.Abort()
	if g.Busy() {
		t.Fatalf("abort left gate busy")
	}
}
