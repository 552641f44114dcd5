package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"
	"time"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func TestSurfaceReadiness(t *testing.T) {
	s := NewSurface()
	if s.Ready() {
		t.Fatalf("fresh surface must not be ready")
	}
	s.Swap(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if s.Ready() {
		t.Fatalf("zero-sized frame must not make the surface ready")
	}
	s.Swap(solid(4, 3))
	if !s.Ready() {
		t.Fatalf("surface should be ready after a real frame")
	}
	if w, h := s.Size(); w != 4 || h != 3 {
		t.Fatalf("unexpected size %dx%d", w, h)
	}
	if s.Seq() != 2 {
		t.Fatalf("seq should count swaps, got %d", s.Seq())
	}
	s.Reset()
	if s.Ready() {
		t.Fatalf("reset surface must not be ready")
	}
}

func TestJPEGEncoderScalesAndRoundTrips(t *testing.T) {
	enc := JPEGEncoder{Width: 32, Height: 24}
	b, err := enc.Encode(solid(64, 48), 80)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(b, []byte{0xff, 0xd8}) {
		t.Fatalf("not a jpeg")
	}
	img, err := enc.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Fatalf("scaling not applied: %v", img.Bounds())
	}
}

func TestJPEGEncoderQualityAffectsSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(x ^ y), A: 255})
		}
	}
	enc := JPEGEncoder{}
	lo, _ := enc.Encode(img, 10)
	hi, _ := enc.Encode(img, 95)
	if len(hi) <= len(lo) {
		t.Fatalf("higher quality should produce larger output: %d <= %d", len(hi), len(lo))
	}
}

func TestSegmentWriterFinalize(t *testing.T) {
	w := NewSegmentWriter(JPEGEncoder{}, 70)
	for seg := 0; seg < 3; seg++ {
		for i := 0; i < 2; i++ {
			if err := w.WriteFrame(solid(8, 8)); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		if w.Cut() == 0 {
			t.Fatalf("segment %d empty", seg)
		}
	}
	if w.Cut() != 0 {
		t.Fatalf("empty cut should be a no-op")
	}
	if w.Segments() != 3 || w.Frames() != 6 {
		t.Fatalf("unexpected segments=%d frames=%d", w.Segments(), w.Frames())
	}
	out := w.Finalize()
	if len(out) == 0 || bytes.Count(out, []byte{0xff, 0xd8, 0xff}) != 6 {
		t.Fatalf("finalized stream should hold 6 jpegs, got %d bytes", len(out))
	}
	if w.Segments() != 0 || w.Frames() != 0 {
		t.Fatalf("writer not reset")
	}
}

func TestPatternSourceFeedsSurface(t *testing.T) {
	s := NewSurface()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- PatternSource{Width: 64, Height: 48, FPS: 100}.Run(ctx, s) }()
	deadline := time.Now().Add(2 * time.Second)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if w, h := s.Size(); w != 64 || h != 48 {
		t.Fatalf("unexpected pattern size %dx%d", w, h)
	}
}
