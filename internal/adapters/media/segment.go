package media

import (
	"bytes"
	"image"
)

// SegmentWriter accumulates JPEG frames into ordered segments and joins them
// into a motion-JPEG stream on Finalize. It is owned by a single goroutine.
type SegmentWriter struct {
	enc      JPEGEncoder
	quality  int
	cur      bytes.Buffer
	segments [][]byte
	frames   int
}

func NewSegmentWriter(enc JPEGEncoder, quality int) *SegmentWriter {
	return &SegmentWriter{enc: enc, quality: quality}
}

func (w *SegmentWriter) WriteFrame(img image.Image) error {
	b, err := w.enc.Encode(img, w.quality)
	if err != nil {
		return err
	}
	w.cur.Write(b)
	w.frames++
	return nil
}

// Cut closes the current segment. Empty segments are not kept.
func (w *SegmentWriter) Cut() int {
	n := w.cur.Len()
	if n == 0 {
		return 0
	}
	seg := make([]byte, n)
	copy(seg, w.cur.Bytes())
	w.segments = append(w.segments, seg)
	w.cur.Reset()
	return n
}

func (w *SegmentWriter) Segments() int { return len(w.segments) }

func (w *SegmentWriter) Frames() int { return w.frames }

// Finalize cuts the pending segment and returns all segments concatenated in
// order. The writer is empty afterwards.
func (w *SegmentWriter) Finalize() []byte {
	w.Cut()
	total := 0
	for _, s := range w.segments {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range w.segments {
		out = append(out, s...)
	}
	w.Reset()
	return out
}

func (w *SegmentWriter) Reset() {
	w.cur.Reset()
	w.segments = nil
	w.frames = 0
}
