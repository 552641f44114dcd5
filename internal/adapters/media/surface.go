package media

import (
	"image"
	"sync"
	"time"
)

// Surface holds the latest frame of a live feed. Images handed to Swap must
// not be mutated afterwards; readers share them without copying.
type Surface struct {
	mu      sync.RWMutex
	img     image.Image
	seq     uint64
	updated time.Time
}

func NewSurface() *Surface { return &Surface{} }

func (s *Surface) Swap(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.seq++
	s.updated = time.Now()
	s.mu.Unlock()
}

// Snapshot returns the current frame and whether the surface is ready, i.e.
// it has delivered at least one frame with a non-empty size.
func (s *Surface) Snapshot() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil || s.img.Bounds().Empty() {
		return nil, false
	}
	return s.img, true
}

func (s *Surface) Ready() bool {
	_, ok := s.Snapshot()
	return ok
}

// Seq increments on every Swap.
func (s *Surface) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

func (s *Surface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *Surface) Reset() {
	s.mu.Lock()
	s.img = nil
	s.updated = time.Time{}
	s.mu.Unlock()
}
