package memory

import (
	"context"
	"sync"

	"bgstream/internal/domain"
)

// Store keeps the recording catalog and the activity feed in process memory.
type Store struct {
	mu sync.RWMutex
	// newest first
	order []string
	items map[string]domain.Recording
	bytes int64

	maxRecordings int
	maxBytes      int64

	activity    []domain.Activity
	maxActivity int
}

// NewStore returns a store holding at most maxRecordings recordings totalling
// at most maxBytes (zero disables the byte cap) and the last maxActivity
// activity entries.
func NewStore(maxRecordings int, maxBytes int64, maxActivity int) *Store {
	if maxRecordings <= 0 {
		maxRecordings = domain.CapacityHint
	}
	if maxActivity <= 0 {
		maxActivity = 100
	}
	return &Store{
		order:         make([]string, 0, maxRecordings),
		items:         make(map[string]domain.Recording, maxRecordings),
		maxRecordings: maxRecordings,
		maxBytes:      maxBytes,
		activity:      make([]domain.Activity, 0, maxActivity),
		maxActivity:   maxActivity,
	}
}

// RecordingRepository
func (s *Store) AddRecording(ctx context.Context, r domain.Recording) ([]domain.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[r.ID] = r
	s.order = append([]string{r.ID}, s.order...)
	s.bytes += r.Size
	return s.evictLocked(), nil
}

// evictLocked drops the oldest entries until both caps hold. The newest
// entry is always kept, even when it alone exceeds the byte cap.
func (s *Store) evictLocked() []domain.Recording {
	var evicted []domain.Recording
	for len(s.order) > 1 && (len(s.order) > s.maxRecordings || (s.maxBytes > 0 && s.bytes > s.maxBytes)) {
		oldest := s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]
		r := s.items[oldest]
		delete(s.items, oldest)
		s.bytes -= r.Size
		evicted = append(evicted, r)
	}
	return evicted
}

func (s *Store) GetRecording(ctx context.Context, id string) (domain.Recording, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	return r, ok, nil
}

func (s *Store) ListRecordings(ctx context.Context, limit, offset int) ([]domain.Recording, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.order)
	start := max(offset, 0)
	if start > total {
		start = total
	}
	end := start + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]domain.Recording, 0, end-start)
	for _, id := range s.order[start:end] {
		out = append(out, s.items[id])
	}
	return out, total, nil
}

func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.items, id)
	s.bytes -= r.Size
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) RecordingStats(ctx context.Context) (domain.CatalogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.NewCatalogStats(len(s.order), s.bytes), nil
}

// ActivityRepository
func (s *Store) AppendActivity(ctx context.Context, a domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.activity) >= s.maxActivity {
		// drop-from-head policy
		s.activity = s.activity[1:]
	}
	s.activity = append(s.activity, a)
	return nil
}

// ListActivity returns up to limit of the most recent entries, newest first.
func (s *Store) ListActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.activity)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Activity, 0, n)
	for i := len(s.activity) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}
