package usecase

import (
	"context"

	"bgstream/internal/domain"
)

// RecordingRepository stores finalized recordings newest-first. Add returns
// the entries evicted by the store's retention policy, if any.
type RecordingRepository interface {
	AddRecording(ctx context.Context, r domain.Recording) ([]domain.Recording, error)
	GetRecording(ctx context.Context, id string) (domain.Recording, bool, error)
	ListRecordings(ctx context.Context, limit, offset int) ([]domain.Recording, int, error)
	DeleteRecording(ctx context.Context, id string) error
	RecordingStats(ctx context.Context) (domain.CatalogStats, error)
}

// ActivityRepository is the bounded activity feed; the oldest entries are
// dropped once it is full.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, a domain.Activity) error
	ListActivity(ctx context.Context, limit int) ([]domain.Activity, error)
}
