package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"bgstream/internal/domain"
	"bgstream/pkg/shared/id"
)

// Reporter is the single sink for caught errors and notable events: it logs,
// appends to the activity feed and notifies observers. It never fails.
type Reporter struct {
	feed     ActivityRepository
	logger   *zerolog.Logger
	notifier Notifier
}

func NewReporter(feed ActivityRepository, logger *zerolog.Logger, n Notifier) *Reporter {
	if n == nil {
		n = nopNotifier{}
	}
	return &Reporter{feed: feed, logger: logger, notifier: n}
}

func (r *Reporter) Report(kind domain.ErrorKind, msg string, err error) {
	text := msg
	if err != nil {
		text = msg + ": " + err.Error()
	}
	ev := r.logger.Warn()
	if kind == domain.KindInfo {
		ev = r.logger.Info()
	}
	ev.Str("kind", string(kind)).Err(err).Msg(msg)
	a := domain.Activity{ID: id.New(), Ts: time.Now().UTC(), Kind: kind, Message: text}
	if r.feed != nil {
		_ = r.feed.AppendActivity(context.Background(), a)
	}
	r.notifier.Notify("activity", a.ID, string(kind))
}

func (r *Reporter) Info(msg string) { r.Report(domain.KindInfo, msg, nil) }

func (r *Reporter) Recent(ctx context.Context, limit int) ([]domain.Activity, error) {
	if r.feed == nil {
		return nil, nil
	}
	return r.feed.ListActivity(ctx, limit)
}

// CatalogService fronts the recording repository.
type CatalogService struct {
	recordings RecordingRepository
	reporter   *Reporter
}

func NewCatalogService(r RecordingRepository, rep *Reporter) *CatalogService {
	return &CatalogService{recordings: r, reporter: rep}
}

func (c *CatalogService) Add(ctx context.Context, r domain.Recording) error {
	evicted, err := c.recordings.AddRecording(ctx, r)
	if err != nil {
		return err
	}
	for _, e := range evicted {
		c.reporter.Info(fmt.Sprintf("recording %s evicted from catalog (%s)", e.Name, e.SizeHuman))
	}
	return nil
}

func (c *CatalogService) Get(ctx context.Context, id string) (domain.Recording, error) {
	r, ok, err := c.recordings.GetRecording(ctx, id)
	if err != nil {
		return domain.Recording{}, err
	}
	if !ok {
		return domain.Recording{}, domain.ErrNotFound
	}
	return r, nil
}

func (c *CatalogService) List(ctx context.Context, limit, offset int) ([]domain.Recording, int, error) {
	return c.recordings.ListRecordings(ctx, limit, offset)
}

func (c *CatalogService) Delete(ctx context.Context, id string) error {
	return c.recordings.DeleteRecording(ctx, id)
}

func (c *CatalogService) Stats(ctx context.Context) (domain.CatalogStats, error) {
	return c.recordings.RecordingStats(ctx)
}

// OpenRecording returns the media of a recording, from memory or from disk.
func OpenRecording(r domain.Recording) (io.ReadCloser, error) {
	if r.Data != nil {
		return io.NopCloser(bytes.NewReader(r.Data)), nil
	}
	if r.Path == "" {
		return nil, errors.New("recording has no media")
	}
	return os.Open(r.Path)
}
