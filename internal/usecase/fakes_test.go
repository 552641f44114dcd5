package usecase

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bgstream/internal/domain"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// grayFrame is a 1x1 frame whose single pixel identifies it.
func grayFrame(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Pix[0] = v
	return img
}

type fakeSurface struct {
	mu  sync.Mutex
	img image.Image
	seq uint64
}

func (s *fakeSurface) Snapshot() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img, s.img != nil
}

func (s *fakeSurface) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *fakeSurface) Swap(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.seq++
	s.mu.Unlock()
}

func (s *fakeSurface) Reset() {
	s.mu.Lock()
	s.img = nil
	s.mu.Unlock()
}

// grayCodec encodes a frame as its identifying pixel.
type grayCodec struct{ failEncode bool }

func (c grayCodec) Encode(img image.Image, _ int) ([]byte, error) {
	if c.failEncode {
		return nil, errors.New("encode failed")
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, errors.New("unexpected image")
	}
	return []byte{g.Pix[0]}, nil
}

func (grayCodec) Decode(data []byte) (image.Image, error) {
	if len(data) != 1 {
		return nil, errors.New("bad frame")
	}
	return grayFrame(data[0]), nil
}

type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	sent        []domain.OutboundFrame
	backgrounds []string
	sendErr     error
	disconnects int
}

func (t *fakeTransport) Connect(context.Context) error {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.disconnects++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) Send(f domain.OutboundFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return domain.ErrNotConnected
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, f)
	return nil
}

func (t *fakeTransport) ChangeBackground(bg string, _ domain.Settings) error {
	t.mu.Lock()
	t.backgrounds = append(t.backgrounds, bg)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) payloads() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []byte
	for _, f := range t.sent {
		out = append(out, f.Payload...)
	}
	return out
}

type feed struct {
	mu    sync.Mutex
	items []domain.Activity
}

func (f *feed) AppendActivity(_ context.Context, a domain.Activity) error {
	f.mu.Lock()
	f.items = append(f.items, a)
	f.mu.Unlock()
	return nil
}

func (f *feed) ListActivity(_ context.Context, limit int) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.Activity(nil), f.items...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *feed) count(kind domain.ErrorKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.items {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

type recordingList struct {
	mu    sync.Mutex
	items []domain.Recording
}

func (l *recordingList) AddRecording(_ context.Context, r domain.Recording) ([]domain.Recording, error) {
	l.mu.Lock()
	l.items = append([]domain.Recording{r}, l.items...)
	l.mu.Unlock()
	return nil, nil
}

func (l *recordingList) GetRecording(_ context.Context, id string) (domain.Recording, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.items {
		if r.ID == id {
			return r, true, nil
		}
	}
	return domain.Recording{}, false, nil
}

func (l *recordingList) ListRecordings(context.Context, int, int) ([]domain.Recording, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Recording(nil), l.items...), len(l.items), nil
}

func (l *recordingList) DeleteRecording(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.items {
		if r.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (l *recordingList) RecordingStats(context.Context) (domain.CatalogStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.CatalogStats{Count: len(l.items)}, nil
}

// manualTickers hands out unbuffered channels in creation order. A send on
// one returns only once the owning loop has taken the tick, and the loop
// finishes handling it before accepting anything else.
type manualTickers struct {
	mu sync.Mutex
	ch []chan time.Time
}

func (m *manualTickers) factory(time.Duration) (<-chan time.Time, func()) {
	c := make(chan time.Time)
	m.mu.Lock()
	m.ch = append(m.ch, c)
	m.mu.Unlock()
	return c, func() {}
}

func (m *manualTickers) get(i int) chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch[i]
}

type fakeExporter struct {
	saved  []string
	shared []string
	err    error
}

func (e *fakeExporter) Save(_ context.Context, r domain.Recording) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.saved = append(e.saved, r.ID)
	return "/tmp/" + r.Filename(), nil
}

func (e *fakeExporter) Share(_ context.Context, _ domain.Recording, link string) error {
	if e.err != nil {
		return e.err
	}
	e.shared = append(e.shared, link)
	return nil
}
