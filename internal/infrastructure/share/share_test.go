package share

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"bgstream/internal/domain"
)

func testRecording() domain.Recording {
	return domain.Recording{
		ID:        "01HX",
		Name:      "recording-2024-05-01-10-00-00",
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Data:      []byte("\xff\xd8frame\xff\xd9"),
		Size:      9,
	}
}

func newTestExporter(t *testing.T, compress bool) *Exporter {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return NewExporter(t.TempDir(), compress, &logger)
}

func TestSavePlain(t *testing.T) {
	e := newTestExporter(t, false)
	path, err := e.Save(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "recording-2024-05-01-10-00-00.mjpeg" {
		t.Fatalf("path = %s", path)
	}
	b, _ := os.ReadFile(path)
	if !bytes.Equal(b, testRecording().Data) {
		t.Fatalf("content = %q", b)
	}
}

func TestSaveCompressed(t *testing.T) {
	e := newTestExporter(t, true)
	path, err := e.Save(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(path, ".mjpeg.gz") {
		t.Fatalf("path = %s", path)
	}
	f, _ := os.Open(path)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	b, _ := io.ReadAll(zr)
	if !bytes.Equal(b, testRecording().Data) || zr.Name != "recording-2024-05-01-10-00-00.mjpeg" {
		t.Fatalf("content = %q name = %q", b, zr.Name)
	}
}

func TestSaveFromDisk(t *testing.T) {
	e := newTestExporter(t, false)
	src := filepath.Join(t.TempDir(), "media.mjpeg")
	_ = os.WriteFile(src, []byte("ondisk"), 0o600)
	r := testRecording()
	r.Data = nil
	r.Path = src
	path, err := e.Save(context.Background(), r)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if b, _ := os.ReadFile(path); string(b) != "ondisk" {
		t.Fatalf("content = %q", b)
	}
}

func TestShareOpensFile(t *testing.T) {
	e := newTestExporter(t, false)
	var opened, copied string
	e.open = func(p string) error { opened = p; return nil }
	e.clip = func(s string) error { copied = s; return nil }
	if err := e.Share(context.Background(), testRecording(), "http://x/api/recordings/01HX"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if opened == "" || copied != "" {
		t.Fatalf("opened = %q copied = %q", opened, copied)
	}
}

func TestShareFallsBackToClipboard(t *testing.T) {
	e := newTestExporter(t, false)
	var copied string
	e.open = func(string) error { return errors.New("xdg-open: not found") }
	e.clip = func(s string) error { copied = s; return nil }
	if err := e.Share(context.Background(), testRecording(), "http://x/api/recordings/01HX"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if copied != "http://x/api/recordings/01HX" {
		t.Fatalf("copied = %q", copied)
	}
}

func TestShareUnsupported(t *testing.T) {
	e := newTestExporter(t, false)
	e.open = func(string) error { return errors.New("no opener") }
	e.clip = func(string) error { return errors.New("no clipboard") }
	err := e.Share(context.Background(), testRecording(), "")
	if !errors.Is(err, domain.ErrShareUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenerProcessIsReaped(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	done, err := startDetached(exec.Command(bin))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("opener process never reaped")
	}
}
