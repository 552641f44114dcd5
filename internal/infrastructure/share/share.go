// Package share saves finalized recordings locally and hands them to the
// desktop.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/atotto/clipboard"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"bgstream/internal/domain"
	"bgstream/internal/usecase"
)

type Exporter struct {
	dir      string
	compress bool
	logger   *zerolog.Logger

	open func(path string) error
	clip func(text string) error
}

// NewExporter writes downloads under dir, gzip-compressed when compress is set.
func NewExporter(dir string, compress bool, logger *zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, compress: compress, logger: logger, open: openPath, clip: clipboard.WriteAll}
}

// Save writes the recording to the download directory and returns its path.
func (e *Exporter) Save(ctx context.Context, r domain.Recording) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	src, err := usecase.OpenRecording(r)
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := r.Filename()
	if e.compress {
		name += ".gz"
	}
	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := e.write(ctx, f, src, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	e.logger.Debug().Str("path", path).Bool("gzip", e.compress).Msg("share: saved")
	return path, nil
}

func (e *Exporter) write(ctx context.Context, dst io.Writer, src io.Reader, r domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.compress {
		_, err := io.Copy(dst, src)
		return err
	}
	zw, err := gzip.NewWriterLevel(dst, gzip.BestSpeed)
	if err != nil {
		return err
	}
	zw.Name = r.Filename()
	zw.ModTime = r.CreatedAt
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Share saves the recording and opens it with the platform handler. When no
// handler is available the reference link is copied to the clipboard.
func (e *Exporter) Share(ctx context.Context, r domain.Recording, link string) error {
	path, err := e.Save(ctx, r)
	if err != nil {
		return err
	}
	openErr := e.open(path)
	if openErr == nil {
		return nil
	}
	e.logger.Warn().Err(openErr).Str("path", path).Msg("share: platform opener unavailable, using clipboard")
	if link == "" {
		link = path
	}
	if err := e.clip(link); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrShareUnsupported, errors.Join(openErr, err))
	}
	return nil
}

func openPath(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	cmd.Stdout = nil
	cmd.Stderr = nil
	_, err := startDetached(cmd)
	return err
}

// startDetached starts cmd and reaps it in the background. The returned
// channel yields the exit result.
func startDetached(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, nil
}
