package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Source feeds a live surface until the context ends.
type Source interface {
	Run(ctx context.Context, dst *Surface) error
}

// PatternSource synthesizes a moving test pattern with a frame counter overlay.
// It stands in for a camera when no device is attached.
type PatternSource struct {
	Width  int
	Height int
	FPS    int
}

func (p PatternSource) Run(ctx context.Context, dst *Surface) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("pattern source: invalid size %dx%d", p.Width, p.Height)
	}
	t := time.NewTicker(frameInterval(p.FPS))
	defer t.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			dst.Swap(p.frame(n))
			n++
		}
	}
}

func (p PatternSource) frame(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		shade := uint8(40 + 160*y/p.Height)
		draw.Draw(img, image.Rect(0, y, p.Width, y+1), &image.Uniform{color.RGBA{R: shade / 3, G: shade / 2, B: shade, A: 255}}, image.Point{}, draw.Src)
	}
	side := p.Height / 4
	x := (n * 4) % (p.Width + side)
	box := image.Rect(x-side, p.Height/2-side/2, x, p.Height/2+side/2)
	draw.Draw(img, box, &image.Uniform{color.RGBA{R: 230, G: 190, B: 160, A: 255}}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(10), Y: fixed.I(20)},
	}
	d.DrawString(fmt.Sprintf("frame %d", n))
	return img
}

// ImageSource republishes a still image at a fixed rate.
type ImageSource struct {
	Path string
	FPS  int
}

func (s ImageSource) Run(ctx context.Context, dst *Surface) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("image source: %w", err)
	}
	img, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("image source: decode %s: %w", s.Path, err)
	}
	t := time.NewTicker(frameInterval(s.FPS))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			dst.Swap(img)
		}
	}
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}
