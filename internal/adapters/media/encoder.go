package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// JPEGEncoder encodes snapshots, optionally scaling them to a fixed size first.
type JPEGEncoder struct {
	Width  int
	Height int
}

func (e JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode: nil image")
	}
	src := img
	b := img.Bounds()
	if e.Width > 0 && e.Height > 0 && (b.Dx() != e.Width || b.Dy() != e.Height) {
		dst := image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	buf.Grow(b.Dx() * b.Dy() / 8)
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (JPEGEncoder) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}
