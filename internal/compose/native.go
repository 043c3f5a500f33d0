package compose

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/fogleman/gg"
	"github.com/spf13/afero"
)

// DefaultBlock is the JPEG MCU edge used to validate drop offsets.
const DefaultBlock = 8

// Native implements Primitive in Go. It decodes and re-encodes every image,
// so unlike jpegtran it is not lossless; it exists for hosts without the
// crop 'n' drop tool. Drops keep jpegtran's alignment rule.
type Native struct {
	Fs      afero.Fs
	Quality int
	Block   int
}

// NewNative returns a native primitive working on fs.
func NewNative(fs afero.Fs) *Native {
	return &Native{Fs: fs, Quality: 95, Block: DefaultBlock}
}

// Check implements Primitive.
func (n *Native) Check(context.Context) error {
	if n.Fs == nil {
		return fmt.Errorf("%w: native compositor has no filesystem", ErrUnavailable)
	}
	return nil
}

// Crop implements Primitive by drawing src on a black canvas of the region size.
func (n *Native) Crop(ctx context.Context, src, dst string, width, height, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("crop %s: invalid size %dx%d", src, width, height)
	}
	img, err := n.decode(src)
	if err != nil {
		return err
	}

	b := img.Bounds()
	dx, dy := -x, -y
	if width > b.Dx() {
		dx = x
	}
	if height > b.Dy() {
		dy = y
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.DrawImage(img, dx, dy)
	return n.encode(dst, dc.Image())
}

// Drop implements Primitive by drawing patch over base.
func (n *Native) Drop(ctx context.Context, base, patch, dst string, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if block := n.Block; block > 0 && (x%block != 0 || y%block != 0) {
		return fmt.Errorf("%w: +%d+%d is not a multiple of %d", ErrMisaligned, x, y, block)
	}
	b, err := n.decode(base)
	if err != nil {
		return err
	}
	p, err := n.decode(patch)
	if err != nil {
		return err
	}

	dc := gg.NewContextForImage(b)
	dc.DrawImage(p, x, y)
	return n.encode(dst, dc.Image())
}

// Optimize implements Primitive by re-encoding src.
func (n *Native) Optimize(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := n.decode(src)
	if err != nil {
		return err
	}
	return n.encode(dst, img)
}

func (n *Native) decode(name string) (image.Image, error) {
	f, err := n.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

func (n *Native) encode(name string, img image.Image) error {
	f, err := n.Fs.Create(name)
	if err != nil {
		return err
	}
	quality := n.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return f.Close()
}
