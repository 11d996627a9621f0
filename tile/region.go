package tile

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/icexin/pixelcraft/proto"
)

var (
	ErrOutOfBounds  = errors.New("tile: out of bounds")
	ErrZoomMismatch = errors.New("tile: zoom mismatch")
	ErrSize         = errors.New("tile: invalid size")
)

// Raster is a tile with a pixel buffer of Key().Size squared pixels.
type Raster interface {
	Tile
	Raster() *image.NRGBA
}

// Region is a composable square raster. A pixel with alpha 0 is not known
// yet; any other alpha means its color is known. Region is safe for
// concurrent use.
type Region struct {
	key Key

	mu  sync.RWMutex
	img *image.NRGBA
}

// NewRegion returns a region with no known pixels.
func NewRegion(key Key) *Region {
	return &Region{
		key: key,
		img: image.NewNRGBA(image.Rect(0, 0, key.Size, key.Size)),
	}
}

// NewRegionFromImage adopts a persisted image. An image of the wrong size is
// ignored and an empty region is returned.
func NewRegionFromImage(key Key, src image.Image) *Region {
	r := NewRegion(key)
	if src == nil || src.Bounds().Dx() != key.Size || src.Bounds().Dy() != key.Size {
		return r
	}
	draw.Draw(r.img, r.img.Bounds(), src, src.Bounds().Min, draw.Src)
	return r
}

func (r *Region) Key() Key { return r.key }

func (r *Region) String() string {
	return "Region[" + r.key.String() + "]"
}

// Raster returns a copy of the pixel buffer.
func (r *Region) Raster() *image.NRGBA { return r.Snapshot() }

// Snapshot copies the pixel buffer so it can be encoded without holding the
// region lock.
func (r *Region) Snapshot() *image.NRGBA {
	r.mu.RLock()
	defer r.mu.RUnlock()

	img := image.NewNRGBA(r.img.Rect)
	copy(img.Pix, r.img.Pix)
	return img
}

func (r *Region) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.key.Size && y < r.key.Size
}

// Pixel returns the color at the region-relative coordinate, and false if it
// is unknown or outside the region.
func (r *Region) Pixel(x, y int) (Color, bool) {
	if !r.inside(x, y) {
		return 0, false
	}
	r.mu.RLock()
	p := r.img.NRGBAAt(x, y)
	r.mu.RUnlock()
	if p.A == 0 {
		return 0, false
	}
	return proto.RGB(p.R, p.G, p.B), true
}

// SetPixel paints a known pixel at the region-relative coordinate. Unknown
// pixels are left alone and false is returned.
func (r *Region) SetPixel(x, y int, c Color) (bool, error) {
	if !r.inside(x, y) {
		return false, fmt.Errorf("%w: pixel (%d, %d) in %v", ErrOutOfBounds, x, y, r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.img.NRGBAAt(x, y).A == 0 {
		return false, nil
	}
	cr, cg, cb := c.RGB()
	r.img.SetNRGBA(x, y, color.NRGBA{R: cr, G: cg, B: cb, A: 0xFF})
	return true, nil
}

// IsSubRegionPresent checks the presence bit of the pixel at the
// region-relative coordinate, usually the upper-left pixel of a chunk.
func (r *Region) IsSubRegionPresent(x, y int) (bool, error) {
	if !r.inside(x, y) {
		return false, fmt.Errorf("%w: pixel (%d, %d) in %v", ErrOutOfBounds, x, y, r)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.img.NRGBAAt(x, y).A != 0, nil
}

// SetSubRegion copies a smaller tile into place. The destination is left
// untouched when any part of src would fall outside it.
func (r *Region) SetSubRegion(src Raster) error {
	sk := src.Key()
	if sk.Zoom != r.key.Zoom {
		return fmt.Errorf("%w: %v into %v", ErrZoomMismatch, sk, r)
	}
	dx := sk.X - r.key.X
	dy := sk.Y - r.key.Y
	diff := r.key.Size - sk.Size
	if dx < 0 || dy < 0 || dx > diff || dy > diff {
		return fmt.Errorf("%w: %v into %v", ErrOutOfBounds, sk, r)
	}

	img := src.Raster()
	if img.Rect.Dx() != sk.Size || img.Rect.Dy() != sk.Size {
		return fmt.Errorf("%w: raster %v for %v", ErrSize, img.Rect, sk)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rowLen := sk.Size * 4
	for y := 0; y < sk.Size; y++ {
		srcP := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		dstP := r.img.PixOffset(dx, dy+y)
		copy(r.img.Pix[dstP:dstP+rowLen], img.Pix[srcP:srcP+rowLen])
	}
	return nil
}

// Known counts the pixels whose color is known.
func (r *Region) Known() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for i := 3; i < len(r.img.Pix); i += 4 {
		if r.img.Pix[i] != 0 {
			n++
		}
	}
	return n
}
