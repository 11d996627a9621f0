package tile

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/icexin/pixelcraft/proto"
)

// Chunk is a decoded ChunkSize x ChunkSize leaf raster. It is always opaque
// and only lives until it is merged into a Region.
type Chunk struct {
	key       Key
	Locked    bool
	Timestamp time.Time
	img       *image.NRGBA
}

// NewChunk builds a chunk at the chunk-aligned world position from row-major colors.
func NewChunk(x, y int, locked bool, ts time.Time, pix []Color) (*Chunk, error) {
	if len(pix) != ChunkSize*ChunkSize {
		return nil, fmt.Errorf("%w: chunk has %d pixels", ErrSize, len(pix))
	}
	if x != Floor(x, ChunkSize) || y != Floor(y, ChunkSize) {
		return nil, fmt.Errorf("%w: chunk at (%d, %d) is not aligned", ErrOutOfBounds, x, y)
	}
	img := image.NewNRGBA(image.Rect(0, 0, ChunkSize, ChunkSize))
	for i, c := range pix {
		r, g, b := c.RGB()
		img.SetNRGBA(i%ChunkSize, i/ChunkSize, color.NRGBA{R: r, G: g, B: b, A: 0xFF})
	}
	return &Chunk{
		key:       Key{X: x, Y: y, Size: ChunkSize},
		Locked:    locked,
		Timestamp: ts,
		img:       img,
	}, nil
}

// DecodeChunk decompresses a chunk-load payload. cx and cy are in chunk units.
func DecodeChunk(cx, cy int, payload []byte, ts time.Time) (*Chunk, error) {
	locked, pix, err := proto.DecompressChunk(payload, ChunkSize)
	if err != nil {
		return nil, err
	}
	return NewChunk(cx*ChunkSize, cy*ChunkSize, locked, ts, pix)
}

func (c *Chunk) Key() Key { return c.key }

func (c *Chunk) Raster() *image.NRGBA { return c.img }

func (c *Chunk) Pixel(x, y int) Color {
	p := c.img.NRGBAAt(x, y)
	return proto.RGB(p.R, p.G, p.B)
}

// Colors returns the chunk in row-major order.
func (c *Chunk) Colors() []Color {
	pix := make([]Color, 0, ChunkSize*ChunkSize)
	for y := 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x++ {
			pix = append(pix, c.Pixel(x, y))
		}
	}
	return pix
}
