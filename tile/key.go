// Package tile addresses square areas of the canvas and holds their rasters.
package tile

import (
	"fmt"
	"image"
	"time"

	"github.com/icexin/pixelcraft/proto"
)

const ChunkSize = proto.ChunkSize

type Color = proto.Color

// Key identifies a square area of the world. X and Y are the upper-left corner
// in world pixels. Zoom 0 is 1:1, positive zooms in by 2^Zoom and negative
// zooms out by 2^-Zoom. Size is the edge length in pixels.
type Key struct {
	X, Y int
	Zoom int
	Size int
}

// Tile is anything that can be addressed by a Key.
type Tile interface {
	Key() Key
}

func (k Key) Key() Key { return k }

func (k Key) String() string {
	return fmt.Sprintf("(%d, %d), zoom=%d, size=%d", k.X, k.Y, k.Zoom, k.Size)
}

// Contains reports whether the world pixel lies inside the key's area.
func (k Key) Contains(x, y int) bool {
	return x >= k.X && y >= k.Y && x < k.X+k.Size && y < k.Y+k.Size
}

// Floor rounds v down to a multiple of size, also for negative v.
func Floor(v, size int) int {
	q := v / size
	if v%size != 0 && v < 0 {
		q--
	}
	return q * size
}

// ChunkKey returns the key of the chunk containing the world pixel.
func ChunkKey(x, y int) Key {
	return Key{X: Floor(x, ChunkSize), Y: Floor(y, ChunkSize), Size: ChunkSize}
}

// RegionKey returns the key of the zoom 0 region of the given size containing the world pixel.
func RegionKey(x, y, size int) Key {
	return Key{X: Floor(x, size), Y: Floor(y, size), Size: size}
}

// ChunkPoint returns the chunk-aligned corner of the world pixel.
func ChunkPoint(x, y int) image.Point {
	return image.Pt(Floor(x, ChunkSize), Floor(y, ChunkSize))
}

// PixelChange is one observed edit, by any participant.
type PixelChange struct {
	X, Y      int
	Color     Color
	ID        uint32
	Timestamp time.Time
}
