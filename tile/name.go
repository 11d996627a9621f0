package tile

import (
	"fmt"
	"path/filepath"
)

// FileName is the persisted location of a tile relative to the tile directory:
// {zoom}/{canvas}_y{sign}{abs y:08}x{sign}{abs x:08}.png
func FileName(canvas string, k Key) string {
	name := fmt.Sprintf("%s_y%s%08dx%s%08d.png", canvas, sign(k.Y), abs(k.Y), sign(k.X), abs(k.X))
	return filepath.Join(fmt.Sprint(k.Zoom), name)
}

func sign(v int) string {
	if v < 0 {
		return "-"
	}
	return "+"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
