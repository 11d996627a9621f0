package main

import (
	"image"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/tile"
)

func testWorld(t *testing.T, capacity int) (*WorldService, *Persister) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RegionSize = 32
	cfg.CacheCapacity = capacity
	cfg.View = View{X: 5, Y: 5, Radius: 0}
	p := NewPersister(t.TempDir(), cfg.Canvas, zerolog.Nop())
	return NewWorldService(cfg, p, zerolog.Nop()), p
}

func TestViewRect(t *testing.T) {
	got := viewRect(View{X: -1, Y: 40, Radius: 1}, 32)
	want := image.Rect(-64, 0, 32, 96)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextChunkWalksView(t *testing.T) {
	w, _ := testWorld(t, 4)
	if w.View() != image.Rect(0, 0, 32, 32) {
		t.Fatalf("unexpected view %v", w.View())
	}

	want := []image.Point{{0, 0}, {16, 0}, {0, 16}, {16, 16}}
	for _, pt := range want {
		got, ok := w.NextChunk(nil)
		if !ok || got != pt {
			t.Fatalf("got %v %v want %v", got, ok, pt)
		}
		w.OnChunk(testChunk(t, pt.X, pt.Y, 0x00FF00))
		if !w.ChunkPresent(pt.X+3, pt.Y+7) {
			t.Fatalf("chunk %v not present after merge", pt)
		}
	}
	if pt, ok := w.NextChunk(nil); ok {
		t.Fatalf("view is complete, got %v", pt)
	}
}

func TestNextChunkSkipsRequested(t *testing.T) {
	w, _ := testWorld(t, 4)
	requested := func(x, y int) bool { return x == 0 }

	got, ok := w.NextChunk(requested)
	if !ok || got != image.Pt(16, 0) {
		t.Fatalf("got %v %v", got, ok)
	}
	got, ok = w.NextChunk(requested)
	if !ok || got != image.Pt(16, 16) {
		t.Fatalf("got %v %v", got, ok)
	}
	if got, ok := w.NextChunk(func(int, int) bool { return true }); ok {
		t.Fatalf("everything requested, got %v", got)
	}
}

func TestApplyPixelChange(t *testing.T) {
	w, _ := testWorld(t, 4)
	w.OnChunk(testChunk(t, 0, 0, 0x000000))
	before := w.Updates()

	if !w.ApplyPixelChange(tile.PixelChange{X: 3, Y: 4, Color: 0xABCDEF}) {
		t.Fatalf("known pixel not updated")
	}
	if c, ok := w.Region(3, 4).Pixel(3, 4); !ok || c != 0xABCDEF {
		t.Fatalf("unexpected pixel %06x %v", c, ok)
	}
	if w.Updates() != before+1 {
		t.Fatalf("update not counted")
	}
	if w.ApplyPixelChange(tile.PixelChange{X: 20, Y: 20, Color: 1}) {
		t.Fatalf("unknown pixel updated")
	}
	if w.ApplyPixelChange(tile.PixelChange{X: 1000, Y: 1000, Color: 1}) {
		t.Fatalf("uncached region updated")
	}
}

func TestEvictedRegionIsPersisted(t *testing.T) {
	w, p := testWorld(t, 2)
	w.OnChunk(testChunk(t, 0, 0, 0x112233))
	first := w.Region(0, 0)
	w.Region(32, 0)
	w.Region(64, 0)

	if p.Pending() != 1 {
		t.Fatalf("expected evicted region queued, pending %d", p.Pending())
	}
	if got := w.Region(0, 0); got != first {
		t.Fatalf("reload did not return the queued region")
	}

	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := os.Stat(p.Path(first.Key())); err != nil {
		t.Fatalf("evicted region not written: %v", err)
	}
}

func TestSaveAll(t *testing.T) {
	w, p := testWorld(t, 4)
	w.OnChunk(testChunk(t, 16, 16, 0x445566))
	if err := w.SaveAll(); err != nil {
		t.Fatalf("save: %v", err)
	}

	r := p.Load(tile.Key{X: 0, Y: 0, Size: 32})
	if c, ok := r.Pixel(31, 31); !ok || c != 0x445566 {
		t.Fatalf("unexpected pixel %06x %v", c, ok)
	}
	if r.Known() != tile.ChunkSize*tile.ChunkSize {
		t.Fatalf("unexpected known count %d", r.Known())
	}
}
