package client

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/icexin/pixelcraft/tile"
)

func TestDummyAnswersRequests(t *testing.T) {
	var mu sync.Mutex
	got := map[tile.Key]bool{}
	done := make(chan struct{}, 4)

	opts := DefaultOptions()
	opts.MaxPendingRequests = 0
	opts.Rand = rand.New(rand.NewSource(1))
	opts.OnChunk = func(ch *tile.Chunk) {
		mu.Lock()
		got[ch.Key()] = true
		mu.Unlock()
		done <- struct{}{}
	}
	d := NewDummy(opts)
	defer d.Close()

	if d.opts.MaxPendingRequests != DummyMaxPendingRequests {
		t.Fatalf("unexpected ceiling: %d", d.opts.MaxPendingRequests)
	}
	waitReady(t, d)

	d.SendChunkRequest(0, 0)
	d.SendChunkRequest(-1, 17)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("chunk %d not delivered", i)
		}
	}

	mu.Lock()
	if !got[tile.ChunkKey(0, 0)] || !got[tile.ChunkKey(-1, 17)] {
		t.Fatalf("unexpected chunks: %v", got)
	}
	mu.Unlock()
	waitFor(t, "requests released", func() bool { return d.PendingChunkRequests() == 0 })
}

func TestDummyEchoesWrites(t *testing.T) {
	d := NewDummy(DefaultOptions())
	if !d.CanSetPixel() {
		t.Fatalf("dummy is rate limited")
	}
	d.SetPixel(4, 5, 0xABCDEF)
	<-d.PixelChanges()
	pc, ok := d.NextPixelChange()
	if !ok || pc.X != 4 || pc.Y != 5 || pc.Color != 0xABCDEF || pc.ID != dummyID {
		t.Fatalf("unexpected change: %+v %v", pc, ok)
	}

	d.Close()
	if err := d.SetPixel(0, 0, 0); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := d.SendChunkRequest(0, 0); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPaletteColorCoversRange(t *testing.T) {
	seen := map[tile.Color]bool{}
	for i := 0; i < 247; i++ {
		seen[paletteColor(i)] = true
	}
	if len(seen) < 200 {
		t.Fatalf("palette too small: %d distinct colors", len(seen))
	}
}

func TestDummyKeepsRequestUntilDelivered(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})

	opts := DefaultOptions()
	opts.MaxPendingRequests = 0
	opts.OnChunk = func(*tile.Chunk) {
		entered <- struct{}{}
		<-release
	}
	d := NewDummy(opts)
	defer d.Close()
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	d.SendChunkRequest(32, 48)
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("chunk not delivered")
	}

	if !d.IsChunkRequested(32, 48) {
		t.Fatalf("request dropped before the chunk was merged")
	}
	d.SendChunkRequest(40, 50)
	if n := d.PendingChunkRequests(); n != 1 {
		t.Fatalf("duplicate request queued, pending %d", n)
	}

	unblock()
	waitFor(t, "request released", func() bool { return !d.IsChunkRequested(32, 48) })
}
