package client

import (
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/proto"
	"github.com/icexin/pixelcraft/queue"
	"github.com/icexin/pixelcraft/tile"
)

// dummyID is the participant id the simulation reports for its own writes.
const dummyID = 1

// Dummy simulates a canvas server. Every chunk request is answered
// asynchronously with a random chunk, and writes are echoed back as pixel
// changes. It is always ready and never rate limited.
type Dummy struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	pending []dummyRequest // oldest first

	changes *queue.Queue[tile.PixelChange]
	ready   chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Client = (*Dummy)(nil)

// dummyRequest stays pending until its chunk has been handed to OnChunk.
type dummyRequest struct {
	pt        image.Point
	answering bool
}

func NewDummy(opts Options) *Dummy {
	opts.setDefaults(DummyMaxPendingRequests)
	d := &Dummy{
		opts:    opts,
		log:     opts.Logger,
		changes: queue.New[tile.PixelChange](),
		ready:   make(chan struct{}),
		closed:  make(chan struct{}),
	}
	close(d.ready)
	return d
}

func (d *Dummy) JoinWorld(name string) error {
	d.log.Info().Str("world", name).Msg("join (simulated)")
	return nil
}

func (d *Dummy) Ready() <-chan struct{} { return d.ready }

func (d *Dummy) UpdatePlayer(x, y int, c tile.Color, tool uint8) error {
	d.log.Debug().Int("x", x).Int("y", y).Uint32("color", uint32(c)).Uint8("tool", tool).Msg("update player (simulated)")
	return nil
}

func (d *Dummy) CanSetPixel() bool { return true }

func (d *Dummy) SetPixel(x, y int, c tile.Color) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	d.changes.Push(tile.PixelChange{X: x, Y: y, Color: c, ID: dummyID, Timestamp: d.opts.Now()})
	return nil
}

func (d *Dummy) SendChunkRequest(x, y int) error {
	pt := tile.ChunkPoint(x, y)

	d.mu.Lock()
	select {
	case <-d.closed:
		d.mu.Unlock()
		return ErrClosed
	default:
	}
	if d.indexLocked(pt) >= 0 {
		d.mu.Unlock()
		return nil
	}
	d.pending = append(d.pending, dummyRequest{pt: pt})
	d.wg.Add(1)
	d.mu.Unlock()

	go d.answer()
	return nil
}

// answer delivers a chunk for the oldest request nobody is answering yet.
// The request is released only after OnChunk returns, so the chunk is always
// either requested or present.
func (d *Dummy) answer() {
	defer d.wg.Done()

	d.mu.Lock()
	i := 0
	for i < len(d.pending) && d.pending[i].answering {
		i++
	}
	if i == len(d.pending) {
		d.mu.Unlock()
		return
	}
	d.pending[i].answering = true
	pt := d.pending[i].pt
	pix := d.randomChunk()
	d.mu.Unlock()

	defer d.release(pt)
	if d.opts.OnChunk == nil {
		return
	}
	ch, err := tile.NewChunk(pt.X, pt.Y, false, d.opts.Now(), pix)
	if err != nil {
		d.log.Error().Err(err).Msg("simulated chunk")
		return
	}
	d.opts.OnChunk(ch)
}

func (d *Dummy) release(pt image.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.indexLocked(pt); i >= 0 && d.pending[i].answering {
		d.pending = append(d.pending[:i], d.pending[i+1:]...)
	}
}

func (d *Dummy) indexLocked(pt image.Point) int {
	for i, r := range d.pending {
		if r.pt == pt {
			return i
		}
	}
	return -1
}

// randomChunk mixes white paper with a random palette whose size is biased
// towards the 16 basic colors. Callers hold d.mu.
func (d *Dummy) randomChunk() []tile.Color {
	rnd := d.opts.Rand
	blank := rnd.Float64()
	n := rnd.Intn(12)*rnd.Intn(22) + 16

	pix := make([]tile.Color, tile.ChunkSize*tile.ChunkSize)
	for i := range pix {
		if rnd.Float64() < blank {
			pix[i] = 0xFFFFFF
		} else {
			pix[i] = paletteColor(rnd.Intn(n))
		}
	}
	return pix
}

var basicColors = [16]tile.Color{
	0x000000, 0x0000AA, 0x00AA00, 0x00AAAA, 0xAA0000, 0xAA00AA, 0xAA5500, 0xAAAAAA,
	0x555555, 0x5555FF, 0x55FF55, 0x55FFFF, 0xFF5555, 0xFF55FF, 0xFFFF55, 0xFFFFFF,
}

// paletteColor maps 0..15 to the basic colors and higher indexes to a hue
// ramp at decreasing brightness.
func paletteColor(i int) tile.Color {
	if i < len(basicColors) {
		return basicColors[i]
	}
	i -= len(basicColors)
	hue := i % 24
	level := uint8(0xFF - (i/24)*0x18)

	up := uint8(int(level) * (hue % 8) / 8)
	down := level - up
	switch hue / 8 {
	case 0:
		return proto.RGB(level, up, down/4)
	case 1:
		return proto.RGB(down, level, up/4)
	default:
		return proto.RGB(up/4, down, level)
	}
}

func (d *Dummy) IsChunkRequested(x, y int) bool {
	pt := tile.ChunkPoint(x, y)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.indexLocked(pt) >= 0
}

func (d *Dummy) CanRequestChunk() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) < d.opts.MaxPendingRequests
}

// RetryStaleChunkRequests is a no-op; simulated requests never get lost.
func (d *Dummy) RetryStaleChunkRequests() int { return 0 }

func (d *Dummy) PendingChunkRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dummy) ClearChunkRequests() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}

func (d *Dummy) NextPixelChange() (tile.PixelChange, bool) { return d.changes.Pop() }

func (d *Dummy) PixelChanges() <-chan struct{} { return d.changes.C() }

func (d *Dummy) Done() <-chan struct{} { return d.closed }

func (d *Dummy) Err() error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
		return nil
	}
}

// Close waits for chunks still being delivered.
func (d *Dummy) Close() error {
	d.mu.Lock()
	d.closeOnce.Do(func() { close(d.closed) })
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}
