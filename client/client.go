// Package client speaks the canvas protocol: it tracks the session assigned
// by the server, honors the write quota, and requests chunks of the world.
package client

import (
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/tile"
)

var (
	ErrNotReady          = errors.New("client: quota not known yet")
	ErrCooldown          = errors.New("client: write cooldown active")
	ErrClosed            = errors.New("client: connection closed")
	ErrProtocolViolation = errors.New("client: protocol violation")
	ErrReconnectRequired = errors.New("client: reconnect required")
)

// Client is a connection to a canvas, live or simulated.
type Client interface {
	// JoinWorld asks the server to put us on the named canvas.
	JoinWorld(name string) error

	// Ready is closed once the server has assigned id, quota and rank.
	Ready() <-chan struct{}

	// UpdatePlayer moves our cursor and sets its color and tool.
	UpdatePlayer(x, y int, c tile.Color, tool uint8) error

	// CanSetPixel reports whether the write cooldown has passed.
	CanSetPixel() bool

	// SetPixel paints one pixel, moving the cursor there first if needed.
	SetPixel(x, y int, c tile.Color) error

	// SendChunkRequest asks for the chunk containing the world pixel.
	SendChunkRequest(x, y int) error
	IsChunkRequested(x, y int) bool
	CanRequestChunk() bool
	RetryStaleChunkRequests() int
	PendingChunkRequests() int
	ClearChunkRequests()

	// NextPixelChange pops the oldest observed pixel edit.
	NextPixelChange() (tile.PixelChange, bool)

	// PixelChanges receives a value when new edits have been queued.
	PixelChanges() <-chan struct{}

	// Done is closed when the client has shut down.
	Done() <-chan struct{}

	// Err returns why the client shut down, or nil while it is running.
	Err() error

	Close() error
}

type Options struct {
	Logger zerolog.Logger

	// MaxPendingRequests is the outstanding chunk request ceiling.
	MaxPendingRequests int

	// RequestTimeout is the age at which a chunk request is sent again.
	RequestTimeout time.Duration

	// ChunkWorkers decompress chunks off the receive loop.
	ChunkWorkers int

	// DumpFrames logs every frame in hex at debug level.
	DumpFrames bool

	// OnChunk receives every decoded chunk. It is called from a worker goroutine.
	OnChunk func(*tile.Chunk)

	// OnConnectionLost is called once, on its own goroutine, with the cause
	// when the connection fails. It is not called after Close.
	OnConnectionLost func(error)

	Now  func() time.Time
	Rand *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		Logger:             zerolog.Nop(),
		MaxPendingRequests: MaxPendingRequests,
		RequestTimeout:     RequestTimeout,
		ChunkWorkers:       4,
	}
}

func (o *Options) setDefaults(ceiling int) {
	if o.MaxPendingRequests <= 0 {
		o.MaxPendingRequests = ceiling
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = RequestTimeout
	}
	if o.ChunkWorkers <= 0 {
		o.ChunkWorkers = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(o.Now().UnixNano()))
	}
}
