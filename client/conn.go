package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/proto"
	"github.com/icexin/pixelcraft/queue"
	"github.com/icexin/pixelcraft/tile"
)

// captchaOK is the only captcha state the client can continue with.
const captchaOK = 3

// Conn is a live connection to a canvas server.
type Conn struct {
	t        Transport
	opts     Options
	log      zerolog.Logger
	session  *Session
	requests *Requests
	changes  *queue.Queue[tile.PixelChange]
	chunks   chan proto.ChunkLoad

	randMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
	wg        sync.WaitGroup
}

var _ Client = (*Conn)(nil)

// Dial connects to url over a websocket and starts the receive loop.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	t, err := DialWebsocket(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewConn(t, opts), nil
}

// NewConn takes ownership of t and starts reading from it.
func NewConn(t Transport, opts Options) *Conn {
	opts.setDefaults(MaxPendingRequests)
	c := &Conn{
		t:       t,
		opts:    opts,
		log:     opts.Logger,
		session: NewSession(opts.Now),
		changes: queue.New[tile.PixelChange](),
		chunks:  make(chan proto.ChunkLoad, 64),
		closed:  make(chan struct{}),
	}
	c.requests = NewRequests(opts.MaxPendingRequests, opts.RequestTimeout, opts.Now, c.transmitChunkRequest)

	if p, ok := t.(pinger); ok {
		p.OnPing(c.handlePing)
	}

	c.wg.Add(1 + opts.ChunkWorkers)
	go c.readLoop()
	for i := 0; i < opts.ChunkWorkers; i++ {
		go c.chunkWorker()
	}
	return c
}

func (c *Conn) Session() *Session { return c.session }

func (c *Conn) Requests() *Requests { return c.requests }

func (c *Conn) Ready() <-chan struct{} { return c.session.Ready() }

func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the connection down and waits for the receive loop and chunk
// workers to exit.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setErr(ErrClosed)
		close(c.closed)
		err = c.t.Close()
	})
	c.wg.Wait()
	return err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// fail closes the connection because of err and reports it once.
func (c *Conn) fail(err error) {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.setErr(err)
		close(c.closed)
		c.t.Close()
	})
	if !first {
		return
	}
	c.log.Error().Err(err).Msg("connection lost")
	if c.opts.OnConnectionLost != nil {
		go c.opts.OnConnectionLost(err)
	}
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) dump(prefix string, frame []byte) {
	if c.opts.DumpFrames {
		c.log.Debug().Str("dir", prefix).Str("frame", hex.EncodeToString(frame)).Msg("frame")
	}
}

func (c *Conn) send(frame []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.dump(">", frame)
	if err := c.t.WriteMessage(BinaryMessage, frame); err != nil {
		err = fmt.Errorf("client: write: %w", err)
		c.fail(err)
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	for {
		kind, data, err := c.t.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.fail(fmt.Errorf("client: read: %w", err))
			}
			return
		}
		switch kind {
		case TextMessage:
			c.handleText(string(data))
		case BinaryMessage:
			c.dump("<", data)
			if err := c.handleFrame(data); err != nil {
				if errors.Is(err, ErrProtocolViolation) {
					err = fmt.Errorf("%w: %w", ErrReconnectRequired, err)
				}
				c.fail(err)
				return
			}
		}
	}
}

func (c *Conn) handleText(text string) {
	i := strings.Index(text, ": ")
	if i <= 0 {
		c.log.Info().Str("text", text).Msg("server text")
		return
	}
	source := "chat"
	if strings.HasPrefix(text, "[D] ") {
		source = "discord"
	}
	c.log.Info().Str("source", source).Str("from", text[:i]).Str("msg", text[i+2:]).Msg("chat")
}

func (c *Conn) handleFrame(frame []byte) error {
	msg, err := proto.Decode(frame)
	if err != nil {
		if errors.Is(err, proto.ErrUnknownOpcode) {
			return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
		return err
	}

	switch m := msg.(type) {
	case proto.SetID:
		if err := c.session.SetID(m.ID); err != nil {
			return err
		}
		c.log.Info().Uint32("id", m.ID).Msg("id assigned")
	case proto.WorldUpdate:
		c.handleWorldUpdate(m)
	case proto.ChunkLoad:
		x, y := int(m.X)*tile.ChunkSize, int(m.Y)*tile.ChunkSize
		c.requests.Complete(x, y)
		if c.opts.OnChunk == nil {
			return nil
		}
		select {
		case c.chunks <- m:
		case <-c.closed:
		}
	case proto.Teleport:
		c.session.SetPosition(int(m.X), int(m.Y))
		c.log.Info().Int32("x", m.X).Int32("y", m.Y).Msg("teleport")
	case proto.SetRank:
		c.session.SetRank(m.Rank)
		c.log.Info().Uint8("rank", m.Rank).Msg("rank assigned")
		return c.send(proto.EncodeRankVerification(m.Rank))
	case proto.CaptchaState:
		if m.State != captchaOK {
			return fmt.Errorf("%w: captcha state %d", ErrProtocolViolation, m.State)
		}
	case proto.SetQuota:
		q := Quota{Rate: m.Rate, Per: m.Per}
		c.session.SetQuota(q)
		c.log.Info().Stringer("quota", q).Msg("quota assigned")
	default:
		return fmt.Errorf("%w: unhandled %v", ErrProtocolViolation, msg.Opcode())
	}
	return nil
}

func (c *Conn) handleWorldUpdate(m proto.WorldUpdate) {
	for _, p := range m.Players {
		c.session.SetOwnPlayer(p.ID, p.X, p.Y)
	}
	// identical edits in one update share a timestamp; only the last is kept
	type edit struct {
		x, y int32
		c    proto.Color
		id   uint32
	}
	last := make(map[edit]int, len(m.Pixels))
	for i, p := range m.Pixels {
		last[edit{p.X, p.Y, p.Color, p.ID}] = i
	}
	now := c.opts.Now()
	for i, p := range m.Pixels {
		if last[edit{p.X, p.Y, p.Color, p.ID}] != i {
			continue
		}
		c.changes.Push(tile.PixelChange{
			X:         int(p.X),
			Y:         int(p.Y),
			Color:     p.Color,
			ID:        p.ID,
			Timestamp: now,
		})
	}
}

func (c *Conn) chunkWorker() {
	defer c.wg.Done()
	for {
		select {
		case m := <-c.chunks:
			ch, err := tile.DecodeChunk(int(m.X), int(m.Y), m.Payload, c.opts.Now())
			if err != nil {
				c.fail(fmt.Errorf("client: chunk (%d, %d): %w", m.X, m.Y, err))
				return
			}
			c.opts.OnChunk(ch)
		case <-c.closed:
			return
		}
	}
}

// handlePing keeps the session alive by nudging the cursor.
func (c *Conn) handlePing() {
	pos := c.session.Position()
	if err := c.UpdatePlayer(pos.X+1, pos.Y, 0, 0); err != nil {
		c.log.Debug().Err(err).Msg("keepalive")
	}
}

func (c *Conn) JoinWorld(name string) error {
	frame, err := proto.EncodeJoinWorld(name)
	if err != nil {
		return err
	}
	c.log.Info().Str("world", name).Msg("joining")
	return c.send(frame)
}

func (c *Conn) jitter() (int, int) {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return c.opts.Rand.Intn(proto.SubPixel), c.opts.Rand.Intn(proto.SubPixel)
}

func (c *Conn) UpdatePlayer(x, y int, col tile.Color, tool uint8) error {
	jx, jy := c.jitter()
	return c.send(proto.EncodeUpdatePlayer(proto.UpdatePlayer{
		X: x, Y: y, JitterX: jx, JitterY: jy, Color: col, Tool: tool,
	}))
}

func (c *Conn) CanSetPixel() bool {
	return !c.isClosed() && c.session.CanSetPixel()
}

// SetPixel returns ErrNotReady before the quota is known and ErrCooldown
// when the previous write was too recent.
func (c *Conn) SetPixel(x, y int, col tile.Color) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.session.ReserveWrite(); err != nil {
		return err
	}
	if c.session.Position() != image.Pt(x, y) {
		if err := c.UpdatePlayer(x, y, col, 0); err != nil {
			return err
		}
	}
	return c.send(proto.EncodeSetPixel(proto.SetPixel{X: x, Y: y, Color: col}))
}

// WaitSetPixel blocks until the write slot opens, then paints the pixel.
func (c *Conn) WaitSetPixel(ctx context.Context, x, y int, col tile.Color) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, err := c.session.untilWrite()
		if errors.Is(err, ErrNotReady) {
			if c.session.IsReady() {
				// the quota allows no writes at all
				return ErrNotReady
			}
			select {
			case <-c.session.Ready():
				continue
			case <-c.closed:
				return ErrClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-c.closed:
				timer.Stop()
				return ErrClosed
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		err = c.SetPixel(x, y, col)
		if !errors.Is(err, ErrCooldown) {
			return err
		}
	}
}

func (c *Conn) transmitChunkRequest(pt image.Point) error {
	return c.send(proto.EncodeChunkRequest(pt.X/tile.ChunkSize, pt.Y/tile.ChunkSize))
}

func (c *Conn) SendChunkRequest(x, y int) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.requests.Send(x, y)
}

func (c *Conn) IsChunkRequested(x, y int) bool { return c.requests.IsRequested(x, y) }

func (c *Conn) CanRequestChunk() bool {
	return !c.isClosed() && c.requests.CanRequest()
}

// RetryStaleChunkRequests sends timed out requests again and returns how many were sent.
func (c *Conn) RetryStaleChunkRequests() int {
	n, err := c.requests.RetryStale()
	if err != nil {
		c.log.Debug().Err(err).Msg("retry stale chunk requests")
	}
	return n
}

func (c *Conn) PendingChunkRequests() int { return c.requests.Len() }

func (c *Conn) ClearChunkRequests() { c.requests.Clear() }

func (c *Conn) NextPixelChange() (tile.PixelChange, bool) { return c.changes.Pop() }

func (c *Conn) PixelChanges() <-chan struct{} { return c.changes.C() }
