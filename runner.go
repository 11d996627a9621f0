package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/icexin/pixelcraft/client"
)

var ErrNotReady = errors.New("server did not finish the handshake")

// Runner keeps a connection to the canvas alive and drives the world model
// through it, reconnecting with backoff when the connection is lost.
type Runner struct {
	cfg     Config
	log     zerolog.Logger
	store   *Store
	persist *Persister
	world   *WorldService
	rng     *rand.Rand

	// dial is replaced in tests.
	dial func(ctx context.Context, opts client.Options) (client.Client, error)
}

func NewRunner(cfg Config, store *Store, logger zerolog.Logger) *Runner {
	persist := NewPersister(cfg.TileDir, cfg.Canvas, logger)
	r := &Runner{
		cfg:     cfg,
		log:     logger,
		store:   store,
		persist: persist,
		world:   NewWorldService(cfg, persist, logger),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.dial = r.dialClient
	return r
}

func (r *Runner) World() *WorldService { return r.world }

// Run blocks until ctx is done, then writes every region to disk.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.persist.Run(gctx) })
	g.Go(func() error { return r.connectLoop(gctx) })
	err := g.Wait()

	if serr := r.world.SaveAll(); serr != nil && err == nil {
		err = serr
	}
	r.log.Info().Int("regions", r.world.regions.Len()).Int64("updates", r.world.Updates()).
		Int("unsaved", r.persist.Pending()).Msg("saved")
	return err
}

func (r *Runner) connectLoop(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := r.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errSessionReady) {
			attempt = 1
		}
		delay := nextBackoff(r.cfg.Reconnect, attempt, r.rng)
		r.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("disconnected")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// errSessionReady marks a session that got through the handshake before it
// ended, so the next reconnect starts with a short delay again.
var errSessionReady = errors.New("session ended")

func (r *Runner) dialClient(ctx context.Context, opts client.Options) (client.Client, error) {
	if r.cfg.Simulation {
		opts.MaxPendingRequests = client.DummyMaxPendingRequests
		return client.NewDummy(opts), nil
	}
	switch r.cfg.Transport {
	case TransportYamux:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", r.cfg.Server)
		if err != nil {
			return nil, err
		}
		t, err := client.NewMuxTransport(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return client.NewConn(t, opts), nil
	default:
		return client.Dial(ctx, r.cfg.Server, opts)
	}
}

func (r *Runner) runSession(ctx context.Context) error {
	opts := client.DefaultOptions()
	opts.Logger = r.log.With().Str("component", "client").Logger()
	opts.MaxPendingRequests = r.cfg.MaxPendingRequests
	opts.RequestTimeout = r.cfg.RequestTimeout
	opts.DumpFrames = r.cfg.DumpFrames
	opts.OnChunk = r.world.OnChunk

	c, err := r.dial(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.JoinWorld(r.cfg.Canvas); err != nil {
		return err
	}
	timer := time.NewTimer(r.cfg.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-c.Ready():
	case <-c.Done():
		return c.Err()
	case <-timer.C:
		return ErrNotReady
	case <-ctx.Done():
		return nil
	}
	r.log.Info().Msg("ready")
	r.restorePlayer(c)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runScheduler(gctx, c, r.world, r.cfg.RequestInterval, r.log)
	})
	g.Go(func() error {
		return consumeChanges(gctx, c, r.world, r.store, r.cfg.Canvas, r.log)
	})
	g.Go(func() error {
		select {
		case <-c.Done():
			return c.Err()
		case <-gctx.Done():
			return nil
		}
	})
	err = g.Wait()
	r.savePlayer(c)
	c.ClearChunkRequests()
	if err == nil {
		return errSessionReady
	}
	return fmt.Errorf("%w: %w", errSessionReady, err)
}

// positioned is implemented by clients that track the player position.
type positioned interface {
	Session() *client.Session
}

func (r *Runner) restorePlayer(c client.Client) {
	if r.store == nil {
		return
	}
	pos, ok := r.store.GetPlayer(r.cfg.Canvas)
	if !ok {
		pos.X, pos.Y = r.cfg.View.X, r.cfg.View.Y
	}
	if err := c.UpdatePlayer(pos.X, pos.Y, 0, 0); err != nil {
		r.log.Warn().Err(err).Msg("restore position")
	}
}

func (r *Runner) savePlayer(c client.Client) {
	p, ok := c.(positioned)
	if r.store == nil || !ok {
		return
	}
	if err := r.store.UpdatePlayer(r.cfg.Canvas, p.Session().Position()); err != nil {
		r.log.Warn().Err(err).Msg("save position")
	}
}
