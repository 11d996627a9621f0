package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/queue"
	"github.com/icexin/pixelcraft/tile"
)

// Persister writes regions to PNG files under dir. Evicted regions are
// queued and written by Run; a region stays reachable through Lookup until
// it is on disk, so a reload never reads a stale file.
type Persister struct {
	dir     string
	canvas  string
	log     zerolog.Logger
	backoff BackoffConfig
	queue   *queue.Queue[*tile.Region]

	mu      sync.Mutex
	pending map[tile.Key]*tile.Region
	rng     *rand.Rand
}

func NewPersister(dir, canvas string, logger zerolog.Logger) *Persister {
	return &Persister{
		dir:    dir,
		canvas: canvas,
		log:    logger.With().Str("component", "persist").Logger(),
		backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		},
		queue:   queue.New[*tile.Region](),
		pending: make(map[tile.Key]*tile.Region),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *Persister) Path(k tile.Key) string {
	return filepath.Join(p.dir, tile.FileName(p.canvas, k))
}

// Enqueue schedules r to be written by Run.
func (p *Persister) Enqueue(r *tile.Region) {
	p.mu.Lock()
	p.pending[r.Key()] = r
	p.mu.Unlock()
	p.queue.Push(r)
}

// Lookup returns a region that is queued but not written yet.
func (p *Persister) Lookup(k tile.Key) (*tile.Region, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.pending[k]
	return r, ok
}

func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Load returns the region for k from the write queue or from disk. A missing
// or unreadable file yields an empty region.
func (p *Persister) Load(k tile.Key) *tile.Region {
	if r, ok := p.Lookup(k); ok {
		return r
	}
	f, err := os.Open(p.Path(k))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.log.Warn().Err(err).Stringer("region", k).Msg("open tile")
		}
		return tile.NewRegion(k)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		p.log.Warn().Err(err).Stringer("region", k).Msg("decode tile")
		return tile.NewRegion(k)
	}
	return tile.NewRegionFromImage(k, img)
}

// Save writes r through a temporary file so a crash never leaves a torn image.
func (p *Persister) Save(r *tile.Region) error {
	path := p.Path(r.Key())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, r.Snapshot()); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Run writes queued regions until ctx is done, retrying failed writes with
// backoff. Regions still queued at shutdown get one last attempt each.
func (p *Persister) Run(ctx context.Context) error {
	for {
		r, err := p.queue.Wait(ctx)
		if err != nil {
			p.Flush()
			return nil
		}
		p.saveWithRetry(ctx, r)
	}
}

func (p *Persister) saveWithRetry(ctx context.Context, r *tile.Region) {
	for attempt := 1; ; attempt++ {
		err := p.Save(r)
		if err == nil {
			p.done(r)
			p.log.Debug().Stringer("region", r.Key()).Msg("saved")
			return
		}
		delay := p.nextDelay(attempt)
		p.log.Error().Err(err).Stringer("region", r.Key()).Int("attempt", attempt).Dur("retry_in", delay).Msg("save failed")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// Flush gets the last attempt
			p.queue.Push(r)
			return
		}
	}
}

func (p *Persister) nextDelay(attempt int) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return nextBackoff(p.backoff, attempt, p.rng)
}

func (p *Persister) done(r *tile.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[r.Key()] == r {
		delete(p.pending, r.Key())
	}
}

// Flush writes everything still queued once and returns the first error.
func (p *Persister) Flush() error {
	var first error
	for _, r := range p.queue.Drain() {
		if err := p.Save(r); err != nil {
			p.log.Error().Err(err).Stringer("region", r.Key()).Msg("save failed")
			if first == nil {
				first = err
			}
			continue
		}
		p.done(r)
	}
	return first
}
