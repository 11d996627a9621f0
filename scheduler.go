package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/client"
	"github.com/icexin/pixelcraft/tile"
)

// requestChunks retries stale requests, then asks for missing chunks in view
// until the request ceiling is reached. It returns the number of new requests.
func requestChunks(c client.Client, world *WorldService) (int, error) {
	c.RetryStaleChunkRequests()

	n := 0
	for c.CanRequestChunk() {
		pt, ok := world.NextChunk(c.IsChunkRequested)
		if !ok {
			break
		}
		if err := c.SendChunkRequest(pt.X, pt.Y); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// runScheduler issues chunk requests every interval until ctx is done or the
// client shuts down.
func runScheduler(ctx context.Context, c client.Client, world *WorldService, interval time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case <-ticker.C:
		}
		n, err := requestChunks(c, world)
		if err != nil {
			logger.Debug().Err(err).Msg("request chunks")
			continue
		}
		if n > 0 {
			logger.Debug().Int("requested", n).Int("pending", c.PendingChunkRequests()).Msg("chunk requests")
		}
	}
}

// consumeChanges applies observed pixel changes in arrival order and records
// them in the history store.
func consumeChanges(ctx context.Context, c client.Client, world *WorldService, store *Store, canvas string, logger zerolog.Logger) error {
	for {
		var batch []tile.PixelChange
		for {
			pc, ok := c.NextPixelChange()
			if !ok {
				break
			}
			world.ApplyPixelChange(pc)
			batch = append(batch, pc)
		}
		if store != nil && len(batch) > 0 {
			if err := store.AppendChanges(canvas, batch...); err != nil {
				logger.Error().Err(err).Int("changes", len(batch)).Msg("record history")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case <-c.PixelChanges():
		}
	}
}
