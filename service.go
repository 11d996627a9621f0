package main

import (
	"image"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/icexin/pixelcraft/cache"
	"github.com/icexin/pixelcraft/tile"
)

// WorldService is the local model of the canvas: a bounded cache of regions
// filled from chunks and pixel changes, backed by PNG files.
type WorldService struct {
	regionSize int
	log        zerolog.Logger
	persist    *Persister
	regions    *cache.Cache[tile.Key, *tile.Region]
	view       image.Rectangle

	updates atomic.Int64
	cursor  atomic.Int64 // index of the next chunk in view to look at
}

func NewWorldService(cfg Config, persist *Persister, logger zerolog.Logger) *WorldService {
	s := &WorldService{
		regionSize: cfg.RegionSize,
		log:        logger.With().Str("component", "world").Logger(),
		persist:    persist,
		regions:    cache.New[tile.Key, *tile.Region](cfg.CacheCapacity),
		view:       viewRect(cfg.View, cfg.RegionSize),
	}
	s.regions.OnUpdated(func(tile.Key, *tile.Region) {
		s.updates.Add(1)
	})
	s.regions.OnRemoved(func(k tile.Key, r *tile.Region) {
		s.log.Debug().Stringer("region", k).Msg("evicted")
		s.persist.Enqueue(r)
	})

	side := 2*cfg.View.Radius + 1
	if side*side > cfg.CacheCapacity {
		s.log.Warn().Int("regions", side*side).Int("cache_capacity", cfg.CacheCapacity).
			Msg("view does not fit in the cache, regions will be reloaded repeatedly")
	}
	return s
}

// viewRect is the world area covered by the regions within v.Radius of the
// region containing (v.X, v.Y).
func viewRect(v View, size int) image.Rectangle {
	k := tile.RegionKey(v.X, v.Y, size)
	origin := image.Pt(k.X-v.Radius*size, k.Y-v.Radius*size)
	side := (2*v.Radius + 1) * size
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(side, side))}
}

func (s *WorldService) View() image.Rectangle { return s.view }

// Updates counts region inserts and updates since start.
func (s *WorldService) Updates() int64 { return s.updates.Load() }

// Region returns the region containing the world pixel, loading it from disk
// or creating it on first use.
func (s *WorldService) Region(x, y int) *tile.Region {
	k := tile.RegionKey(x, y, s.regionSize)
	if r, ok := s.regions.Get(k); ok {
		return r
	}
	r, _ := s.regions.LoadOrStore(k, s.persist.Load(k))
	return r
}

// ChunkPresent reports whether the chunk containing the world pixel is known.
func (s *WorldService) ChunkPresent(x, y int) bool {
	r := s.Region(x, y)
	k := r.Key()
	c := tile.ChunkPoint(x, y)
	ok, err := r.IsSubRegionPresent(c.X-k.X, c.Y-k.Y)
	return err == nil && ok
}

// NextChunk returns the next chunk in view that is neither known nor
// requested. It walks the view row by row and resumes where the previous
// call stopped; false means every chunk is known or requested. It is meant
// for a single scheduler goroutine.
func (s *WorldService) NextChunk(requested func(x, y int) bool) (image.Point, bool) {
	cols := s.view.Dx() / tile.ChunkSize
	total := cols * (s.view.Dy() / tile.ChunkSize)

	idx := int(s.cursor.Load()) % total
	defer func() { s.cursor.Store(int64(idx)) }()
	for i := 0; i < total; i++ {
		pt := image.Pt(
			s.view.Min.X+(idx%cols)*tile.ChunkSize,
			s.view.Min.Y+(idx/cols)*tile.ChunkSize,
		)
		idx = (idx + 1) % total
		if requested != nil && requested(pt.X, pt.Y) {
			continue
		}
		if !s.ChunkPresent(pt.X, pt.Y) {
			return pt, true
		}
	}
	return image.Point{}, false
}

// OnChunk merges a received chunk into its region.
func (s *WorldService) OnChunk(ch *tile.Chunk) {
	k := ch.Key()
	r := s.Region(k.X, k.Y)
	if err := r.SetSubRegion(ch); err != nil {
		s.log.Error().Err(err).Stringer("chunk", k).Msg("merge chunk")
		return
	}
	s.regions.Put(r.Key(), r)
}

// ApplyPixelChange paints an observed edit if its pixel is known. Edits in
// regions that are not cached are dropped; the chunk will be fetched fresh.
func (s *WorldService) ApplyPixelChange(pc tile.PixelChange) bool {
	k := tile.RegionKey(pc.X, pc.Y, s.regionSize)
	r, ok := s.regions.Peek(k)
	if !ok {
		return false
	}
	changed, err := r.SetPixel(pc.X-k.X, pc.Y-k.Y, pc.Color)
	if err != nil || !changed {
		return false
	}
	s.regions.Put(k, r)
	return true
}

// SaveAll writes every cached region and everything still queued.
func (s *WorldService) SaveAll() error {
	var first error
	for _, r := range s.regions.Values() {
		if err := s.persist.Save(r); err != nil {
			s.log.Error().Err(err).Stringer("region", r.Key()).Msg("save")
			if first == nil {
				first = err
			}
		}
	}
	if err := s.persist.Flush(); err != nil && first == nil {
		first = err
	}
	return first
}
