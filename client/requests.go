package client

import (
	"image"
	"sync"
	"time"

	"github.com/icexin/pixelcraft/tile"
)

const (
	// MaxPendingRequests is the outstanding chunk request ceiling of a live connection.
	MaxPendingRequests = 1024

	// DummyMaxPendingRequests is the ceiling of the simulation client.
	DummyMaxPendingRequests = 10

	// RequestTimeout is the age after which an unanswered chunk request is sent again.
	RequestTimeout = 2 * time.Second
)

// PendingRequest is an outstanding chunk request. Chunk is the chunk-aligned
// world position.
type PendingRequest struct {
	Chunk    image.Point
	IssuedAt time.Time
	Attempts int
}

// Requests tracks outstanding chunk requests so that each chunk is asked for
// at most once until it arrives or times out.
type Requests struct {
	ceiling  int
	timeout  time.Duration
	now      func() time.Time
	transmit func(image.Point) error

	mu      sync.Mutex
	pending map[image.Point]*PendingRequest
}

func NewRequests(ceiling int, timeout time.Duration, now func() time.Time, transmit func(image.Point) error) *Requests {
	if now == nil {
		now = time.Now
	}
	return &Requests{
		ceiling:  ceiling,
		timeout:  timeout,
		now:      now,
		transmit: transmit,
		pending:  make(map[image.Point]*PendingRequest),
	}
}

// Send requests the chunk containing the world pixel unless a request for it
// is already outstanding.
func (r *Requests) Send(x, y int) error {
	pt := tile.ChunkPoint(x, y)

	r.mu.Lock()
	if _, ok := r.pending[pt]; ok {
		r.mu.Unlock()
		return nil
	}
	r.pending[pt] = &PendingRequest{Chunk: pt, IssuedAt: r.now(), Attempts: 1}
	r.mu.Unlock()

	if err := r.transmit(pt); err != nil {
		r.mu.Lock()
		delete(r.pending, pt)
		r.mu.Unlock()
		return err
	}
	return nil
}

// CanRequest reports whether another request fits under the ceiling.
func (r *Requests) CanRequest() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending) < r.ceiling
}

// RetryStale sends again every request older than the timeout and returns how
// many were sent. Retried entries keep their slot, so the pending count does
// not change. When a send fails, the entries not sent yet stay stale.
func (r *Requests) RetryStale() (int, error) {
	now := r.now()

	var stale []PendingRequest
	r.mu.Lock()
	for _, req := range r.pending {
		if now.Sub(req.IssuedAt) > r.timeout {
			stale = append(stale, *req)
			req.IssuedAt = now
			req.Attempts++
		}
	}
	r.mu.Unlock()

	for i, prev := range stale {
		if err := r.transmit(prev.Chunk); err != nil {
			r.restore(stale[i:], now)
			return i, err
		}
	}
	return len(stale), nil
}

// restore undoes the refresh of retries that were never sent, unless the
// entry has been completed or replaced meanwhile.
func (r *Requests) restore(prev []PendingRequest, refreshed time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prev {
		req, ok := r.pending[p.Chunk]
		if ok && req.IssuedAt.Equal(refreshed) && req.Attempts == p.Attempts+1 {
			*req = p
		}
	}
}

func (r *Requests) IsRequested(x, y int) bool {
	pt := tile.ChunkPoint(x, y)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[pt]
	return ok
}

// Get returns a copy of the pending entry for the chunk containing the world pixel.
func (r *Requests) Get(x, y int) (PendingRequest, bool) {
	pt := tile.ChunkPoint(x, y)
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[pt]
	if !ok {
		return PendingRequest{}, false
	}
	return *req, true
}

// Complete drops the entry for an arrived chunk. Unknown chunks are ignored
// since their request may already have been retried and answered.
func (r *Requests) Complete(x, y int) bool {
	pt := tile.ChunkPoint(x, y)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[pt]; !ok {
		return false
	}
	delete(r.pending, pt)
	return true
}

func (r *Requests) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Clear forgets every outstanding request.
func (r *Requests) Clear() {
	r.mu.Lock()
	r.pending = make(map[image.Point]*PendingRequest)
	r.mu.Unlock()
}
