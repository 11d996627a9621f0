package client

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// Session is the per-connection state assigned by the server. Id, quota and
// rank start unset; the session is ready once all three have arrived.
type Session struct {
	now func() time.Time

	mu        sync.Mutex
	id        uint32
	hasID     bool
	quota     Quota
	hasQuota  bool
	rank      uint8
	hasRank   bool
	pos       image.Point
	lastWrite time.Time

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSession starts the write cooldown at creation time, so the first write
// waits one full delay after the quota is known.
func NewSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		now:       now,
		lastWrite: now(),
		ready:     make(chan struct{}),
	}
}

// SetID records the connection id. A second assignment is a protocol violation.
func (s *Session) SetID(id uint32) error {
	s.mu.Lock()
	if s.hasID {
		prev := s.id
		s.mu.Unlock()
		return fmt.Errorf("%w: id already set to %d, got %d", ErrProtocolViolation, prev, id)
	}
	s.id, s.hasID = id, true
	s.mu.Unlock()
	s.checkReady()
	return nil
}

func (s *Session) SetQuota(q Quota) {
	s.mu.Lock()
	s.quota, s.hasQuota = q, true
	s.mu.Unlock()
	s.checkReady()
}

func (s *Session) SetRank(rank uint8) {
	s.mu.Lock()
	s.rank, s.hasRank = rank, true
	s.mu.Unlock()
	s.checkReady()
}

func (s *Session) checkReady() {
	s.mu.Lock()
	ok := s.hasID && s.hasQuota && s.hasRank
	s.mu.Unlock()
	if ok {
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *Session) ID() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.hasID
}

func (s *Session) Quota() (Quota, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota, s.hasQuota
}

func (s *Session) Rank() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rank, s.hasRank
}

// Ready is closed once id, quota and rank are all set.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

func (s *Session) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Position is the player position in world pixels.
func (s *Session) Position() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Session) SetPosition(x, y int) {
	s.mu.Lock()
	s.pos = image.Pt(x, y)
	s.mu.Unlock()
}

// SetOwnPlayer updates the position from a player-list entry if it is us.
// Player positions arrive in sub-pixel units.
func (s *Session) SetOwnPlayer(id uint32, subX, subY int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasID || id != s.id {
		return false
	}
	s.pos = image.Pt(int(subX>>4), int(subY>>4))
	return true
}

// untilWrite returns how long the caller must wait before the next write.
func (s *Session) untilWrite() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.untilWriteLocked()
}

func (s *Session) untilWriteLocked() (time.Duration, error) {
	if !s.hasQuota {
		return 0, ErrNotReady
	}
	delay, ok := s.quota.Delay()
	if !ok {
		return 0, ErrNotReady
	}
	elapsed := s.now().Sub(s.lastWrite)
	if elapsed >= delay {
		return 0, nil
	}
	return delay - elapsed, nil
}

// CanSetPixel reports whether the quota is known and at least one delay has
// passed since the last write.
func (s *Session) CanSetPixel() bool {
	wait, err := s.untilWrite()
	return err == nil && wait == 0
}

// ReserveWrite claims the write slot. The caller must transmit the write
// right after a successful reservation.
func (s *Session) ReserveWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wait, err := s.untilWriteLocked()
	if err != nil {
		return err
	}
	if wait > 0 {
		return fmt.Errorf("%w: %v left", ErrCooldown, wait)
	}
	s.lastWrite = s.now()
	return nil
}
