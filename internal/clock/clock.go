// Package clock supplies the node's two notions of time: a wrapping 32-bit
// uptime counter used for warm-up and interval checks, and a wall clock that
// stays unknown until something trustworthy sets it.
package clock

import (
	"errors"
	"sync"
	"time"
)

// Clock is the time source consumed by the acquisition machine and the
// orchestrator.
type Clock interface {
	// MonotonicMillis returns milliseconds since boot. The counter wraps, so
	// callers compare with Elapsed rather than subtracting signed values.
	MonotonicMillis() uint32

	// WallClockNow returns the current wall-clock time, or false when the
	// clock has never been set this boot.
	WallClockNow() (time.Time, bool)
}

// WallClockSetter is implemented by clocks whose wall time can be corrected.
type WallClockSetter interface {
	SetWallClock(t time.Time)
}

// Elapsed returns the milliseconds between since and now, correct across a
// single wrap of the uptime counter.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// System is the process clock. Uptime counts from construction and the wall
// clock is unknown until SetWallClock is called, the same way an MCU boots
// with an unset RTC domain.
type System struct {
	start time.Time

	mu       sync.RWMutex
	set      bool
	base     time.Time
	baseMono time.Time
}

// NewSystem returns a System clock whose uptime starts now.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) MonotonicMillis() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

func (s *System) WallClockNow() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return time.Time{}, false
	}
	return s.base.Add(time.Since(s.baseMono)), true
}

func (s *System) SetWallClock(t time.Time) {
	s.mu.Lock()
	s.base = t
	s.baseMono = time.Now()
	s.set = true
	s.mu.Unlock()
}

// ErrTimeUnknown reports that no trustworthy wall-clock source has been set.
// Callers fall back to fixed intervals; it is never treated as epoch zero.
var ErrTimeUnknown = errors.New("wall-clock time unknown")
