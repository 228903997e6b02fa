package clock

import "time"

// Fake is a manually driven clock for tests.
type Fake struct {
	Millis uint32
	Wall   time.Time
	Known  bool
}

// NewFake returns a Fake with the given uptime and an unknown wall clock.
func NewFake(millis uint32) *Fake {
	return &Fake{Millis: millis}
}

func (f *Fake) MonotonicMillis() uint32 {
	return f.Millis
}

func (f *Fake) WallClockNow() (time.Time, bool) {
	if !f.Known {
		return time.Time{}, false
	}
	return f.Wall, true
}

func (f *Fake) SetWallClock(t time.Time) {
	f.Wall = t
	f.Known = true
}

// Advance moves uptime and, when known, the wall clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.Millis += uint32(d.Milliseconds())
	if f.Known {
		f.Wall = f.Wall.Add(d)
	}
}
