package clock

import (
	"testing"
	"time"
)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name     string
		now      uint32
		since    uint32
		expected uint32
	}{
		{name: "no wrap", now: 1500, since: 1000, expected: 500},
		{name: "equal", now: 42, since: 42, expected: 0},
		{name: "across wrap", now: 100, since: 0xFFFFFF9C, expected: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(tt.now, tt.since); got != tt.expected {
				t.Errorf("Elapsed(%d, %d) = %d, expected %d", tt.now, tt.since, got, tt.expected)
			}
		})
	}
}

func TestSystemWallClockUnknownUntilSet(t *testing.T) {
	s := NewSystem()
	if _, ok := s.WallClockNow(); ok {
		t.Fatal("wall clock should be unknown before SetWallClock")
	}

	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetWallClock(want)

	got, ok := s.WallClockNow()
	if !ok {
		t.Fatal("wall clock should be known after SetWallClock")
	}
	if got.Before(want) || got.Sub(want) > time.Second {
		t.Errorf("WallClockNow = %v, expected close to %v", got, want)
	}
}

func TestFakeAdvance(t *testing.T) {
	f := NewFake(0)
	f.Advance(1500 * time.Millisecond)
	if f.MonotonicMillis() != 1500 {
		t.Errorf("MonotonicMillis = %d, expected 1500", f.MonotonicMillis())
	}
	if _, ok := f.WallClockNow(); ok {
		t.Error("Advance must not make an unknown wall clock known")
	}
}
