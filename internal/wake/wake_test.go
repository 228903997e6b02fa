package wake

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/chrissnell/watergate/internal/clock"
	"github.com/chrissnell/watergate/internal/retained"
)

type fixedTime struct {
	t   time.Time
	err error
}

func (f fixedTime) ReconciledNow() (time.Time, error) {
	return f.t, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw      RawCause
		expected Cause
	}{
		{raw: RawUndefined, expected: ColdBoot},
		{raw: RawAll, expected: Other},
		{raw: RawExt0, expected: Manual},
		{raw: RawExt1, expected: Other},
		{raw: RawTimer, expected: Timer},
		{raw: RawTouchpad, expected: Other},
		{raw: RawULP, expected: Other},
		{raw: RawGPIO, expected: Other},
		{raw: RawUART, expected: Other},
		{raw: 42, expected: Other},
	}

	for _, tt := range tests {
		if got := Classify(tt.raw); got != tt.expected {
			t.Errorf("Classify(%d) = %v, expected %v", tt.raw, got, tt.expected)
		}
	}
}

func TestFirstWakeStartsFromCeiling(t *testing.T) {
	store := retained.NewMemoryStore()
	o := NewOrchestrator(StaticCause(RawUndefined), store, 24, nil, nil)

	cause, manual, err := o.ClassifyWake()
	if err != nil {
		t.Fatalf("ClassifyWake: %v", err)
	}
	if cause != ColdBoot || manual {
		t.Errorf("cause = %v manual = %v, expected cold boot, not manual", cause, manual)
	}
	if o.BootCount() != 1 || o.FailSafeCounter() != 24 {
		t.Errorf("boot = %d fail-safe = %d, expected 1 and 24", o.BootCount(), o.FailSafeCounter())
	}

	saved, ok, _ := store.Load()
	if !ok || saved.BootCount != 1 || saved.FailSafe != 24 {
		t.Errorf("retained block = %+v (ok %v), expected boot 1 fail-safe 24", saved, ok)
	}
}

func TestColdBootDiscardsRetainedBlock(t *testing.T) {
	store := retained.NewMemoryStore()
	store.Save(retained.Counters{BootCount: 5, FailSafe: 3})

	o := NewOrchestrator(StaticCause(RawUndefined), store, 24, nil, nil)
	cause, _, err := o.ClassifyWake()
	if err != nil {
		t.Fatalf("ClassifyWake: %v", err)
	}
	if cause != ColdBoot {
		t.Fatalf("cause = %v, expected cold boot", cause)
	}
	if o.BootCount() != 1 || o.FailSafeCounter() != 24 {
		t.Errorf("boot = %d fail-safe = %d, expected 1 and 24", o.BootCount(), o.FailSafeCounter())
	}
	if saved, _, _ := store.Load(); saved != (retained.Counters{BootCount: 1, FailSafe: 24}) {
		t.Errorf("retained block = %+v, expected boot 1 fail-safe 24", saved)
	}
}

func TestClassifyWakeOncePerWake(t *testing.T) {
	store := retained.NewMemoryStore()
	o := NewOrchestrator(StaticCause(RawTimer), store, 24, nil, nil)

	o.ClassifyWake()
	if _, _, err := o.ClassifyWake(); !errors.Is(err, ErrAlreadyClassified) {
		t.Fatalf("second ClassifyWake = %v, expected ErrAlreadyClassified", err)
	}
	if o.BootCount() != 1 || o.FailSafeCounter() != 23 {
		t.Errorf("counters moved on the rejected call: boot %d fail-safe %d", o.BootCount(), o.FailSafeCounter())
	}
}

func TestCountersOverManyWakes(t *testing.T) {
	const ceiling = 24
	store := retained.NewMemoryStore()
	rng := rand.New(rand.NewSource(1))
	raws := []RawCause{RawTimer, RawTimer, RawTimer, RawExt0, RawExt1, RawTouchpad, RawULP}

	boot, failSafe := 0, ceiling
	for i := 0; i < 1000; i++ {
		raw := raws[rng.Intn(len(raws))]
		o := NewOrchestrator(StaticCause(raw), store, ceiling, nil, nil)

		cause, manual, err := o.ClassifyWake()
		if err != nil {
			t.Fatalf("wake %d: %v", i, err)
		}
		if manual != (cause == Manual) {
			t.Fatalf("wake %d: manual flag %v for cause %v", i, manual, cause)
		}

		boot++
		if cause == Timer && failSafe > FailSafeFloor {
			failSafe--
		}

		if o.BootCount() != boot {
			t.Fatalf("wake %d: boot count = %d, expected %d", i, o.BootCount(), boot)
		}
		if o.FailSafeCounter() != failSafe {
			t.Fatalf("wake %d (%v): fail-safe = %d, expected %d", i, cause, o.FailSafeCounter(), failSafe)
		}
		if o.FailSafeCounter() < FailSafeFloor {
			t.Fatalf("wake %d: fail-safe %d below floor", i, o.FailSafeCounter())
		}
		if o.FailSafeExpired() != (failSafe == FailSafeFloor) {
			t.Fatalf("wake %d: expired = %v with counter %d", i, o.FailSafeExpired(), failSafe)
		}
	}

	if failSafe != FailSafeFloor {
		t.Errorf("after 1000 mostly-timer wakes fail-safe = %d, expected floor", failSafe)
	}
}

func TestResetFailSafe(t *testing.T) {
	store := retained.NewMemoryStore()
	store.Save(retained.Counters{BootCount: 40, FailSafe: 1})

	o := NewOrchestrator(StaticCause(RawTimer), store, 24, nil, nil)
	if err := o.ResetFailSafe(); !errors.Is(err, ErrNotClassified) {
		t.Fatalf("ResetFailSafe before ClassifyWake = %v, expected ErrNotClassified", err)
	}
	if saved, _, _ := store.Load(); saved != (retained.Counters{BootCount: 40, FailSafe: 1}) {
		t.Fatalf("rejected reset changed the retained block to %+v", saved)
	}

	o.ClassifyWake()
	if !o.FailSafeExpired() {
		t.Fatal("expected fail-safe to expire")
	}
	if err := o.ResetFailSafe(); err != nil {
		t.Fatalf("ResetFailSafe: %v", err)
	}
	saved, _, _ := store.Load()
	if saved.FailSafe != 24 || saved.BootCount != 41 {
		t.Errorf("retained block = %+v, expected fail-safe 24 boot 41", saved)
	}
}

func TestWakeWindow(t *testing.T) {
	for raw, want := range map[RawCause]time.Duration{
		RawExt0:      LongWakeWindow,
		RawTimer:     ShortWakeWindow,
		RawUndefined: ShortWakeWindow,
	} {
		o := NewOrchestrator(StaticCause(raw), retained.NewMemoryStore(), 24, nil, nil)
		o.ClassifyWake()
		if got := o.WakeWindow(); got != want {
			t.Errorf("raw cause %d window = %v, expected %v", raw, got, want)
		}
	}
}

func TestSecondsUntilNextHour(t *testing.T) {
	if got := SecondsUntilNextHour(NoClock, time.UTC); got != FallbackSleep {
		t.Errorf("unknown clock = %d, expected %d", got, FallbackSleep)
	}
	if got := SecondsUntilNextHour(fixedTime{err: clock.ErrTimeUnknown}, time.UTC); got != 3600 {
		t.Errorf("unknown clock = %d, expected 3600", got)
	}

	for minute := 0; minute < 60; minute++ {
		for second := 0; second < 60; second++ {
			now := time.Date(2024, 7, 1, 13, minute, second, 0, time.UTC)
			want := 3600 - (minute*60 + second)
			if got := SecondsUntilNextHour(fixedTime{t: now}, time.UTC); got != want {
				t.Fatalf("%02d:%02d = %d, expected %d", minute, second, got, want)
			}
		}
	}

	boundaries := []struct {
		minute, second, expected int
	}{
		{minute: 59, second: 59, expected: 1},
		{minute: 0, second: 0, expected: 3600},
	}
	for _, b := range boundaries {
		now := time.Date(2024, 7, 1, 23, b.minute, b.second, 0, time.UTC)
		if got := SecondsUntilNextHour(fixedTime{t: now}, time.UTC); got != b.expected {
			t.Errorf("%02d:%02d = %d, expected %d", b.minute, b.second, got, b.expected)
		}
	}
}

func TestSecondsUntilNextHourUsesZone(t *testing.T) {
	// 10:00 UTC is 15:30 at +05:30, half an hour before the local hour.
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	o := NewOrchestrator(StaticCause(RawTimer), retained.NewMemoryStore(), 24, loc, nil)
	if got := o.SecondsUntilNextHour(fixedTime{t: now}); got != 1800 {
		t.Errorf("SecondsUntilNextHour = %d, expected 1800", got)
	}
}

func TestCurrentHour(t *testing.T) {
	if _, err := CurrentHour(NoClock, time.UTC); !errors.Is(err, clock.ErrTimeUnknown) {
		t.Errorf("CurrentHour without clock = %v, expected ErrTimeUnknown", err)
	}
	loc := time.FixedZone("CEST", 2*3600)
	now := time.Date(2024, 7, 1, 22, 10, 0, 0, time.UTC)
	if h, err := CurrentHour(fixedTime{t: now}, loc); err != nil || h != 0 {
		t.Errorf("CurrentHour = %d, %v; expected 0", h, err)
	}
}
