// Package wake classifies each wake of the node, keeps the retained boot and
// fail-safe counters, and decides how long the node sleeps next.
package wake

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/watergate/internal/clock"
	"github.com/chrissnell/watergate/internal/retained"
	"go.uber.org/zap"
)

// FailSafeFloor is the lowest value the fail-safe counter takes. Reaching it
// tells the decision layer that too many timer wakes passed without a manual
// one.
const FailSafeFloor = 0

// FallbackSleep is slept when no trustworthy clock is available.
const FallbackSleep = 3600

// Wake windows: how long the node stays up polling sensors before sleeping.
const (
	ShortWakeWindow = 30 * time.Second
	LongWakeWindow  = 120 * time.Second
)

// ErrAlreadyClassified is returned when ClassifyWake runs twice in one wake.
var ErrAlreadyClassified = errors.New("wake already classified")

// ErrNotClassified is returned by counter writes made before ClassifyWake.
var ErrNotClassified = errors.New("wake not classified yet")

// HardwareCause reads the wake-cause register.
type HardwareCause interface {
	WakeCause() RawCause
}

// StaticCause is a HardwareCause that always reports the same code.
type StaticCause RawCause

func (s StaticCause) WakeCause() RawCause {
	return RawCause(s)
}

// TimeSource is anything able to produce the reconciled wall-clock time.
type TimeSource interface {
	ReconciledNow() (time.Time, error)
}

// Orchestrator is the only writer of the retained counters.
type Orchestrator struct {
	hw       HardwareCause
	store    retained.Store
	ceiling  int
	logger   *zap.SugaredLogger
	location *time.Location

	classified bool
	cause      Cause
	counters   retained.Counters
}

// NewOrchestrator returns an Orchestrator. ceiling is the fail-safe value a
// cold power-up starts from; loc is the zone hours are aligned in.
func NewOrchestrator(hw HardwareCause, store retained.Store, ceiling int, loc *time.Location, logger *zap.SugaredLogger) *Orchestrator {
	if ceiling <= FailSafeFloor {
		ceiling = retained.DefaultFailSafeCeiling
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{hw: hw, store: store, ceiling: ceiling, location: loc, logger: logger}
}

// ClassifyWake works out why the node is awake and updates the retained
// counters: the boot counter always goes up by one, the fail-safe counter goes
// down by one on timer wakes only and never below FailSafeFloor. A cold boot
// starts from the power-up defaults whatever the store still holds. It reports
// whether the wake was manual. It must run once per wake, before any sleep
// computation.
func (o *Orchestrator) ClassifyWake() (Cause, bool, error) {
	if o.classified {
		return o.cause, o.cause == Manual, ErrAlreadyClassified
	}

	cause := Classify(o.hw.WakeCause())

	var c retained.Counters
	var fresh bool
	if cause == ColdBoot {
		// Retained memory does not survive a power-up.
		c, fresh = retained.Defaults(o.ceiling), true
	} else {
		var err error
		c, fresh, err = retained.LoadOrDefault(o.store, o.ceiling)
		if err != nil {
			// Treat an unreadable block like lost retained memory.
			o.logger.Warnw("retained counters unreadable, starting from defaults", "error", err)
			c, fresh = retained.Defaults(o.ceiling), true
		}
	}

	c.BootCount++
	if cause == Timer && c.FailSafe > FailSafeFloor {
		c.FailSafe--
	}

	o.classified = true
	o.cause = cause
	o.counters = c

	o.logger.Infow("wake classified",
		"cause", cause.String(),
		"boot_count", c.BootCount,
		"fail_safe", c.FailSafe,
		"retained_fresh", fresh,
	)

	if err := o.store.Save(c); err != nil {
		return cause, cause == Manual, fmt.Errorf("save retained counters: %w", err)
	}
	return cause, cause == Manual, nil
}

// Cause returns the classification of the current wake.
func (o *Orchestrator) Cause() Cause {
	return o.cause
}

func (o *Orchestrator) BootCount() int {
	return o.counters.BootCount
}

func (o *Orchestrator) FailSafeCounter() int {
	return o.counters.FailSafe
}

// FailSafeExpired reports whether the counter reached its floor.
func (o *Orchestrator) FailSafeExpired() bool {
	return o.classified && o.counters.FailSafe <= FailSafeFloor
}

// ResetFailSafe restores the counter to its ceiling once the decision layer
// has acted on an expired fail-safe. It fails with ErrNotClassified before
// ClassifyWake has run.
func (o *Orchestrator) ResetFailSafe() error {
	if !o.classified {
		return ErrNotClassified
	}
	o.counters.FailSafe = o.ceiling
	if err := o.store.Save(o.counters); err != nil {
		return fmt.Errorf("save retained counters: %w", err)
	}
	return nil
}

// WakeWindow returns how long the node stays awake for this wake: manual
// wakes get the long window so someone at the node can watch it work.
func (o *Orchestrator) WakeWindow() time.Duration {
	if o.cause == Manual {
		return LongWakeWindow
	}
	return ShortWakeWindow
}

// SecondsUntilNextHour returns the seconds left until the top of the next
// hour in the orchestrator's zone, or FallbackSleep when ts has no time.
func (o *Orchestrator) SecondsUntilNextHour(ts TimeSource) int {
	return SecondsUntilNextHour(ts, o.location)
}

// SecondsUntilNextHour returns 3600 - (minute*60 + second) of the current
// time in loc, or FallbackSleep when ts reports an unknown time.
func SecondsUntilNextHour(ts TimeSource, loc *time.Location) int {
	now, err := ts.ReconciledNow()
	if err != nil {
		return FallbackSleep
	}
	if loc != nil {
		now = now.In(loc)
	}
	return 3600 - (now.Minute()*60 + now.Second())
}

// CurrentHour returns the hour of day in loc, or clock.ErrTimeUnknown.
func CurrentHour(ts TimeSource, loc *time.Location) (int, error) {
	now, err := ts.ReconciledNow()
	if err != nil {
		return -1, err
	}
	if loc != nil {
		now = now.In(loc)
	}
	return now.Hour(), nil
}

// unknownTime is a TimeSource that never knows the time.
type unknownTime struct{}

func (unknownTime) ReconciledNow() (time.Time, error) {
	return time.Time{}, clock.ErrTimeUnknown
}

// NoClock is the TimeSource of a node with neither network nor RTC.
var NoClock TimeSource = unknownTime{}
