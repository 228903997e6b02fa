// Package node runs the wake cycle of the irrigation sensor node: classify the
// wake, bring up time, poll the sensors for the wake window and work out how
// long to sleep.
package node

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/chrissnell/watergate/internal/acquisition"
	"github.com/chrissnell/watergate/internal/clock"
	"github.com/chrissnell/watergate/internal/gateway"
	"github.com/chrissnell/watergate/internal/retained"
	"github.com/chrissnell/watergate/internal/timesync"
	"github.com/chrissnell/watergate/internal/wake"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often the control loop steps the acquisition
// machine while awake.
const DefaultPollInterval = 50 * time.Millisecond

// Sleeper puts the node into deep sleep and reports what woke it.
type Sleeper interface {
	DeepSleep(ctx context.Context, d time.Duration) (wake.RawCause, error)
}

// Components are the collaborators a Node drives. RTC and Network may be nil
// on boards without them.
type Components struct {
	Clock   clock.Clock
	Gateway gateway.Gateway
	Store   retained.Store
	RTC     timesync.RTC
	Network timesync.NetworkTime
}

// Config tunes a Node. Zero values take the package defaults.
type Config struct {
	Acquisition     acquisition.Options
	FailSafeCeiling int
	Location        *time.Location
	PollInterval    time.Duration
}

// CycleReport summarizes one wake.
type CycleReport struct {
	ID              uuid.UUID
	Cause           wake.Cause
	Manual          bool
	BootCount       int
	FailSafe        int
	FailSafeExpired bool
	RTCDegraded     bool
	NetworkTime     bool
	Rounds          int
	Readings        acquisition.Snapshot
	SleepSeconds    int
}

// Sleep returns the computed sleep as a duration.
func (r CycleReport) Sleep() time.Duration {
	return time.Duration(r.SleepSeconds) * time.Second
}

// Node is the single control thread of the sensor node.
type Node struct {
	c      Components
	cfg    Config
	logger *zap.SugaredLogger

	// pause blocks between control loop steps.
	pause func(ctx context.Context, d time.Duration) error
}

// New returns a Node.
func New(c Components, cfg Config, logger *zap.SugaredLogger) *Node {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FailSafeCeiling <= 0 {
		cfg.FailSafeCeiling = retained.DefaultFailSafeCeiling
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Node{c: c, cfg: cfg, logger: logger, pause: sleepContext}
}

// RunCycle performs one complete wake. It always returns a report with a sleep
// duration: sensor and clock problems are logged and folded into the error,
// never allowed to stop the node from going back to sleep.
func (n *Node) RunCycle(ctx context.Context, raw wake.RawCause) (CycleReport, error) {
	report := CycleReport{ID: uuid.New()}
	logger := n.logger.With("cycle", report.ID.String())
	start := n.c.Clock.MonotonicMillis()

	var errs error

	orch := wake.NewOrchestrator(wake.StaticCause(raw), n.c.Store, n.cfg.FailSafeCeiling, n.cfg.Location, logger)
	cause, manual, err := orch.ClassifyWake()
	if err != nil {
		logger.Warnw("wake classification incomplete", "error", err)
		errs = multierr.Append(errs, err)
	}
	report.Cause = cause
	report.Manual = manual
	report.BootCount = orch.BootCount()
	report.FailSafe = orch.FailSafeCounter()
	report.FailSafeExpired = orch.FailSafeExpired()
	if report.FailSafeExpired {
		logger.Warnw("fail-safe counter expired", "boot_count", report.BootCount)
	}

	ts := timesync.NewManager(n.c.Clock, n.c.RTC, n.c.Network, logger)
	ts.Boot(cause == wake.ColdBoot)
	if cause == wake.Timer || cause == wake.ColdBoot {
		if err := ts.Sync(ctx); err != nil && !errors.Is(err, timesync.ErrNoNetworkSource) {
			logger.Infow("continuing without network time", "error", err)
		}
	}
	report.RTCDegraded = ts.Degraded()
	report.NetworkTime = ts.HasNetworkTime()

	machine := acquisition.New(n.c.Clock, n.c.Gateway, n.cfg.Acquisition, logger)
	window := uint32(orch.WakeWindow().Milliseconds())

	logger.Infow("awake",
		"cause", cause.String(),
		"window", orch.WakeWindow().String(),
		"rtc_degraded", report.RTCDegraded,
		"network_time", report.NetworkTime,
	)

	for clock.Elapsed(n.c.Clock.MonotonicMillis(), start) < window {
		if machine.Step() {
			report.Rounds++
			logger.Infow("sensor readings", machine.Readings().LogFields()...)
		}
		if err := n.pause(ctx, n.cfg.PollInterval); err != nil {
			logger.Infow("wake window cut short", "error", err)
			errs = multierr.Append(errs, err)
			break
		}
	}
	machine.Halt()
	report.Readings = machine.Readings()

	report.SleepSeconds = orch.SecondsUntilNextHour(ts)
	if hour, err := wake.CurrentHour(ts, n.cfg.Location); err == nil {
		logger.Infow("going to sleep", "seconds", report.SleepSeconds, "hour", hour)
	} else {
		logger.Infow("going to sleep", "seconds", report.SleepSeconds, "hour", "unknown")
	}

	return report, errs
}

// Run loops wake cycles, starting from first, until cycles have run or ctx is
// done. cycles <= 0 runs until ctx is done.
func (n *Node) Run(ctx context.Context, sleeper Sleeper, first wake.RawCause, cycles int) error {
	raw := first
	for i := 0; cycles <= 0 || i < cycles; i++ {
		report, err := n.RunCycle(ctx, raw)
		if err != nil {
			n.logger.Warnw("cycle finished with errors", "cycle", report.ID.String(), "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if cycles > 0 && i == cycles-1 {
			return nil
		}

		raw, err = sleeper.DeepSleep(ctx, report.Sleep())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close releases the store and any collaborator that holds an open handle.
func (n *Node) Close() error {
	var err error
	if n.c.Store != nil {
		err = multierr.Append(err, n.c.Store.Close())
	}
	if c, ok := n.c.Gateway.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
