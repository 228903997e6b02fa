// Package timesync reconciles network time with the battery-backed RTC so the
// node keeps a usable wall clock across deep sleep and without a network.
package timesync

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/watergate/internal/clock"
	"go.uber.org/zap"
)

// ErrNoNetworkSource is returned by Sync when the node has no network time
// source configured.
var ErrNoNetworkSource = errors.New("no network time source")

// RTC is the battery-backed real-time clock chip.
type RTC interface {
	// Begin initializes the chip and reports whether it answered.
	Begin() bool
	// LostPower reports whether the chip's backup supply failed since it was
	// last adjusted, leaving its time meaningless.
	LostPower() bool
	Adjust(t time.Time)
	Now() time.Time
}

// NetworkTime fetches the current time from the network.
type NetworkTime interface {
	Now(ctx context.Context) (time.Time, error)
}

// Manager owns the RTC and the record of the last network fix.
type Manager struct {
	clk    clock.Clock
	sys    clock.WallClockSetter
	rtc    RTC
	net    NetworkTime
	logger *zap.SugaredLogger

	booted     bool
	rtcReady   bool
	rtcTrusted bool
	degraded   bool

	netSet   bool
	netEpoch time.Time
	netMono  uint32
}

// NewManager returns a Manager. If clk also implements clock.WallClockSetter the
// system wall clock is kept in step with every correction. rtc and net may be
// nil on boards without them.
func NewManager(clk clock.Clock, rtc RTC, net NetworkTime, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Manager{clk: clk, rtc: rtc, net: net, logger: logger}
	if s, ok := clk.(clock.WallClockSetter); ok {
		m.sys = s
	}
	return m
}

// Boot brings up the RTC. A chip that fails to initialize puts the manager in
// degraded mode for the rest of this boot; it is not retried. On a cold boot
// an RTC that lost power is seeded from whatever time is available. A trusted
// RTC is then copied into the system wall clock. Boot runs before the first
// Sync of a wake, so with a freshly started system clock there is usually
// nothing to seed from yet; the RTC is then adjusted by the next successful
// Sync through SetNetworkTime.
func (m *Manager) Boot(coldBoot bool) {
	m.booted = true

	if m.rtc == nil || !m.rtc.Begin() {
		m.degraded = true
		m.logger.Warn("RTC not found, running without battery-backed time this boot")
		return
	}
	m.rtcReady = true
	m.rtcTrusted = true

	if m.rtc.LostPower() {
		m.rtcTrusted = false
		if coldBoot {
			if t, ok := m.availableTime(); ok {
				m.rtc.Adjust(t)
				m.rtcTrusted = true
				m.logger.Infow("RTC lost power, seeded from available time", "time", t)
			} else {
				m.logger.Warn("RTC lost power and no time source is available to seed it")
			}
		} else {
			m.logger.Warn("RTC lost power, waiting for network time")
		}
	}

	if m.rtcTrusted && m.sys != nil {
		t := m.rtc.Now()
		m.sys.SetWallClock(t)
		m.logger.Debugw("system clock set from RTC", "time", t)
	}
}

// Sync asks the network for the time and, on success, corrects the RTC and
// the system wall clock. Failures leave the previous state untouched.
func (m *Manager) Sync(ctx context.Context) error {
	if m.net == nil {
		return ErrNoNetworkSource
	}

	t, err := m.net.Now(ctx)
	if err != nil {
		m.logger.Warnw("network time unavailable", "error", err)
		return err
	}
	m.SetNetworkTime(t)
	return nil
}

// SetNetworkTime records a network time fix taken now.
func (m *Manager) SetNetworkTime(t time.Time) {
	m.netEpoch = t
	m.netMono = m.clk.MonotonicMillis()
	m.netSet = true

	if m.sys != nil {
		m.sys.SetWallClock(t)
	}

	if !m.rtcReady {
		m.logger.Debug("RTC not initialized, skipping adjust")
		return
	}
	m.rtc.Adjust(t)
	m.rtcTrusted = true
	m.logger.Infow("RTC adjusted from network time", "time", t)
}

// ReconciledNow returns network-derived time when a fix was taken this boot,
// otherwise the RTC when it is trusted. With neither it returns
// clock.ErrTimeUnknown.
func (m *Manager) ReconciledNow() (time.Time, error) {
	if m.netSet {
		elapsed := clock.Elapsed(m.clk.MonotonicMillis(), m.netMono)
		return m.netEpoch.Add(time.Duration(elapsed) * time.Millisecond), nil
	}
	if m.rtcReady && m.rtcTrusted {
		return m.rtc.Now(), nil
	}
	return time.Time{}, clock.ErrTimeUnknown
}

// Degraded reports whether this boot runs without an RTC.
func (m *Manager) Degraded() bool {
	return m.degraded
}

// HasNetworkTime reports whether a network fix was taken this boot.
func (m *Manager) HasNetworkTime() bool {
	return m.netSet
}

func (m *Manager) availableTime() (time.Time, bool) {
	if m.netSet {
		t, _ := m.ReconciledNow()
		return t, true
	}
	return m.clk.WallClockNow()
}
