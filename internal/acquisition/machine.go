// Package acquisition runs the moisture-probe warm-up and the four-round
// averaging of every sensor on the node.
package acquisition

import (
	"math"
	"time"

	"github.com/chrissnell/watergate/internal/clock"
	"github.com/chrissnell/watergate/internal/gateway"
	"go.uber.org/zap"
)

// Window is the number of rounds averaged before the accumulators restart.
const Window = 4

const (
	DefaultSensorInterval    = 15 * time.Second
	DefaultWarmup            = 500 * time.Millisecond
	DefaultVoltageMultiplier = 576.0
)

// Physical limits outside of which a sample is discarded.
const (
	minAirTemp  = -40.0
	maxAirTemp  = 80.0
	maxSoilTemp = 125.0
)

// State is the machine's position in the priming cycle.
type State int

const (
	Idle State = iota
	Priming
	Sampling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case Sampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// Options configures a Machine. Zero durations and multiplier take the
// defaults.
type Options struct {
	Pins              gateway.Pins
	SensorInterval    time.Duration
	Warmup            time.Duration
	VoltageMultiplier float64
	TemperatureOffset float64
	HumidityOffset    float64
}

type accumulator struct {
	sum float64
	n   int
}

func (a accumulator) mean() float64 {
	return a.sum / float64(max(a.n, 1))
}

// Machine owns the probe power state and every accumulator. It is advanced by
// calling Step from the control loop and never blocks on its own.
type Machine struct {
	clk    clock.Clock
	gw     gateway.Gateway
	opts   Options
	logger *zap.SugaredLogger

	intervalMs uint32
	warmupMs   uint32

	state       State
	hasPrimed   bool
	primedAt    uint32
	hygroActive bool

	round int
	acc   [kindCount]accumulator
	level Level
}

// New returns a Machine in the Idle state.
func New(clk clock.Clock, gw gateway.Gateway, opts Options, logger *zap.SugaredLogger) *Machine {
	if opts.SensorInterval <= 0 {
		opts.SensorInterval = DefaultSensorInterval
	}
	if opts.Warmup <= 0 {
		opts.Warmup = DefaultWarmup
	}
	if opts.VoltageMultiplier <= 0 {
		opts.VoltageMultiplier = DefaultVoltageMultiplier
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Machine{
		clk:        clk,
		gw:         gw,
		opts:       opts,
		logger:     logger,
		intervalMs: uint32(opts.SensorInterval.Milliseconds()),
		warmupMs:   uint32(opts.Warmup.Milliseconds()),
		state:      Idle,
		level:      LevelSensorFault,
	}
}

// Step performs at most one transition and reports whether a sampling pass
// completed. A machine that has never primed starts priming on its first Step.
func (m *Machine) Step() bool {
	now := m.clk.MonotonicMillis()

	switch m.state {
	case Idle:
		if m.hasPrimed && clock.Elapsed(now, m.primedAt) < m.intervalMs {
			return false
		}
		m.prime(now)
		m.state = Priming
		return false

	case Priming:
		if clock.Elapsed(now, m.primedAt) < m.warmupMs {
			return false
		}
		m.state = Sampling
		m.sample()
		m.state = Idle
		return true
	}

	return false
}

func (m *Machine) prime(now uint32) {
	if err := m.gw.WriteDigital(m.opts.Pins.ProbePower, true); err != nil {
		m.logger.Warnw("failed to energize moisture probes", "error", err)
	}
	m.hygroActive = true
	m.hasPrimed = true
	m.primedAt = now
}

func (m *Machine) powerDown() {
	if err := m.gw.WriteDigital(m.opts.Pins.ProbePower, false); err != nil {
		m.logger.Warnw("failed to power down moisture probes", "error", err)
	}
	m.hygroActive = false
}

// Halt abandons a priming pass and powers the probes down. It is called when
// the wake window closes so the probes never stay energized through sleep.
func (m *Machine) Halt() {
	if m.hygroActive {
		m.powerDown()
	}
	m.state = Idle
}

func (m *Machine) sample() {
	m.round++
	if m.round > Window {
		m.round = 1
		m.acc = [kindCount]accumulator{}
	}

	m.sampleAir()
	m.sampleLevel()
	m.sampleMoisture()
	m.powerDown()
	m.sampleBattery()

	m.logger.Debugw("sampling pass complete", m.Readings().LogFields()...)
}

func (m *Machine) add(k Kind, v float64) {
	m.acc[k].sum += v
	m.acc[k].n++
}

func (m *Machine) sampleAir() {
	temp, hum, err := m.gw.ReadTemperatureHumidity()
	if err != nil {
		m.logger.Debugw("air sensor read failed", "round", m.round, "error", err)
	} else {
		if t := temp + m.opts.TemperatureOffset; !math.IsNaN(t) && t >= minAirTemp && t <= maxAirTemp {
			m.add(Temperature, t)
		} else {
			m.logger.Debugw("discarding temperature sample", "round", m.round, "value", temp)
		}
		if h := hum + m.opts.HumidityOffset; !math.IsNaN(h) && h >= 0 && h <= 100 {
			m.add(Humidity, h)
		} else {
			m.logger.Debugw("discarding humidity sample", "round", m.round, "value", hum)
		}
	}

	soil, err := m.gw.ReadOneWireTemperature()
	if err == nil && !math.IsNaN(soil) && soil > gateway.DisconnectedOneWire && soil <= maxSoilTemp {
		m.add(SoilTemperature, soil)
	} else {
		m.logger.Debugw("discarding soil temperature sample", "round", m.round, "value", soil, "error", err)
	}
}

func (m *Machine) sampleLevel() {
	rawLow, errLow := m.gw.ReadDigital(m.opts.Pins.LevelLow)
	rawHigh, errHigh := m.gw.ReadDigital(m.opts.Pins.LevelHigh)
	if errLow != nil || errHigh != nil {
		m.logger.Debugw("level switch read failed", "low_error", errLow, "high_error", errHigh)
		m.level = LevelSensorFault
		return
	}
	m.level = LevelFromRaw(rawLow, rawHigh)
}

func (m *Machine) sampleMoisture() {
	for i, ch := range m.opts.Pins.Moisture {
		raw, err := m.gw.ReadAnalog(ch)
		if err != nil || raw < 0 || raw > AnalogMax {
			m.logger.Debugw("discarding moisture sample", "probe", i+1, "raw", raw, "error", err)
			continue
		}
		m.add(Moisture1+Kind(i), MoisturePercent(raw))
	}
}

func (m *Machine) sampleBattery() {
	raw, err := m.gw.ReadAnalog(m.opts.Pins.Battery)
	if err != nil || raw < 0 || raw > AnalogMax {
		m.logger.Debugw("discarding battery sample", "raw", raw, "error", err)
		return
	}
	m.add(BatteryVoltage, float64(raw)/m.opts.VoltageMultiplier)
}

// Reading returns the current average of k.
func (m *Machine) Reading(k Kind) Reading {
	a := m.acc[k]
	return Reading{Kind: k, Value: a.mean(), Valid: a.n > 0, Samples: a.n}
}

// Readings returns every current average and the last decoded level.
func (m *Machine) Readings() Snapshot {
	return Snapshot{
		Round:           m.round,
		Temperature:     m.Reading(Temperature),
		Humidity:        m.Reading(Humidity),
		SoilTemperature: m.Reading(SoilTemperature),
		Moisture:        [3]Reading{m.Reading(Moisture1), m.Reading(Moisture2), m.Reading(Moisture3)},
		BatteryVoltage:  m.Reading(BatteryVoltage),
		Level:           m.level,
	}
}

// Level returns the level decoded in the last sampling pass.
func (m *Machine) Level() Level {
	return m.level
}

// Round returns the position in the current averaging window, 0 before the
// first pass.
func (m *Machine) Round() int {
	return m.round
}

// ProbesPowered reports whether the moisture probes are energized.
func (m *Machine) ProbesPowered() bool {
	return m.hygroActive
}

// State returns the current acquisition state.
func (m *Machine) State() State {
	return m.state
}
