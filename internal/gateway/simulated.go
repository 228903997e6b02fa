package gateway

import (
	"math"
)

// TankLevel is the water level the simulated float switches report.
type TankLevel int

const (
	TankEmpty TankLevel = iota
	TankMid
	TankFull
)

// SimulatedOptions shapes the values a Simulated gateway produces.
type SimulatedOptions struct {
	Pins Pins
	// MoistureRaw is the starting raw reading of each probe.
	MoistureRaw [3]int
	// DryingPerRead is added to every probe's raw value on each read, so the
	// soil slowly dries out over a run.
	DryingPerRead int
	BaseTempC     float64
	BaseHumidity  float64
	SoilTempC     float64
	BatteryRaw    int
	Tank          TankLevel
	// FaultEvery makes every Nth air and soil transaction fail. Zero disables
	// fault injection.
	FaultEvery int
}

// Simulated is a host-side gateway producing plausible, deterministic values.
type Simulated struct {
	opts     SimulatedOptions
	moisture [3]int
	reads    int
	outputs  map[Channel]bool
}

// NewSimulated returns a Simulated gateway.
func NewSimulated(opts SimulatedOptions) *Simulated {
	return &Simulated{
		opts:     opts,
		moisture: opts.MoistureRaw,
		outputs:  make(map[Channel]bool),
	}
}

func (s *Simulated) ReadAnalog(ch Channel) (int, error) {
	for i, p := range s.opts.Pins.Moisture {
		if ch != p {
			continue
		}
		// Unpowered probes float to the dry end of the scale.
		if !s.outputs[s.opts.Pins.ProbePower] {
			return analogMax, nil
		}
		v := s.moisture[i]
		s.moisture[i] = clampRaw(v + s.opts.DryingPerRead)
		return v, nil
	}
	if ch == s.opts.Pins.Battery {
		return s.opts.BatteryRaw, nil
	}
	return 0, ErrNoReading
}

// ReadDigital reports raw float-switch levels. The switches pull the input
// high when open, so a submerged switch reads low.
func (s *Simulated) ReadDigital(ch Channel) (bool, error) {
	switch ch {
	case s.opts.Pins.LevelLow:
		return s.opts.Tank == TankEmpty, nil
	case s.opts.Pins.LevelHigh:
		return s.opts.Tank != TankFull, nil
	}
	return s.outputs[ch], nil
}

func (s *Simulated) WriteDigital(ch Channel, high bool) error {
	s.outputs[ch] = high
	return nil
}

func (s *Simulated) ReadTemperatureHumidity() (float64, float64, error) {
	s.reads++
	if s.faulted() {
		return math.NaN(), math.NaN(), nil
	}
	swing := math.Sin(float64(s.reads) / 8)
	return s.opts.BaseTempC + 2*swing, s.opts.BaseHumidity - 5*swing, nil
}

func (s *Simulated) ReadOneWireTemperature() (float64, error) {
	if s.faulted() {
		return DisconnectedOneWire, nil
	}
	return s.opts.SoilTempC + 0.5*math.Sin(float64(s.reads)/16), nil
}

func (s *Simulated) faulted() bool {
	return s.opts.FaultEvery > 0 && s.reads%s.opts.FaultEvery == 0
}

const analogMax = 4095

func clampRaw(v int) int {
	if v < 0 {
		return 0
	}
	if v > analogMax {
		return analogMax
	}
	return v
}
