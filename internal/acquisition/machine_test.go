package acquisition

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/chrissnell/watergate/internal/clock"
	"github.com/chrissnell/watergate/internal/gateway"
)

var pins = gateway.DefaultPins

// guardedGateway fails the test if a moisture probe is read while its power
// pin is low.
type guardedGateway struct {
	*gateway.Scripted
	t *testing.T
}

func (g guardedGateway) ReadAnalog(ch gateway.Channel) (int, error) {
	for _, p := range pins.Moisture {
		if ch == p && !g.Level(pins.ProbePower) {
			g.t.Errorf("moisture probe %s read without power", ch)
		}
	}
	return g.Scripted.ReadAnalog(ch)
}

func newRig(t *testing.T) (*Machine, *clock.Fake, *gateway.Scripted) {
	t.Helper()
	clk := clock.NewFake(0)
	gw := gateway.NewScripted()
	gw.Now = clk.MonotonicMillis
	m := New(clk, guardedGateway{Scripted: gw, t: t}, Options{Pins: pins}, nil)
	return m, clk, gw
}

// runPass drives the machine through one full prime/warm-up/sample cycle.
func runPass(t *testing.T, m *Machine, clk *clock.Fake) {
	t.Helper()
	if m.Step() {
		t.Fatal("priming step must not report new data")
	}
	clk.Advance(DefaultWarmup)
	if !m.Step() {
		t.Fatal("step after warm-up should complete a sampling pass")
	}
	clk.Advance(DefaultSensorInterval - DefaultWarmup)
}

func TestTransitions(t *testing.T) {
	m, clk, _ := newRig(t)

	if m.State() != Idle {
		t.Fatalf("initial state = %v, expected idle", m.State())
	}

	m.Step()
	if m.State() != Priming || !m.ProbesPowered() {
		t.Fatalf("after first step state = %v powered = %v, expected priming and powered", m.State(), m.ProbesPowered())
	}

	clk.Advance(DefaultWarmup - time.Millisecond)
	if m.Step() || m.State() != Priming {
		t.Fatal("warm-up not elapsed, machine must keep priming")
	}

	clk.Advance(time.Millisecond)
	if !m.Step() {
		t.Fatal("expected sampling pass after warm-up")
	}
	if m.State() != Idle || m.ProbesPowered() {
		t.Fatalf("after sampling state = %v powered = %v, expected idle and unpowered", m.State(), m.ProbesPowered())
	}

	// The interval counts from the last priming.
	clk.Advance(DefaultSensorInterval - DefaultWarmup - time.Millisecond)
	m.Step()
	if m.State() != Idle {
		t.Fatal("interval not elapsed, machine must stay idle")
	}
	clk.Advance(time.Millisecond)
	m.Step()
	if m.State() != Priming {
		t.Fatal("interval elapsed, machine should prime")
	}
}

func TestRoundCycle(t *testing.T) {
	m, clk, _ := newRig(t)

	for i, want := range []int{1, 2, 3, 4, 1, 2, 3, 4, 1} {
		runPass(t, m, clk)
		if m.Round() != want {
			t.Errorf("pass %d round = %d, expected %d", i+1, m.Round(), want)
		}
	}
}

func TestWindowAverage(t *testing.T) {
	m, clk, gw := newRig(t)

	temps := []float64{20, 22, math.NaN(), 26, 30}
	for _, v := range temps {
		gw.QueueAir(v, 50)
	}
	gw.QueueSoil(10, gateway.DisconnectedOneWire, 14, 16, 18)
	gw.QueueAnalog(pins.Moisture[0], 0, 4095, 0, 4095, 2048)
	gw.QueueAnalog(pins.Battery, 2304)

	for i := 0; i < Window; i++ {
		runPass(t, m, clk)
	}

	r := m.Readings()
	if got := r.Temperature.Value; got != (20+22+26)/3.0 {
		t.Errorf("temperature = %v, expected mean of valid samples %v", got, (20+22+26)/3.0)
	}
	if r.Temperature.Samples != 3 {
		t.Errorf("temperature samples = %d, expected 3", r.Temperature.Samples)
	}
	if got := r.SoilTemperature.Value; got != (10+14+16)/3.0 {
		t.Errorf("soil temperature = %v, expected %v", got, (10+14+16)/3.0)
	}
	if got := r.Moisture[0].Value; got != 50 {
		t.Errorf("hygro 1 = %v, expected 50", got)
	}
	if got := r.BatteryVoltage.Value; got != 4.0 {
		t.Errorf("voltage = %v, expected 4.0", got)
	}

	// Fifth pass restarts the window with only its own sample.
	runPass(t, m, clk)
	r = m.Readings()
	if r.Round != 1 || r.Temperature.Value != 30 || r.Temperature.Samples != 1 {
		t.Errorf("after reset round = %d temperature = %v samples = %d, expected 1, 30, 1",
			r.Round, r.Temperature.Value, r.Temperature.Samples)
	}
}

func TestAccumulatorsZeroAfterReset(t *testing.T) {
	m, clk, gw := newRig(t)

	gw.QueueAir(20, 40)
	gw.QueueSoil(12)
	for _, ch := range pins.Moisture {
		gw.QueueAnalog(ch, 1000)
	}
	gw.QueueAnalog(pins.Battery, 2000)
	for i := 0; i < Window; i++ {
		runPass(t, m, clk)
	}

	// Every sample in the fifth pass is invalid, so whatever is left in the
	// accumulators after it is exactly what the reset produced.
	gw.QueueAirError(errors.New("checksum"))
	gw.QueueSoil(math.NaN())
	for _, ch := range pins.Moisture {
		gw.QueueAnalogError(ch, errors.New("adc"))
	}
	gw.QueueAnalog(pins.Battery, -1)
	runPass(t, m, clk)

	for _, k := range Kinds() {
		if a := m.acc[k]; a.sum != 0 || a.n != 0 {
			t.Errorf("%v accumulator = %+v, expected zero after reset", k, a)
		}
		r := m.Reading(k)
		if r.Valid || r.Value != 0 || math.IsNaN(r.Value) {
			t.Errorf("%v reading = %+v, expected invalid zero without NaN", k, r)
		}
	}
}

func TestNoValidSamplesNeverDividesByZero(t *testing.T) {
	m, _, _ := newRig(t)

	for _, k := range Kinds() {
		r := m.Reading(k)
		if r.Valid || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			t.Errorf("%v before any pass = %+v", k, r)
		}
	}
}

func TestOffsetsAndRanges(t *testing.T) {
	clk := clock.NewFake(0)
	gw := gateway.NewScripted()
	m := New(clk, gw, Options{Pins: pins, TemperatureOffset: -1.5, HumidityOffset: 3}, nil)

	gw.QueueAir(21.5, 99)
	runPass(t, m, clk)
	r := m.Readings()
	if r.Temperature.Value != 20 {
		t.Errorf("temperature = %v, expected offset applied (20)", r.Temperature.Value)
	}
	if r.Humidity.Valid {
		t.Errorf("humidity %v above 100%% after offset should be discarded", r.Humidity.Value)
	}

	gw.QueueAir(120, 50)
	runPass(t, m, clk)
	if got := m.Reading(Temperature); got.Samples != 1 {
		t.Errorf("out-of-range temperature accumulated, samples = %d", got.Samples)
	}
}

func TestMoisturePercentBounds(t *testing.T) {
	if got := MoisturePercent(0); got != 100.0 {
		t.Errorf("MoisturePercent(0) = %v, expected 100", got)
	}
	if got := MoisturePercent(AnalogMax); got != 0.0 {
		t.Errorf("MoisturePercent(%d) = %v, expected 0", AnalogMax, got)
	}
	prev := MoisturePercent(0)
	for raw := 1; raw <= AnalogMax; raw++ {
		got := MoisturePercent(raw)
		if got >= prev {
			t.Fatalf("MoisturePercent not strictly decreasing at raw %d: %v >= %v", raw, got, prev)
		}
		prev = got
	}
}

func TestDecodeLevel(t *testing.T) {
	tests := []struct {
		name     string
		low      bool
		high     bool
		expected Level
	}{
		{name: "both open", low: false, high: false, expected: LevelEmpty},
		{name: "lower closed", low: true, high: false, expected: LevelMid},
		{name: "both closed", low: true, high: true, expected: LevelFull},
		{name: "upper only", low: false, high: true, expected: LevelSensorFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeLevel(tt.low, tt.high); got != tt.expected {
				t.Errorf("DecodeLevel(%v, %v) = %v, expected %v", tt.low, tt.high, got, tt.expected)
			}
			// Pulled-high inputs: the raw pin is the inverse of the switch.
			if got := LevelFromRaw(!tt.low, !tt.high); got != tt.expected {
				t.Errorf("LevelFromRaw(%v, %v) = %v, expected %v", !tt.low, !tt.high, got, tt.expected)
			}
		})
	}

	if LevelSensorFault == LevelEmpty {
		t.Error("fault code must differ from empty")
	}
}

func TestLevelFromGateway(t *testing.T) {
	m, clk, gw := newRig(t)

	gw.QueueDigital(pins.LevelLow, false)
	gw.QueueDigital(pins.LevelHigh, true)
	runPass(t, m, clk)
	if m.Level() != LevelMid {
		t.Errorf("level = %v, expected mid", m.Level())
	}

	gw.QueueDigitalError(pins.LevelHigh, errors.New("bus"))
	runPass(t, m, clk)
	if m.Level() != LevelSensorFault {
		t.Errorf("level after read error = %v, expected sensor fault", m.Level())
	}
}

func TestProbePowerBoundedByPass(t *testing.T) {
	m, clk, gw := newRig(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		clk.Advance(time.Duration(rng.Intn(1200)) * time.Millisecond)
		before := m.State()
		done := m.Step()

		if m.ProbesPowered() != (m.State() == Priming) {
			t.Fatalf("step %d: powered = %v in state %v", i, m.ProbesPowered(), m.State())
		}
		if done && before != Priming {
			t.Fatalf("step %d: sampling completed from state %v", i, before)
		}
		if gw.Level(pins.ProbePower) != m.ProbesPowered() {
			t.Fatalf("step %d: power pin %v disagrees with machine %v", i, gw.Level(pins.ProbePower), m.ProbesPowered())
		}
	}

	// Every energize is matched by a power-down no sooner than the warm-up.
	var onAt uint32
	on := false
	for _, w := range gw.Writes {
		if w.Channel != pins.ProbePower {
			continue
		}
		if w.High {
			if on {
				t.Fatal("probes energized twice without a power-down")
			}
			on, onAt = true, w.AtMilli
			continue
		}
		if !on {
			t.Fatal("power-down without a preceding energize")
		}
		if clock.Elapsed(w.AtMilli, onAt) < uint32(DefaultWarmup.Milliseconds()) {
			t.Fatalf("probes sampled after %d ms, before warm-up", w.AtMilli-onAt)
		}
		on = false
	}
}

func TestSnapshotLogFieldsMarksInvalid(t *testing.T) {
	m, _, _ := newRig(t)
	fields := m.Readings().LogFields()

	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == "temperature" && fields[i+1] != nil {
			t.Errorf("invalid temperature logged as %v, expected nil", fields[i+1])
		}
	}
}

func TestHaltPowersDownMidPriming(t *testing.T) {
	m, _, gw := newRig(t)

	m.Step()
	if !gw.Level(pins.ProbePower) {
		t.Fatal("expected probes energized while priming")
	}

	m.Halt()
	if m.ProbesPowered() || gw.Level(pins.ProbePower) {
		t.Error("probes still powered after Halt")
	}
	if m.State() != Idle {
		t.Errorf("state after Halt = %v, expected idle", m.State())
	}
	if m.Round() != 0 {
		t.Errorf("round after abandoned pass = %d, expected 0", m.Round())
	}
}
