package acquisition

import "fmt"

// Kind identifies one averaged quantity.
type Kind int

const (
	Temperature Kind = iota
	Humidity
	SoilTemperature
	Moisture1
	Moisture2
	Moisture3
	BatteryVoltage

	kindCount
)

var kindNames = [kindCount]string{
	Temperature:     "temperature",
	Humidity:        "humidity",
	SoilTemperature: "soil_temperature",
	Moisture1:       "hygro_1",
	Moisture2:       "hygro_2",
	Moisture3:       "hygro_3",
	BatteryVoltage:  "voltage",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds lists every reading kind in sampling order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Reading is the averaged value of one kind over the current window. Valid
// is false until at least one good sample has been accumulated.
type Reading struct {
	Kind    Kind
	Value   float64
	Valid   bool
	Samples int
}

// Level is the water-tank level decoded from the two float switches.
type Level int8

const (
	LevelSensorFault Level = -1
	LevelEmpty       Level = 0
	LevelMid         Level = 2
	LevelFull        Level = 5
)

func (l Level) String() string {
	switch l {
	case LevelEmpty:
		return "empty"
	case LevelMid:
		return "mid"
	case LevelFull:
		return "full"
	default:
		return "sensor_fault"
	}
}

// DecodeLevel maps logical switch states (true = switch closed by water) to a
// level. The upper switch closed while the lower one is open cannot happen on a
// correctly wired tank and is reported as LevelSensorFault.
func DecodeLevel(low, high bool) Level {
	switch {
	case !low && !high:
		return LevelEmpty
	case low && !high:
		return LevelMid
	case low && high:
		return LevelFull
	default:
		return LevelSensorFault
	}
}

// LevelFromRaw decodes raw pin levels. The switches are pulled high, so a raw
// low pin is a closed switch.
func LevelFromRaw(rawLow, rawHigh bool) Level {
	return DecodeLevel(!rawLow, !rawHigh)
}

// AnalogMax is the full-scale value of the 12-bit ADC.
const AnalogMax = 4095

// MoisturePercent converts a raw probe sample to percent wet, the linear
// inversion (AnalogMax - raw) / (AnalogMax / 100): raw 0 is saturated soil
// (100 %), AnalogMax is bone dry (0 %). Multiplying first keeps both ends exact.
func MoisturePercent(raw int) float64 {
	return float64(AnalogMax-raw) * 100 / AnalogMax
}

// Snapshot is the full set of values exposed to the decision layer.
type Snapshot struct {
	Round           int
	Temperature     Reading
	Humidity        Reading
	SoilTemperature Reading
	Moisture        [3]Reading
	BatteryVoltage  Reading
	Level           Level
}

// LogFields flattens the snapshot into zap key/value pairs. Invalid readings
// are logged as nil so they are never mistaken for zero.
func (s Snapshot) LogFields() []interface{} {
	fields := []interface{}{"round", s.Round}
	for _, r := range []Reading{s.Temperature, s.Humidity, s.SoilTemperature, s.Moisture[0], s.Moisture[1], s.Moisture[2], s.BatteryVoltage} {
		if r.Valid {
			fields = append(fields, r.Kind.String(), r.Value)
		} else {
			fields = append(fields, r.Kind.String(), nil)
		}
	}
	return append(fields, "level", s.Level.String())
}
