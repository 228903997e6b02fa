// Package gateway is the raw sensor boundary: analog and digital pins, the
// DHT22 air sensor and the DS18B20 one-wire soil probe. Implementations return
// raw values; judging them valid is the acquisition machine's job.
package gateway

import (
	"errors"
	"fmt"
)

// Channel identifies a pin on the node.
type Channel uint8

func (c Channel) String() string {
	return fmt.Sprintf("GPIO%d", uint8(c))
}

// DisconnectedOneWire is the temperature a DS18B20 driver reports when the
// probe does not answer.
const DisconnectedOneWire = -127.0

// ErrNoReading is returned when a sensor produced nothing usable this round.
var ErrNoReading = errors.New("no reading")

// Gateway performs the actual sensor transactions. Every call is atomic and
// bounded in latency; none of them retry.
type Gateway interface {
	ReadAnalog(ch Channel) (int, error)
	ReadDigital(ch Channel) (bool, error)
	WriteDigital(ch Channel, high bool) error
	// ReadTemperatureHumidity returns air temperature (°C) and relative
	// humidity (%). Either value may be NaN when the sensor misread it.
	ReadTemperatureHumidity() (float64, float64, error)
	// ReadOneWireTemperature returns the soil probe temperature (°C), NaN or
	// DisconnectedOneWire when the probe is missing.
	ReadOneWireTemperature() (float64, error)
}

// Pins maps the node's sensors to channels.
type Pins struct {
	ProbePower Channel
	Moisture   [3]Channel
	LevelLow   Channel
	LevelHigh  Channel
	Battery    Channel
}

// DefaultPins is the wiring of the reference board.
var DefaultPins = Pins{
	ProbePower: 25,
	Moisture:   [3]Channel{34, 32, 35},
	LevelLow:   18,
	LevelHigh:  19,
	Battery:    33,
}
