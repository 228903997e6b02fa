package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration of a node
type ConfigData struct {
	Node        NodeData        `json:"node"`
	Pins        PinsData        `json:"pins"`
	Acquisition AcquisitionData `json:"acquisition"`
	FailSafe    FailSafeData    `json:"fail_safe"`
	Time        TimeData        `json:"time"`
	Retained    RetainedData    `json:"retained"`
	Gateway     GatewayData     `json:"gateway"`
	Sleep       SleepData       `json:"sleep"`
	Logging     LoggingData     `json:"logging"`
}

// NodeData identifies the node in logs
type NodeData struct {
	Name string `json:"name"`
}

// PinsData holds the GPIO wiring of the sensor board
type PinsData struct {
	ProbePower int    `json:"probe_power"`
	Moisture   [3]int `json:"moisture"`
	LevelLow   int    `json:"level_low"`
	LevelHigh  int    `json:"level_high"`
	Battery    int    `json:"battery"`
}

// AcquisitionData holds sensor timings and calibration
type AcquisitionData struct {
	SensorInterval    time.Duration `json:"sensor_interval"`
	Warmup            time.Duration `json:"warmup"`
	VoltageMultiplier float64       `json:"voltage_multiplier"`
	TemperatureOffset float64       `json:"temperature_offset,omitempty"`
	HumidityOffset    float64       `json:"humidity_offset,omitempty"`
}

type FailSafeData struct {
	Ceiling int `json:"ceiling"`
}

// TimeData configures network time, the RTC and the local zone
type TimeData struct {
	NTPServer             string        `json:"ntp_server,omitempty"`
	NTPTimeout            time.Duration `json:"ntp_timeout"`
	GMTOffsetSeconds      int           `json:"gmt_offset_seconds"`
	DaylightOffsetSeconds int           `json:"daylight_offset_seconds"`
	RTCFile               string        `json:"rtc_file,omitempty"`
}

// Location returns the fixed zone described by the gmt and daylight offsets.
func (t TimeData) Location() *time.Location {
	offset := t.GMTOffsetSeconds + t.DaylightOffsetSeconds
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("GMT%+d", offset/3600), offset)
}

// RetainedData selects where the boot and fail-safe counters live
type RetainedData struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
}

// GatewayData selects how raw sensors are reached
type GatewayData struct {
	Backend      string        `json:"backend"`
	SerialDevice string        `json:"serial_device,omitempty"`
	Baud         int           `json:"baud,omitempty"`
	Simulated    SimulatedData `json:"simulated,omitempty"`
}

// SimulatedData tunes the simulated sensor board
type SimulatedData struct {
	MoistureRaw   [3]int  `json:"moisture_raw"`
	DryingPerRead int     `json:"drying_per_read,omitempty"`
	BaseTempC     float64 `json:"base_temp_c"`
	BaseHumidity  float64 `json:"base_humidity"`
	SoilTempC     float64 `json:"soil_temp_c"`
	BatteryRaw    int     `json:"battery_raw"`
	Tank          string  `json:"tank"`
	FaultEvery    int     `json:"fault_every,omitempty"`
}

// SleepData controls the host stand-in for deep sleep
type SleepData struct {
	Scale        float64       `json:"scale"`
	PollInterval time.Duration `json:"poll_interval"`
}

type LoggingData struct {
	Debug      bool   `json:"debug,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// Default returns the configuration of a stock node: the reference board
// wiring, a simulated gateway and retained counters kept in memory.
func Default() *ConfigData {
	return &ConfigData{
		Node: NodeData{Name: "watergate"},
		Pins: PinsData{
			ProbePower: 25,
			Moisture:   [3]int{34, 32, 35},
			LevelLow:   18,
			LevelHigh:  19,
			Battery:    33,
		},
		Acquisition: AcquisitionData{
			SensorInterval:    15 * time.Second,
			Warmup:            500 * time.Millisecond,
			VoltageMultiplier: 576.0,
		},
		FailSafe: FailSafeData{Ceiling: 24},
		Time: TimeData{
			NTPTimeout: 5 * time.Second,
		},
		Retained: RetainedData{Backend: "memory"},
		Gateway: GatewayData{
			Backend: "simulated",
			Baud:    115200,
			Simulated: SimulatedData{
				MoistureRaw:  [3]int{1800, 2100, 2400},
				BaseTempC:    22,
				BaseHumidity: 45,
				SoilTempC:    17,
				BatteryRaw:   2300,
				Tank:         "mid",
			},
		},
		Sleep: SleepData{
			Scale:        0.001,
			PollInterval: 50 * time.Millisecond,
		},
		Logging: LoggingData{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks the settings that would otherwise fail deep inside a wake
// cycle.
func (c *ConfigData) Validate() error {
	var errs []error

	if c.Acquisition.SensorInterval <= c.Acquisition.Warmup {
		errs = append(errs, fmt.Errorf("acquisition: sensor interval %v must exceed warm-up %v",
			c.Acquisition.SensorInterval, c.Acquisition.Warmup))
	}
	if c.Acquisition.VoltageMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("acquisition: voltage multiplier must be positive, got %v", c.Acquisition.VoltageMultiplier))
	}
	if c.FailSafe.Ceiling <= 0 {
		errs = append(errs, fmt.Errorf("fail-safe: ceiling must be positive, got %d", c.FailSafe.Ceiling))
	}

	pins := append([]int{c.Pins.ProbePower, c.Pins.LevelLow, c.Pins.LevelHigh, c.Pins.Battery}, c.Pins.Moisture[:]...)
	seen := make(map[int]bool)
	for _, p := range pins {
		if p < 0 || p > 255 {
			errs = append(errs, fmt.Errorf("pins: GPIO %d out of range", p))
		}
		if seen[p] {
			errs = append(errs, fmt.Errorf("pins: GPIO %d assigned twice", p))
		}
		seen[p] = true
	}

	switch c.Retained.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Retained.Path == "" {
			errs = append(errs, fmt.Errorf("retained: backend %q needs a path", c.Retained.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("retained: unknown backend %q", c.Retained.Backend))
	}

	switch c.Gateway.Backend {
	case "simulated":
		switch c.Gateway.Simulated.Tank {
		case "empty", "mid", "full":
		default:
			errs = append(errs, fmt.Errorf("gateway: unknown simulated tank level %q", c.Gateway.Simulated.Tank))
		}
	case "serial":
		if c.Gateway.SerialDevice == "" {
			errs = append(errs, errors.New("gateway: serial backend needs a serial device"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway: unknown backend %q", c.Gateway.Backend))
	}

	if c.Sleep.Scale < 0 {
		errs = append(errs, fmt.Errorf("sleep: scale must not be negative, got %v", c.Sleep.Scale))
	}

	return multierr.Combine(errs...)
}
