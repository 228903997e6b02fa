package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the configuration from the YAML file. Keys missing from
// the file keep their Default values.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Seed the YAML mirror with defaults so absent keys survive Unmarshal
	yamlConfig := toYAML(Default())

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	config, err := yamlConfig.convert()
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type ConfigYAML struct {
	Node        NodeYAML        `yaml:"node"`
	Pins        PinsYAML        `yaml:"pins"`
	Acquisition AcquisitionYAML `yaml:"acquisition"`
	FailSafe    FailSafeYAML    `yaml:"fail-safe"`
	Time        TimeYAML        `yaml:"time"`
	Retained    RetainedYAML    `yaml:"retained"`
	Gateway     GatewayYAML     `yaml:"gateway"`
	Sleep       SleepYAML       `yaml:"sleep"`
	Logging     LoggingYAML     `yaml:"logging"`
}

type NodeYAML struct {
	Name string `yaml:"name"`
}

type PinsYAML struct {
	ProbePower int   `yaml:"probe-power"`
	Moisture   []int `yaml:"moisture"`
	LevelLow   int   `yaml:"level-low"`
	LevelHigh  int   `yaml:"level-high"`
	Battery    int   `yaml:"battery"`
}

type AcquisitionYAML struct {
	SensorInterval    string  `yaml:"sensor-interval"`
	Warmup            string  `yaml:"warmup"`
	VoltageMultiplier float64 `yaml:"voltage-multiplier"`
	TemperatureOffset float64 `yaml:"temperature-offset,omitempty"`
	HumidityOffset    float64 `yaml:"humidity-offset,omitempty"`
}

type FailSafeYAML struct {
	Ceiling int `yaml:"ceiling"`
}

type TimeYAML struct {
	NTPServer             string `yaml:"ntp-server,omitempty"`
	NTPTimeout            string `yaml:"ntp-timeout"`
	GMTOffsetSeconds      int    `yaml:"gmt-offset-seconds"`
	DaylightOffsetSeconds int    `yaml:"daylight-offset-seconds"`
	RTCFile               string `yaml:"rtc-file,omitempty"`
}

type RetainedYAML struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

type GatewayYAML struct {
	Backend      string        `yaml:"backend"`
	SerialDevice string        `yaml:"serialdevice,omitempty"`
	Baud         int           `yaml:"baud,omitempty"`
	Simulated    SimulatedYAML `yaml:"simulated,omitempty"`
}

type SimulatedYAML struct {
	MoistureRaw   []int   `yaml:"moisture-raw"`
	DryingPerRead int     `yaml:"drying-per-read,omitempty"`
	BaseTempC     float64 `yaml:"base-temp-c"`
	BaseHumidity  float64 `yaml:"base-humidity"`
	SoilTempC     float64 `yaml:"soil-temp-c"`
	BatteryRaw    int     `yaml:"battery-raw"`
	Tank          string  `yaml:"tank"`
	FaultEvery    int     `yaml:"fault-every,omitempty"`
}

type SleepYAML struct {
	Scale        float64 `yaml:"scale"`
	PollInterval string  `yaml:"poll-interval"`
}

type LoggingYAML struct {
	Debug      bool   `yaml:"debug,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty"`
}

func toYAML(c *ConfigData) ConfigYAML {
	return ConfigYAML{
		Node: NodeYAML{Name: c.Node.Name},
		Pins: PinsYAML{
			ProbePower: c.Pins.ProbePower,
			Moisture:   c.Pins.Moisture[:],
			LevelLow:   c.Pins.LevelLow,
			LevelHigh:  c.Pins.LevelHigh,
			Battery:    c.Pins.Battery,
		},
		Acquisition: AcquisitionYAML{
			SensorInterval:    c.Acquisition.SensorInterval.String(),
			Warmup:            c.Acquisition.Warmup.String(),
			VoltageMultiplier: c.Acquisition.VoltageMultiplier,
			TemperatureOffset: c.Acquisition.TemperatureOffset,
			HumidityOffset:    c.Acquisition.HumidityOffset,
		},
		FailSafe: FailSafeYAML{Ceiling: c.FailSafe.Ceiling},
		Time: TimeYAML{
			NTPServer:             c.Time.NTPServer,
			NTPTimeout:            c.Time.NTPTimeout.String(),
			GMTOffsetSeconds:      c.Time.GMTOffsetSeconds,
			DaylightOffsetSeconds: c.Time.DaylightOffsetSeconds,
			RTCFile:               c.Time.RTCFile,
		},
		Retained: RetainedYAML{Backend: c.Retained.Backend, Path: c.Retained.Path},
		Gateway: GatewayYAML{
			Backend:      c.Gateway.Backend,
			SerialDevice: c.Gateway.SerialDevice,
			Baud:         c.Gateway.Baud,
			Simulated: SimulatedYAML{
				MoistureRaw:   c.Gateway.Simulated.MoistureRaw[:],
				DryingPerRead: c.Gateway.Simulated.DryingPerRead,
				BaseTempC:     c.Gateway.Simulated.BaseTempC,
				BaseHumidity:  c.Gateway.Simulated.BaseHumidity,
				SoilTempC:     c.Gateway.Simulated.SoilTempC,
				BatteryRaw:    c.Gateway.Simulated.BatteryRaw,
				Tank:          c.Gateway.Simulated.Tank,
				FaultEvery:    c.Gateway.Simulated.FaultEvery,
			},
		},
		Sleep: SleepYAML{
			Scale:        c.Sleep.Scale,
			PollInterval: c.Sleep.PollInterval.String(),
		},
		Logging: LoggingYAML{
			Debug:      c.Logging.Debug,
			File:       c.Logging.File,
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
			MaxAgeDays: c.Logging.MaxAgeDays,
		},
	}
}

// convert turns the YAML mirror into our internal format
func (y ConfigYAML) convert() (*ConfigData, error) {
	config := &ConfigData{
		Node: NodeData{Name: y.Node.Name},
		Pins: PinsData{
			ProbePower: y.Pins.ProbePower,
			LevelLow:   y.Pins.LevelLow,
			LevelHigh:  y.Pins.LevelHigh,
			Battery:    y.Pins.Battery,
		},
		Acquisition: AcquisitionData{
			VoltageMultiplier: y.Acquisition.VoltageMultiplier,
			TemperatureOffset: y.Acquisition.TemperatureOffset,
			HumidityOffset:    y.Acquisition.HumidityOffset,
		},
		FailSafe: FailSafeData{Ceiling: y.FailSafe.Ceiling},
		Time: TimeData{
			NTPServer:             y.Time.NTPServer,
			GMTOffsetSeconds:      y.Time.GMTOffsetSeconds,
			DaylightOffsetSeconds: y.Time.DaylightOffsetSeconds,
			RTCFile:               y.Time.RTCFile,
		},
		Retained: RetainedData{Backend: y.Retained.Backend, Path: y.Retained.Path},
		Gateway: GatewayData{
			Backend:      y.Gateway.Backend,
			SerialDevice: y.Gateway.SerialDevice,
			Baud:         y.Gateway.Baud,
			Simulated: SimulatedData{
				DryingPerRead: y.Gateway.Simulated.DryingPerRead,
				BaseTempC:     y.Gateway.Simulated.BaseTempC,
				BaseHumidity:  y.Gateway.Simulated.BaseHumidity,
				SoilTempC:     y.Gateway.Simulated.SoilTempC,
				BatteryRaw:    y.Gateway.Simulated.BatteryRaw,
				Tank:          y.Gateway.Simulated.Tank,
				FaultEvery:    y.Gateway.Simulated.FaultEvery,
			},
		},
		Sleep: SleepData{Scale: y.Sleep.Scale},
		Logging: LoggingData{
			Debug:      y.Logging.Debug,
			File:       y.Logging.File,
			MaxSizeMB:  y.Logging.MaxSizeMB,
			MaxBackups: y.Logging.MaxBackups,
			MaxAgeDays: y.Logging.MaxAgeDays,
		},
	}

	if len(y.Pins.Moisture) != len(config.Pins.Moisture) {
		return nil, fmt.Errorf("pins: expected %d moisture pins, got %d", len(config.Pins.Moisture), len(y.Pins.Moisture))
	}
	copy(config.Pins.Moisture[:], y.Pins.Moisture)

	if len(y.Gateway.Simulated.MoistureRaw) != len(config.Gateway.Simulated.MoistureRaw) {
		return nil, fmt.Errorf("gateway: expected %d simulated moisture values, got %d",
			len(config.Gateway.Simulated.MoistureRaw), len(y.Gateway.Simulated.MoistureRaw))
	}
	copy(config.Gateway.Simulated.MoistureRaw[:], y.Gateway.Simulated.MoistureRaw)

	durations := []struct {
		key string
		in  string
		out *time.Duration
	}{
		{"acquisition.sensor-interval", y.Acquisition.SensorInterval, &config.Acquisition.SensorInterval},
		{"acquisition.warmup", y.Acquisition.Warmup, &config.Acquisition.Warmup},
		{"time.ntp-timeout", y.Time.NTPTimeout, &config.Time.NTPTimeout},
		{"sleep.poll-interval", y.Sleep.PollInterval, &config.Sleep.PollInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.out = v
	}

	return config, nil
}
