package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrissnell/watergate/internal/acquisition"
	"github.com/chrissnell/watergate/internal/clock"
	"github.com/chrissnell/watergate/internal/gateway"
	"github.com/chrissnell/watergate/internal/log"
	"github.com/chrissnell/watergate/internal/node"
	"github.com/chrissnell/watergate/internal/retained"
	"github.com/chrissnell/watergate/internal/timesync"
	"github.com/chrissnell/watergate/internal/wake"
	"github.com/chrissnell/watergate/pkg/config"
	"go.uber.org/zap"
)

// Options are the run-time switches given on the command line
type Options struct {
	// Cycles limits the number of wake cycles; zero runs until shutdown.
	Cycles int
	// PowerLoss wipes the retained counters before the first wake, as a full
	// power-off of the board would.
	PowerLoss bool
}

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, opts Options, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("node", cfg.Node.Name),
	}
}

// Run wires the node from configuration and loops wake cycles until the
// cycle limit is reached or a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n, first, err := a.buildNode()
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			a.logger.Warnw("error releasing node resources", "error", err)
		}
	}()

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Info("shutdown signal received, finishing the current wake...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("node started")
	sleeper := node.NewHostSleeper(a.cfg.Sleep.Scale, a.logger)
	if err := n.Run(ctx, sleeper, first, a.opts.Cycles); err != nil {
		return fmt.Errorf("wake loop stopped: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// buildNode also returns the cause of the first wake: a process restart over a
// populated retained store resumes like a deep-sleep timer wake, anything
// else is a cold boot.
func (a *App) buildNode() (*node.Node, wake.RawCause, error) {
	store, err := retained.Open(a.cfg.Retained.Backend, a.cfg.Retained.Path)
	if err != nil {
		return nil, wake.RawUndefined, fmt.Errorf("error opening retained store: %w", err)
	}
	if a.opts.PowerLoss {
		a.logger.Info("simulating power loss, clearing retained counters")
		if err := store.Reset(); err != nil {
			store.Close()
			return nil, wake.RawUndefined, fmt.Errorf("error clearing retained store: %w", err)
		}
	}

	first := wake.RawUndefined
	if _, ok, err := store.Load(); err != nil {
		a.logger.Warnw("retained counters unreadable, starting with a cold boot", "error", err)
	} else if ok {
		first = wake.RawTimer
	}

	pins := a.pins()
	gw, err := a.gateway(pins)
	if err != nil {
		store.Close()
		return nil, wake.RawUndefined, err
	}

	c := node.Components{
		Clock:   clock.NewSystem(),
		Gateway: gw,
		Store:   store,
	}
	if a.cfg.Time.RTCFile != "" {
		c.RTC = timesync.NewFileRTC(a.cfg.Time.RTCFile)
	}
	if a.cfg.Time.NTPServer != "" {
		c.Network = timesync.NTPSource{Server: a.cfg.Time.NTPServer, Timeout: a.cfg.Time.NTPTimeout}
	}

	return node.New(c, node.Config{
		Acquisition: acquisition.Options{
			Pins:              pins,
			SensorInterval:    a.cfg.Acquisition.SensorInterval,
			Warmup:            a.cfg.Acquisition.Warmup,
			VoltageMultiplier: a.cfg.Acquisition.VoltageMultiplier,
			TemperatureOffset: a.cfg.Acquisition.TemperatureOffset,
			HumidityOffset:    a.cfg.Acquisition.HumidityOffset,
		},
		FailSafeCeiling: a.cfg.FailSafe.Ceiling,
		Location:        a.cfg.Time.Location(),
		PollInterval:    a.cfg.Sleep.PollInterval,
	}, a.logger), first, nil
}

func (a *App) pins() gateway.Pins {
	p := a.cfg.Pins
	return gateway.Pins{
		ProbePower: gateway.Channel(p.ProbePower),
		Moisture: [3]gateway.Channel{
			gateway.Channel(p.Moisture[0]),
			gateway.Channel(p.Moisture[1]),
			gateway.Channel(p.Moisture[2]),
		},
		LevelLow:  gateway.Channel(p.LevelLow),
		LevelHigh: gateway.Channel(p.LevelHigh),
		Battery:   gateway.Channel(p.Battery),
	}
}

func (a *App) gateway(pins gateway.Pins) (gateway.Gateway, error) {
	g := a.cfg.Gateway
	switch g.Backend {
	case "serial":
		return gateway.NewSerial(gateway.SerialOptions{Device: g.SerialDevice, Baud: g.Baud}, a.logger)
	case "simulated":
		tank := map[string]gateway.TankLevel{
			"empty": gateway.TankEmpty,
			"mid":   gateway.TankMid,
			"full":  gateway.TankFull,
		}[g.Simulated.Tank]
		return gateway.NewSimulated(gateway.SimulatedOptions{
			Pins:          pins,
			MoistureRaw:   g.Simulated.MoistureRaw,
			DryingPerRead: g.Simulated.DryingPerRead,
			BaseTempC:     g.Simulated.BaseTempC,
			BaseHumidity:  g.Simulated.BaseHumidity,
			SoilTempC:     g.Simulated.SoilTempC,
			BatteryRaw:    g.Simulated.BatteryRaw,
			Tank:          tank,
			FaultEvery:    g.Simulated.FaultEvery,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported gateway backend: %s", g.Backend)
	}
}
