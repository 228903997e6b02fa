package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/watergate/internal/app"
	"github.com/chrissnell/watergate/internal/log"
	"github.com/chrissnell/watergate/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "watergate.yaml", "Path to YAML configuration file; empty runs the stock simulated node")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	cycles := flag.Int("cycles", 0, "Number of wake cycles to run (0 runs until interrupted)")
	powerLoss := flag.Bool("power-loss", false, "Clear retained counters before the first wake, as after a full power-off")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("watergate %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfgData, err := loadConfig(*cfgFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	err = log.InitWithFile(*debug || cfgData.Logging.Debug, log.FileOptions{
		Path:       cfgData.Logging.File,
		MaxSizeMB:  cfgData.Logging.MaxSizeMB,
		MaxBackups: cfgData.Logging.MaxBackups,
		MaxAgeDays: cfgData.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	application := app.New(cfgData, app.Options{Cycles: *cycles, PowerLoss: *powerLoss}, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}

	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider = config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
