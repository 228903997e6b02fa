package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/watergate/pkg/calibrate"
)

func main() {
	var (
		csvFile = flag.String("csv", "", "CSV file of raw,volts pairs (default: stdin)")
		current = flag.Float64("current", 576.0, "Multiplier currently configured, for comparison")
	)
	flag.Parse()

	in := os.Stdin
	if *csvFile != "" {
		f, err := os.Open(*csvFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", *csvFile, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	samples, err := calibrate.ReadCSV(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read samples: %v\n", err)
		os.Exit(1)
	}

	res, err := calibrate.Fit(samples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Battery voltage calibration (%d samples)\n", res.Samples)
	fmt.Printf("  voltage-multiplier = %.2f\n", res.Multiplier)
	fmt.Printf("  R² = %.4f\n", res.RSquared)
	fmt.Printf("  unconstrained fit: intercept %.4f V, R² = %.4f\n", res.Intercept, res.FreeRSquared)
	if *current > 0 {
		fmt.Printf("  change from %.2f: %+.2f%%\n", *current, (res.Multiplier-*current)/(*current)*100)
	}
	if res.RSquared < 0.95 {
		fmt.Println("\n  WARNING: poor fit, check the meter readings or the divider wiring")
	}
}
