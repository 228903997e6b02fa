// Package calibrate derives the battery voltage divider multiplier from
// paired raw ADC counts and meter readings.
package calibrate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Sample pairs one raw ADC count with the voltage measured at the battery.
type Sample struct {
	Raw   float64
	Volts float64
}

// Result describes a divider fit.
type Result struct {
	// Multiplier is the value raw counts are divided by to get volts.
	Multiplier float64
	RSquared   float64
	Samples    int

	// Intercept and FreeRSquared come from an unconstrained fit. A large
	// intercept means the divider or the ADC has an offset the multiplier
	// cannot absorb.
	Intercept    float64
	FreeRSquared float64
}

var ErrTooFewSamples = errors.New("need at least two samples with distinct raw values")

// Fit fits volts = raw / multiplier through the origin.
func Fit(samples []Sample) (Result, error) {
	raws := make([]float64, 0, len(samples))
	volts := make([]float64, 0, len(samples))
	distinct := make(map[float64]bool)
	for _, s := range samples {
		if s.Raw <= 0 || s.Volts <= 0 {
			continue
		}
		raws = append(raws, s.Raw)
		volts = append(volts, s.Volts)
		distinct[s.Raw] = true
	}
	if len(distinct) < 2 {
		return Result{}, ErrTooFewSamples
	}

	_, slope := stat.LinearRegression(raws, volts, nil, true)
	if slope <= 0 {
		return Result{}, fmt.Errorf("non-positive slope %v, check the sample columns", slope)
	}

	intercept, freeSlope := stat.LinearRegression(raws, volts, nil, false)

	return Result{
		Multiplier:   1 / slope,
		RSquared:     stat.RSquared(raws, volts, nil, 0, slope),
		Samples:      len(raws),
		Intercept:    intercept,
		FreeRSquared: stat.RSquared(raws, volts, nil, intercept, freeSlope),
	}, nil
}

// ReadCSV reads raw,volts rows. A header row and blank or '#' lines are
// skipped.
func ReadCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var samples []Sample
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}

		raw, errRaw := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		v, errVolts := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if errRaw != nil || errVolts != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("row %d: cannot parse %q", line, strings.Join(record, ","))
		}
		samples = append(samples, Sample{Raw: raw, Volts: v})
	}
}
