package wlf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxSamples is the number of (temperature, log a_T) rows a user can enter.
const MaxSamples = 8

// Sample is one measured shift factor. Samples keep entry order; duplicate
// temperatures are allowed and simply weight that temperature more.
type Sample struct {
	TempC    float64 `json:"tempC" yaml:"temp"`
	LogShift float64 `json:"logShift" yaml:"log_at"`
}

// DefaultSamples are the rows pre-filled in a new session.
func DefaultSamples() []Sample {
	return []Sample{
		{TempC: 0, LogShift: 1.93},
		{TempC: 10, LogShift: 1.3},
		{TempC: 20, LogShift: 0.9},
		{TempC: 40, LogShift: 0},
	}
}

// ParseSamples converts entry-table text into samples.
//
// Rows where both cells are blank are skipped. A row with only one cell
// filled, a non-numeric cell, or more than MaxSamples filled rows is a
// *ValidationError. At least one sample is required.
func ParseSamples(temps, logShifts []string) ([]Sample, error) {
	if len(temps) != len(logShifts) {
		return nil, &ValidationError{
			Field:  "samples",
			Reason: fmt.Sprintf("%d temperatures but %d log(a_T) values", len(temps), len(logShifts)),
		}
	}

	samples := make([]Sample, 0, len(temps))
	for i := range temps {
		t := strings.TrimSpace(temps[i])
		l := strings.TrimSpace(logShifts[i])
		if t == "" && l == "" {
			continue
		}
		if t == "" || l == "" {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("row %d", i+1),
				Reason: "temperature and log(a_T) must both be filled",
			}
		}

		tempC, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("row %d temperature", i+1), Reason: fmt.Sprintf("%q is not a number", t)}
		}
		logShift, err := strconv.ParseFloat(l, 64)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("row %d log(a_T)", i+1), Reason: fmt.Sprintf("%q is not a number", l)}
		}
		samples = append(samples, Sample{TempC: tempC, LogShift: logShift})
	}

	if err := ValidateSamples(samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// ValidateSamples checks that samples holds between one and MaxSamples
// fully finite entries.
func ValidateSamples(samples []Sample) error {
	if len(samples) == 0 {
		return &ValidationError{Field: "samples", Reason: "at least one sample is required"}
	}
	if len(samples) > MaxSamples {
		return &ValidationError{
			Field:  "samples",
			Reason: fmt.Sprintf("at most %d samples allowed, got %d", MaxSamples, len(samples)),
		}
	}
	for i, s := range samples {
		if !isFinite(s.TempC) || !isFinite(s.LogShift) {
			return &ValidationError{
				Field:  fmt.Sprintf("sample %d", i+1),
				Reason: "values must be finite numbers",
			}
		}
	}
	return nil
}

// Observations splits samples into absolute temperatures and log shifts,
// the form both estimators consume.
func Observations(samples []Sample) (tempsK, logShifts []float64) {
	tempsK = make([]float64, len(samples))
	logShifts = make([]float64, len(samples))
	for i, s := range samples {
		tempsK[i] = Kelvin(s.TempC)
		logShifts[i] = s.LogShift
	}
	return tempsK, logShifts
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
