package wlf

import (
	"errors"
	"math"
	"testing"
)

func TestRefine_ImprovesOnGuess(t *testing.T) {
	tempsK, logs := synthetic(100, 50, 40, []float64{0, 10, 20, 30, 50, 60})
	tr := Kelvin(40)

	got, err := Refine(tempsK, logs, tr, DefaultGuess, DefaultRefineSettings)
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}

	start, _ := SSE(tempsK, logs, 17, 52, tr)
	if got.SSE > start {
		t.Errorf("refined SSE %v is worse than guess SSE %v", got.SSE, start)
	}

	want, _ := SSE(tempsK, logs, float64(got.C1), float64(got.C2), tr)
	if math.Abs(got.SSE-want) > 1e-12 {
		t.Errorf("reported SSE %v does not match SSE at (%d, %d) = %v", got.SSE, got.C1, got.C2, want)
	}
}

func TestRefine_DefaultSamples(t *testing.T) {
	tempsK, logs := Observations(DefaultSamples())

	got, err := Refine(tempsK, logs, Kelvin(40), DefaultGuess, DefaultRefineSettings)
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if p := got.Params(40); p.C1 != float64(got.C1) || p.RefTempC != 40 {
		t.Errorf("Params() = %+v", p)
	}
}

func TestRefine_FitErrors(t *testing.T) {
	tests := []struct {
		name  string
		temps []float64
		logs  []float64
	}{
		{"single point", []float64{Kelvin(20)}, []float64{0.9}},
		{"repeated temperature", []float64{Kelvin(20), Kelvin(20), Kelvin(20)}, []float64{0.9, 1.0, 0.8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Refine(tt.temps, tt.logs, Kelvin(40), DefaultGuess, DefaultRefineSettings)
			var fe *FitError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FitError", err)
			}
		})
	}
}

func TestRefine_IterationBudgetIsFitError(t *testing.T) {
	tempsK, logs := Observations(DefaultSamples())
	settings := DefaultRefineSettings
	settings.MaxIterations = 1

	_, err := Refine(tempsK, logs, Kelvin(40), DefaultGuess, settings)
	if !IsFit(err) {
		t.Errorf("error = %v, want *FitError", err)
	}
}

func TestRefine_ValidationError(t *testing.T) {
	_, err := Refine([]float64{300, 310}, []float64{1}, 313.15, DefaultGuess, DefaultRefineSettings)
	if !IsValidation(err) {
		t.Errorf("error = %v, want *ValidationError", err)
	}
}
