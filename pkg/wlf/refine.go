package wlf

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Guess is the starting point for Refine.
type Guess struct {
	C1 float64 `json:"c1"`
	C2 float64 `json:"c2"`
}

// DefaultGuess is the classic "universal" WLF pair used to seed refinement.
var DefaultGuess = Guess{C1: 17, C2: 52}

// Refined is the outcome of a successful Refine call.
type Refined struct {
	C1         int     `json:"c1"`
	C2         int     `json:"c2"`
	SSE        float64 `json:"sse"`
	Iterations int     `json:"iterations"`
}

// Params returns the refined pair as model parameters at refTempC.
func (r Refined) Params(refTempC float64) Params {
	return Params{C1: float64(r.C1), C2: float64(r.C2), RefTempC: refTempC}
}

// RefineSettings bounds the local search.
type RefineSettings struct {
	// SimplexSize is the initial Nelder-Mead simplex edge. It must span at
	// least one integer step or the truncated objective looks flat.
	SimplexSize float64
	// MaxIterations caps major iterations. Hitting it is a FitError.
	MaxIterations int
	// MaxEvaluations caps objective evaluations. Hitting it is a FitError.
	MaxEvaluations int
}

// DefaultRefineSettings starts with a simplex one grid step wide.
var DefaultRefineSettings = RefineSettings{
	SimplexSize:    float64(DefaultGrid.Step),
	MaxIterations:  1000,
	MaxEvaluations: 10000,
}

// Refine minimises the same NaN-excluding SSE as GridSearch, starting from
// guess, using a derivative-free Nelder-Mead search.
//
// The objective truncates C1 and C2 to integers before evaluating the model,
// matching the grid convention; the returned pair is integer-valued. This
// makes the search piecewise constant and it can settle away from the
// continuous optimum.
//
// A *FitError is returned when the data cannot determine two parameters
// (fewer than two distinct temperatures), when the objective is not finite
// at the guess, or when the optimizer fails or runs out of budget.
func Refine(tempsK, logShifts []float64, refTempK float64, guess Guess, settings RefineSettings) (Refined, error) {
	if err := validateObservations(tempsK, logShifts); err != nil {
		return Refined{}, err
	}
	if distinct(tempsK) < 2 {
		return Refined{}, &FitError{Reason: "need at least 2 distinct temperatures to determine C1 and C2"}
	}
	if settings.SimplexSize <= 0 {
		settings.SimplexSize = DefaultRefineSettings.SimplexSize
	}

	objective := func(x []float64) float64 {
		sse, n := SSE(tempsK, logShifts, math.Trunc(x[0]), math.Trunc(x[1]), refTempK)
		if n == 0 {
			return math.Inf(1)
		}
		return sse
	}

	x0 := []float64{guess.C1, guess.C2}
	if f := objective(x0); math.IsInf(f, 0) || math.IsNaN(f) {
		return Refined{}, &FitError{Reason: "objective is not finite at the initial guess"}
	}

	problem := optimize.Problem{Func: objective}
	opts := &optimize.Settings{
		MajorIterations: settings.MaxIterations,
		FuncEvaluations: settings.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, x0, opts, &optimize.NelderMead{SimplexSize: settings.SimplexSize})
	if err != nil {
		return Refined{}, &FitError{Reason: "optimizer failed", Err: err}
	}
	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return Refined{}, &FitError{Reason: "did not converge: " + result.Status.String()}
	}

	c1, c2 := math.Trunc(result.X[0]), math.Trunc(result.X[1])
	sse, n := SSE(tempsK, logShifts, c1, c2, refTempK)
	if n == 0 || !isFinite(sse) {
		return Refined{}, &FitError{Reason: "optimum is singular at every data point"}
	}

	return Refined{
		C1:         int(c1),
		C2:         int(c2),
		SSE:        sse,
		Iterations: result.Stats.MajorIterations,
	}, nil
}

func distinct(vals []float64) int {
	seen := make(map[float64]struct{}, len(vals))
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	return len(seen)
}
