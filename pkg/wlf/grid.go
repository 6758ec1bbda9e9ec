package wlf

import (
	"fmt"
	"math"
	"slices"
)

// Grid describes the integer parameter grid scanned by GridSearch. Both C1
// and C2 run over [Start, Stop) in increments of Step.
type Grid struct {
	Start int
	Stop  int
	Step  int
}

// DefaultGrid is {0, 5, ..., 195} for both constants: 1600 candidates.
var DefaultGrid = Grid{Start: 0, Stop: 200, Step: 5}

// Values returns the grid axis in ascending order.
func (g Grid) Values() []int {
	if g.Step <= 0 || g.Stop <= g.Start {
		return nil
	}
	vals := make([]int, 0, (g.Stop-g.Start+g.Step-1)/g.Step)
	for v := g.Start; v < g.Stop; v += g.Step {
		vals = append(vals, v)
	}
	return vals
}

// Size returns the number of (C1, C2) pairs on the grid.
func (g Grid) Size() int {
	n := len(g.Values())
	return n * n
}

// Candidate is one scored grid point.
type Candidate struct {
	// ID is the position in grid iteration order (C1 outer, C2 inner).
	// It is stable across re-sorts and identifies the candidate for selection.
	ID  int     `json:"id"`
	C1  int     `json:"c1"`
	C2  int     `json:"c2"`
	SSE float64 `json:"sse"`
}

// Params returns the candidate as model parameters at refTempC.
func (c Candidate) Params(refTempC float64) Params {
	return Params{C1: float64(c.C1), C2: float64(c.C2), RefTempC: refTempC}
}

// SearchResult is the ranked output of GridSearch.
type SearchResult struct {
	// Candidates holds every grid point with a finite SSE, ascending by SSE.
	Candidates []Candidate
	// Evaluated is the number of grid points scored, including discarded ones.
	Evaluated int
}

// Best returns the rank-0 candidate.
func (r SearchResult) Best() Candidate {
	return r.Candidates[0]
}

// SSE returns the sum of squared residuals between observed and the model at
// (c1, c2, tr). Points where the model is singular are left out of the sum.
// n is the number of points that contributed; when n is zero the SSE is NaN.
func SSE(tempsK, observed []float64, c1, c2, tr float64) (sse float64, n int) {
	for i, t := range tempsK {
		fit := Evaluate(t, c1, c2, tr)
		if math.IsNaN(fit) {
			continue
		}
		r := observed[i] - fit
		sse += r * r
		n++
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sse, n
}

// GridSearch scores every (C1, C2) pair of grid against the observations and
// returns the candidates ranked ascending by SSE.
//
// Singular points are excluded from each candidate's sum; candidates that are
// singular at every observation are discarded. Ties keep grid iteration
// order (C1 ascending, then C2 ascending), so the reported best is
// reproducible. ErrNoFiniteCandidates is returned when nothing survives.
func GridSearch(tempsK, logShifts []float64, refTempK float64, grid Grid) (SearchResult, error) {
	if err := validateObservations(tempsK, logShifts); err != nil {
		return SearchResult{}, err
	}
	axis := grid.Values()
	if len(axis) == 0 {
		return SearchResult{}, &ValidationError{Field: "grid", Reason: fmt.Sprintf("empty grid %+v", grid)}
	}

	candidates := make([]Candidate, 0, len(axis)*len(axis))
	id := 0
	for _, c1 := range axis {
		for _, c2 := range axis {
			sse, n := SSE(tempsK, logShifts, float64(c1), float64(c2), refTempK)
			if n > 0 {
				candidates = append(candidates, Candidate{ID: id, C1: c1, C2: c2, SSE: sse})
			}
			id++
		}
	}

	if len(candidates) == 0 {
		return SearchResult{Evaluated: id}, ErrNoFiniteCandidates
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.SSE < b.SSE:
			return -1
		case a.SSE > b.SSE:
			return 1
		default:
			return 0
		}
	})

	return SearchResult{Candidates: candidates, Evaluated: id}, nil
}

func validateObservations(tempsK, logShifts []float64) error {
	if len(tempsK) != len(logShifts) {
		return &ValidationError{
			Field:  "observations",
			Reason: fmt.Sprintf("%d temperatures but %d log(a_T) values", len(tempsK), len(logShifts)),
		}
	}
	if len(tempsK) == 0 {
		return &ValidationError{Field: "observations", Reason: "no data points"}
	}
	for i := range tempsK {
		if !isFinite(tempsK[i]) || !isFinite(logShifts[i]) {
			return &ValidationError{Field: fmt.Sprintf("observation %d", i+1), Reason: "values must be finite"}
		}
	}
	return nil
}
