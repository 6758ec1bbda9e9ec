package shift

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// DefaultSmoothDegree is the polynomial degree used when none is given.
const DefaultSmoothDegree = 3

// Smooth replaces the responses of every series with a least-squares
// polynomial of the given degree fitted in ln(frequency)/ln(response) space.
// Frequencies are untouched. Series with fewer points than coefficients, or
// with non-positive values, are returned unchanged.
func Smooth(set []ShiftedSeries, degree int) ([]ShiftedSeries, error) {
	if degree < 1 {
		return nil, &wlf.ValidationError{Field: "degree", Reason: fmt.Sprintf("must be at least 1, got %d", degree)}
	}
	out := make([]ShiftedSeries, len(set))
	for i, s := range set {
		sm, err := smoothSeries(s, degree)
		if err != nil {
			return nil, fmt.Errorf("smooth %s: %w", s.Label, err)
		}
		out[i] = sm
	}
	return out, nil
}

func smoothSeries(s ShiftedSeries, degree int) (ShiftedSeries, error) {
	out := s.Clone()
	n := len(s.Frequency)
	if n <= degree || len(s.Response) != n {
		return out, nil
	}
	for i := range n {
		if !(s.Frequency[i] > 0) || !(s.Response[i] > 0) {
			return out, nil
		}
	}

	x := make([]float64, n)
	y := make([]float64, n)
	for i := range n {
		x[i] = math.Log(s.Frequency[i])
		y[i] = math.Log(s.Response[i])
	}

	// Centre and scale x to keep the Vandermonde matrix well conditioned.
	mean, sd := stat.MeanStdDev(x, nil)
	if sd == 0 || math.IsNaN(sd) {
		return out, nil
	}
	if distinct(x) <= degree {
		return out, nil
	}
	floats.AddConst(-mean, x)
	floats.Scale(1/sd, x)

	cols := degree + 1
	a := mat.NewDense(n, cols, nil)
	for i := range n {
		v := 1.0
		for j := range cols {
			a.Set(i, j, v)
			v *= x[i]
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(n, y)); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return out, nil
		}
		return ShiftedSeries{}, err
	}

	var fitted mat.VecDense
	fitted.MulVec(a, &coef)
	for i := range n {
		out.Response[i] = math.Exp(fitted.AtVec(i))
	}
	return out, nil
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}
