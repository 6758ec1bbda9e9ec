package wlf

import (
	"errors"
	"fmt"
)

// ErrNoFiniteCandidates is returned by GridSearch when every grid point is
// singular for every observation.
var ErrNoFiniteCandidates = errors.New("no grid candidate produced a finite SSE")

// ValidationError reports input that was rejected before any computation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// FitError reports that local refinement could not produce parameters.
// No parameters are updated when a FitError is returned.
type FitError struct {
	Reason string
	Err    error
}

func (e *FitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fit failed: %s: %v", e.Reason, e.Err)
	}
	return "fit failed: " + e.Reason
}

func (e *FitError) Unwrap() error { return e.Err }

// LookupError reports a measured temperature that had no usable row in a
// shift-factor table, or whose a_T could not be applied.
type LookupError struct {
	TempC float64
	Label string
	// Reason is set when a row was found but shifting by it failed.
	Reason string
}

func (e *LookupError) Error() string {
	name := e.Label
	if name == "" {
		name = fmt.Sprintf("%g°C", e.TempC)
	}
	if e.Reason != "" {
		return fmt.Sprintf("cannot shift temperature %s: %s", name, e.Reason)
	}
	return fmt.Sprintf("no shift factor for temperature %s", name)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsFit reports whether err is or wraps a *FitError.
func IsFit(err error) bool {
	var fe *FitError
	return errors.As(err, &fe)
}

// IsLookup reports whether err is or wraps a *LookupError.
func IsLookup(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}
