// Package adapters loads raw frequency-sweep measurements from external
// sources and normalizes them into per-temperature [shift.Series].
//
// Available adapters:
//   - CSVAdapter reads a measurement table on disk (frequency column plus one
//     column per temperature)
//   - HTTPAdapter reads any REST endpoint returning JSON, with gjson paths
//     locating frequencies, temperatures and responses
//
// Adapters only fetch and shape data. Shifting and fitting happen in the
// shift and session packages.
package adapters

import (
	"context"
	"fmt"

	"github.com/HatiCode/mastercurve/pkg/shift"
)

// Adapter is implemented by every measurement source.
//
// Load is synchronous and should respect context cancellation.
type Adapter interface {
	// Load returns one series per measured temperature, in source order.
	Load(ctx context.Context) ([]shift.Series, error)

	// Name returns a short identifier, e.g. "csv" or "http".
	Name() string
}

// Validate checks every series returned by an adapter and rejects an empty
// measurement.
func Validate(series []shift.Series) error {
	if len(series) == 0 {
		return fmt.Errorf("measurement has no temperature series")
	}
	for _, s := range series {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
