package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/tabular"
)

// CSVAdapter reads a measurement table from a file. See
// [tabular.ReadMeasurement] for the layout.
type CSVAdapter struct {
	Path string
}

func (c *CSVAdapter) Name() string { return "csv" }

// Load implements Adapter.
func (c *CSVAdapter) Load(ctx context.Context) ([]shift.Series, error) {
	if c.Path == "" {
		return nil, errors.New("csv adapter: path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	series, err := tabular.ReadMeasurementFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("csv adapter: %w", err)
	}
	if err := Validate(series); err != nil {
		return nil, fmt.Errorf("csv adapter: %w", err)
	}
	return series, nil
}
