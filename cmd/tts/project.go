package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/mastercurve/pkg/adapters"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// Project is the YAML project file. Relative paths are resolved against the
// directory of the file.
type Project struct {
	ReferenceTemp    *float64     `yaml:"referenceTemp"`
	NewReferenceTemp *float64     `yaml:"newReferenceTemp"`
	Samples          []wlf.Sample `yaml:"samples"`

	// Measurement is a CSV measurement table.
	Measurement string `yaml:"measurement"`
	// Adapter configures an HTTP measurement source instead of Measurement.
	// Keys follow adapters.ParseHTTPAdapterConfig.
	Adapter map[string]any `yaml:"adapter"`

	// Table is the shift-factor table written by estimate and read by shift.
	Table string `yaml:"table"`
	// Output is the directory for exports.
	Output string `yaml:"output"`

	dir string
}

// LoadProject reads and validates a project file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	p.dir = filepath.Dir(path)

	if p.Measurement != "" && p.Adapter != nil {
		return nil, fmt.Errorf("project %s: set either measurement or adapter, not both", path)
	}
	if len(p.Samples) > 0 {
		if err := wlf.ValidateSamples(p.Samples); err != nil {
			return nil, fmt.Errorf("project %s: %w", path, err)
		}
	}
	return &p, nil
}

// resolve makes a project-relative path usable from the working directory.
func (p *Project) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// source returns the measurement adapter: the -in flag wins, then the
// project's measurement file, then its HTTP adapter.
func (p *Project) source(in string) (adapters.Adapter, error) {
	switch {
	case in != "":
		return &adapters.CSVAdapter{Path: in}, nil
	case p.Measurement != "":
		return &adapters.CSVAdapter{Path: p.resolve(p.Measurement)}, nil
	case p.Adapter != nil:
		a, err := adapters.ParseHTTPAdapterConfig(p.Adapter)
		if err != nil {
			return nil, fmt.Errorf("project adapter: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("no measurement: pass -in or set measurement or adapter in the project")
	}
}

