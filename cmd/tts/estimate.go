package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/HatiCode/mastercurve/pkg/session"
	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

type estimateConfig struct {
	commonFlags

	C1          float64
	C2          float64
	RefTempC    float64
	NewRefTempC float64
	Samples     string
	Select      int

	StartC float64
	StopC  float64
	Points int
	StepC  float64

	Out  string
	JSON bool

	set map[string]bool
}

func parseEstimateFlags(fs *flag.FlagSet, args []string) (estimateConfig, error) {
	cfg := estimateConfig{
		RefTempC: defaultRefTempC,
		Select:   -1,
		StartC:   shift.DefaultAxis.StartC,
		StopC:    shift.DefaultAxis.StopC,
		Points:   shift.DefaultAxis.Points,
	}
	cfg.register(fs)
	fs.Float64Var(&cfg.C1, "c1", 0, "WLF C1; with -c2 skips the fit")
	fs.Float64Var(&cfg.C2, "c2", 0, "WLF C2; with -c1 skips the fit")
	fs.Float64Var(&cfg.RefTempC, "ref", cfg.RefTempC, "Reference temperature C1 and C2 belong to, in °C")
	fs.Float64Var(&cfg.NewRefTempC, "new-ref", 0, "Reference temperature of the table, in °C (required unless set in the project)")
	fs.StringVar(&cfg.Samples, "samples", "", "Observations as temp:logAT pairs when fitting (overrides project samples)")
	fs.IntVar(&cfg.Select, "select", cfg.Select, "Estimate from this candidate ID instead of the best")
	fs.Float64Var(&cfg.StartC, "start", cfg.StartC, "Axis start in °C")
	fs.Float64Var(&cfg.StopC, "stop", cfg.StopC, "Axis stop in °C")
	fs.IntVar(&cfg.Points, "points", cfg.Points, "Axis points, uniformly spaced in Kelvin")
	fs.Float64Var(&cfg.StepC, "step", 0, "Axis step in °C; replaces -points")
	fs.StringVar(&cfg.Out, "out", "", "Output CSV path (default: project table, else stdout)")
	fs.BoolVar(&cfg.JSON, "json", false, "Print the table as JSON instead of CSV")

	if err := parseArgs(fs, args); err != nil {
		return estimateConfig{}, err
	}
	cfg.set = visited(fs)
	return cfg, nil
}

func (c estimateConfig) Validate() error {
	if c.set["c1"] != c.set["c2"] {
		return fmt.Errorf("-c1 and -c2 must be given together")
	}
	if c.set["c1"] && (c.set["samples"] || c.set["select"]) {
		return fmt.Errorf("-c1/-c2 cannot be combined with -samples or -select")
	}
	if err := c.axis().Validate(); err != nil {
		return err
	}
	return nil
}

func (c estimateConfig) axis() shift.Axis {
	a := shift.Axis{StartC: c.StartC, StopC: c.StopC, Points: c.Points, RoundLabels: true}
	if c.StepC > 0 {
		a.Points = 0
		a.StepC = c.StepC
		a.RoundLabels = false
	}
	return a
}

// source returns the parameters to estimate from: explicit constants, or a
// fit over the resolved samples.
func (c estimateConfig) source(p *Project, opts session.Options) (session.Session, error) {
	ref := c.RefTempC
	if !c.set["ref"] && p.ReferenceTemp != nil {
		ref = *p.ReferenceTemp
	}

	s := session.New(ref, opts)
	if c.set["c1"] {
		s.Params = wlf.Params{C1: c.C1, C2: c.C2, RefTempC: ref}
		return s, nil
	}

	samples, err := resolveSamples(c.Samples, p)
	if err != nil {
		return s, err
	}
	s, err = s.Fit(samples, ref)
	if err != nil {
		return s, err
	}
	if c.Select >= 0 {
		if _, err := s.Ranking.Toggle(c.Select); err != nil {
			return s, err
		}
	}
	return s, nil
}

func runEstimate(_ context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseEstimateFlags(newFlagSet("estimate", stderr), args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	logger := cfg.logger(stderr)

	proj, err := cfg.project()
	if err != nil {
		return err
	}

	newRef := cfg.NewRefTempC
	if !cfg.set["new-ref"] {
		if proj.NewReferenceTemp == nil {
			return fmt.Errorf("%w: -new-ref is required", errUsage)
		}
		newRef = *proj.NewReferenceTemp
	}

	opts := session.DefaultOptions
	opts.Axis = cfg.axis()

	s, err := cfg.source(proj, opts)
	if err != nil {
		return err
	}
	s, err = s.Estimate(newRef)
	if err != nil {
		return err
	}

	usable := 0
	for _, r := range s.Table.Rows {
		if r.Usable() {
			usable++
		}
	}
	logger.Info("estimated shift factors",
		"source", s.Source.String(),
		"newRefTempC", newRef,
		"rows", len(s.Table.Rows),
		"usable", usable,
	)

	out := cfg.Out
	if out == "" {
		out = proj.resolve(proj.Table)
	}
	if out == "" || out == "-" {
		return writeTable(stdout, *s.Table, cfg.JSON)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := writeTable(f, *s.Table, cfg.JSON); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("wrote shift table", "path", out)
	return nil
}

func writeTable(w io.Writer, t shift.Table, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	return tabular.WriteShiftTable(w, t)
}
