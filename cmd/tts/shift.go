package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/HatiCode/mastercurve/pkg/session"
	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

type shiftConfig struct {
	commonFlags

	Table  string
	In     string
	Out    string
	Flat   string
	Smooth int
}

func parseShiftFlags(fs *flag.FlagSet, args []string) (shiftConfig, error) {
	var cfg shiftConfig
	cfg.register(fs)
	fs.StringVar(&cfg.Table, "table", "", "Shift-factor table CSV (default: project table)")
	fs.StringVar(&cfg.In, "in", "", "Measurement CSV (default: project measurement or adapter)")
	fs.StringVar(&cfg.Out, "out", "", "Directory for one shifted CSV per temperature (default: project output)")
	fs.StringVar(&cfg.Flat, "flat", "", "Write the flattened master curve to this path, - for stdout")
	fs.IntVar(&cfg.Smooth, "smooth", 0, "Smooth shifted responses with a log-log polynomial of this degree")

	if err := parseArgs(fs, args); err != nil {
		return shiftConfig{}, err
	}
	return cfg, nil
}

func (c shiftConfig) Validate() error {
	if c.Smooth < 0 {
		return fmt.Errorf("-smooth must not be negative")
	}
	return nil
}

func readTable(path string) (shift.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return shift.Table{}, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	t, err := tabular.ReadShiftTable(f)
	if err != nil {
		return shift.Table{}, fmt.Errorf("read table %s: %w", path, err)
	}
	return t, nil
}

func runShift(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseShiftFlags(newFlagSet("shift", stderr), args)
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

	tablePath := cfg.Table
	if tablePath == "" {
		tablePath = proj.resolve(proj.Table)
	}
	if tablePath == "" {
		return fmt.Errorf("%w: -table is required", errUsage)
	}
	table, err := readTable(tablePath)
	if err != nil {
		return err
	}

	src, err := proj.source(cfg.In)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	raw, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load measurement: %w", err)
	}
	logger.Debug("loaded measurement", "adapter", src.Name(), "series", len(raw))

	s, err := session.New(table.FitRefTempC, session.DefaultOptions).WithTable(table).Shift(raw)
	for _, f := range shift.LookupFailures(err) {
		logger.Warn("series skipped", "temperature", f.Label, "tempC", f.TempC)
	}
	if err != nil && !wlf.IsLookup(err) {
		return err
	}
	if len(s.Shifted) == 0 {
		return fmt.Errorf("no series could be shifted")
	}

	if cfg.Smooth > 0 {
		if s, err = s.Smooth(cfg.Smooth); err != nil {
			return err
		}
	}

	outDir := cfg.Out
	if outDir == "" {
		outDir = proj.resolve(proj.Output)
	}
	if outDir != "" {
		paths, err := tabular.ExportShifted(outDir, s.Shifted)
		if err != nil {
			return err
		}
		logger.Info("exported shifted series", "dir", outDir, "files", len(paths))
	}

	flat := cfg.Flat
	if flat == "" && outDir == "" {
		flat = "-"
	}
	switch flat {
	case "":
		return nil
	case "-":
		return tabular.WriteFlattened(stdout, s.Shifted)
	default:
		f, err := os.Create(flat)
		if err != nil {
			return fmt.Errorf("create %s: %w", flat, err)
		}
		if err := tabular.WriteFlattened(f, s.Shifted); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", flat, err)
		}
		logger.Info("wrote master curve", "path", flat)
		return f.Close()
	}
}
