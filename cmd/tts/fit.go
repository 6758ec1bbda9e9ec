package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/HatiCode/mastercurve/pkg/ranking"
	"github.com/HatiCode/mastercurve/pkg/session"
	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

const defaultRefTempC = 40

type fitConfig struct {
	commonFlags

	Samples    string
	RefTempC   float64
	Top        int
	Sort       string
	Desc       bool
	Select     string
	Export     string
	ExportStep float64
	JSON       bool

	set map[string]bool
}

func parseFitFlags(fs *flag.FlagSet, args []string) (fitConfig, error) {
	cfg := fitConfig{RefTempC: defaultRefTempC, Top: 10, ExportStep: shift.ExportAxis.StepC}
	cfg.register(fs)
	fs.StringVar(&cfg.Samples, "samples", "", "Observations as temp:logAT pairs, comma-separated (overrides project samples)")
	fs.Float64Var(&cfg.RefTempC, "ref", cfg.RefTempC, "Reference temperature in °C")
	fs.IntVar(&cfg.Top, "top", cfg.Top, "Candidates to print, 0 for all")
	fs.StringVar(&cfg.Sort, "sort", "", "Sort candidates by C1, C2 or SSE (default rank order)")
	fs.BoolVar(&cfg.Desc, "desc", false, "Sort descending")
	fs.StringVar(&cfg.Select, "select", "", "Candidate IDs to select, comma-separated")
	fs.StringVar(&cfg.Export, "export", "", "Write one shift table per selected candidate (or the best) into this directory")
	fs.Float64Var(&cfg.ExportStep, "export-step", cfg.ExportStep, "Export axis step in °C")
	fs.BoolVar(&cfg.JSON, "json", false, "Print the result as JSON")

	if err := parseArgs(fs, args); err != nil {
		return fitConfig{}, err
	}
	cfg.set = visited(fs)
	return cfg, nil
}

func (c fitConfig) Validate() error {
	if c.Top < 0 {
		return fmt.Errorf("-top must not be negative")
	}
	if c.ExportStep <= 0 {
		return fmt.Errorf("-export-step must be positive")
	}
	if c.Sort != "" {
		if _, err := ranking.ParseColumn(c.Sort); err != nil {
			return err
		}
	}
	if _, err := parseIDs(c.Select); err != nil {
		return err
	}
	return nil
}

// inputs resolves samples and reference temperature: flags, then the
// project, then built-in defaults.
func (c fitConfig) inputs(p *Project) ([]wlf.Sample, float64, error) {
	ref := c.RefTempC
	if !c.set["ref"] && p.ReferenceTemp != nil {
		ref = *p.ReferenceTemp
	}
	samples, err := resolveSamples(c.Samples, p)
	if err != nil {
		return nil, 0, err
	}
	return samples, ref, nil
}

// resolveSamples parses flag samples, falling back to the project's and then
// to wlf.DefaultSamples.
func resolveSamples(flagValue string, p *Project) ([]wlf.Sample, error) {
	switch {
	case flagValue != "":
		return parseSamplesFlag(flagValue)
	case len(p.Samples) > 0:
		return p.Samples, nil
	default:
		return wlf.DefaultSamples(), nil
	}
}

// parseSamplesFlag reads "0:1.93,10:1.3" into samples.
func parseSamplesFlag(s string) ([]wlf.Sample, error) {
	var temps, logs []string
	for _, pair := range strings.Split(s, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		t, l, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid sample %q (expected temp:logAT)", pair)
		}
		temps = append(temps, t)
		logs = append(logs, l)
	}
	return wlf.ParseSamples(temps, logs)
}

func parseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, f := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid candidate ID %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type fitOutput struct {
	Params     wlf.Params    `json:"params"`
	Refined    *wlf.Refined  `json:"refined"`
	Total      int           `json:"total"`
	Candidates []ranking.Row `json:"candidates"`
	Exported   []string      `json:"exported,omitempty"`
}

func runFit(_ context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFitFlags(newFlagSet("fit", stderr), args)
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
	samples, ref, err := cfg.inputs(proj)
	if err != nil {
		return err
	}

	logger.Debug("fitting", "samples", len(samples), "refTempC", ref)
	s, err := session.New(ref, session.DefaultOptions).Fit(samples, ref)
	if err != nil {
		return err
	}

	ids, _ := parseIDs(cfg.Select)
	for _, id := range ids {
		if _, err := s.Ranking.Toggle(id); err != nil {
			return err
		}
	}

	rows := s.Ranking.Rows()
	if cfg.Sort != "" {
		col, _ := ranking.ParseColumn(cfg.Sort)
		dir := ranking.Ascending
		if cfg.Desc {
			dir = ranking.Descending
		}
		if rows, err = s.Ranking.Sort(col, dir); err != nil {
			return err
		}
	}
	total := len(rows)
	if cfg.Top > 0 && len(rows) > cfg.Top {
		rows = rows[:cfg.Top]
	}

	out := fitOutput{Params: s.Params, Refined: s.Refined, Total: total, Candidates: rows}

	if cfg.Export != "" {
		export := s.Ranking.Selected()
		if len(export) == 0 {
			best, _ := s.Ranking.Best()
			export = []wlf.Candidate{best}
		}
		axis := shift.ExportAxis
		axis.StepC = cfg.ExportStep
		paths, err := tabular.ExportFits(cfg.Export, export, ref, axis)
		if err != nil {
			return err
		}
		out.Exported = paths
		logger.Info("exported fits", "dir", cfg.Export, "files", len(paths))
	}

	if cfg.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printFit(stdout, out)
}

func printFit(w io.Writer, out fitOutput) error {
	fmt.Fprintf(w, "best:    %s\n", out.Params)
	if out.Refined != nil {
		fmt.Fprintf(w, "refined: C1=%d C2=%d SSE=%.4g (%d iterations)\n",
			out.Refined.C1, out.Refined.C2, out.Refined.SSE, out.Refined.Iterations)
	}
	fmt.Fprintf(w, "\n%d of %d candidates\n", len(out.Candidates), out.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tC1\tC2\tSSE\t")
	for _, r := range out.Candidates {
		mark := ""
		switch {
		case r.Recommended && r.Selected:
			mark = "* selected"
		case r.Recommended:
			mark = "*"
		case r.Selected:
			mark = "selected"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID,
			ranking.Cell(r.Candidate, ranking.ColumnC1),
			ranking.Cell(r.Candidate, ranking.ColumnC2),
			strconv.FormatFloat(r.SSE, 'f', 1, 64),
			mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, p := range out.Exported {
		fmt.Fprintln(w, "wrote", p)
	}
	return nil
}
