package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/HatiCode/mastercurve/pkg/adapters"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

func TestParseFitFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	cfg, err := parseFitFlags(fs, []string{
		"-samples", "0:1.93,10:1.3",
		"-ref", "25",
		"-top", "3",
		"-sort", "c2",
		"-desc",
		"-select", "4,7",
		"-export", "out",
		"-export-step", "10",
		"-json",
		"-v",
	})
	if err != nil {
		t.Fatalf("parseFitFlags: %v", err)
	}
	if cfg.Samples != "0:1.93,10:1.3" || cfg.RefTempC != 25 || cfg.Top != 3 {
		t.Fatalf("Samples=%q RefTempC=%v Top=%d", cfg.Samples, cfg.RefTempC, cfg.Top)
	}
	if cfg.Sort != "c2" || !cfg.Desc || cfg.Select != "4,7" {
		t.Fatalf("Sort=%q Desc=%v Select=%q", cfg.Sort, cfg.Desc, cfg.Select)
	}
	if cfg.Export != "out" || cfg.ExportStep != 10 || !cfg.JSON || !cfg.Verbose {
		t.Fatalf("Export=%q ExportStep=%v JSON=%v Verbose=%v", cfg.Export, cfg.ExportStep, cfg.JSON, cfg.Verbose)
	}
	if !cfg.set["ref"] || cfg.set["project"] {
		t.Fatalf("set=%v", cfg.set)
	}
}

func TestParseFitFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	cfg, err := parseFitFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFitFlags: %v", err)
	}
	if cfg.RefTempC != 40 || cfg.Top != 10 || cfg.ExportStep != 5 {
		t.Fatalf("RefTempC=%v Top=%d ExportStep=%v", cfg.RefTempC, cfg.Top, cfg.ExportStep)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseFlags_RejectsPositionalArgs(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("shift", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseShiftFlags(fs, []string{"extra"}); !errors.Is(err, errUsage) {
		t.Fatalf("err=%v, want errUsage", err)
	}
}

func TestFitConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  fitConfig
	}{
		{"negative top", fitConfig{Top: -1, ExportStep: 5}},
		{"zero export step", fitConfig{}},
		{"unknown column", fitConfig{ExportStep: 5, Sort: "rank"}},
		{"bad id", fitConfig{ExportStep: 5, Select: "1,x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEstimateConfig_Validate(t *testing.T) {
	t.Parallel()

	parse := func(args ...string) estimateConfig {
		t.Helper()
		fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
		cfg, err := parseEstimateFlags(fs, args)
		if err != nil {
			t.Fatalf("parseEstimateFlags: %v", err)
		}
		return cfg
	}

	if err := parse("-c1", "17").Validate(); err == nil {
		t.Fatalf("expected error for -c1 without -c2")
	}
	if err := parse("-c1", "17", "-c2", "52", "-select", "3").Validate(); err == nil {
		t.Fatalf("expected error for -c1 with -select")
	}
	if err := parse("-start", "10", "-stop", "0").Validate(); err == nil {
		t.Fatalf("expected error for inverted axis")
	}
	if err := parse("-c1", "17", "-c2", "52", "-step", "5").Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	a := parse("-step", "10", "-start", "0", "-stop", "40").axis()
	if a.Points != 0 || a.StepC != 10 || a.StartC != 0 || a.StopC != 40 {
		t.Fatalf("axis=%+v", a)
	}
}

func TestParseSamplesFlag(t *testing.T) {
	t.Parallel()

	samples, err := parseSamplesFlag("0:1.93, 10:1.3,,40:0")
	if err != nil {
		t.Fatalf("parseSamplesFlag: %v", err)
	}
	if len(samples) != 3 || samples[1].TempC != 10 || samples[1].LogShift != 1.3 {
		t.Fatalf("samples=%+v", samples)
	}

	for _, in := range []string{"0=1.93", "x:1", "0:"} {
		if _, err := parseSamplesFlag(in); err == nil {
			t.Errorf("parseSamplesFlag(%q): expected error", in)
		}
	}
}

func TestLoadProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	writeFile(t, path, `
referenceTemp: 30
newReferenceTemp: 20
samples:
  - {temp: 0, log_at: 1.93}
  - {temp: 10, log_at: 1.3}
measurement: data/run.csv
table: out/aT.csv
`)

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if p.ReferenceTemp == nil || *p.ReferenceTemp != 30 {
		t.Fatalf("ReferenceTemp=%v", p.ReferenceTemp)
	}
	if p.NewReferenceTemp == nil || *p.NewReferenceTemp != 20 {
		t.Fatalf("NewReferenceTemp=%v", p.NewReferenceTemp)
	}
	if len(p.Samples) != 2 || p.Samples[0].LogShift != 1.93 {
		t.Fatalf("Samples=%+v", p.Samples)
	}
	if got, want := p.resolve(p.Table), filepath.Join(dir, "out", "aT.csv"); got != want {
		t.Fatalf("resolve(table)=%q, want %q", got, want)
	}

	src, err := p.source("")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	csvSrc, ok := src.(*adapters.CSVAdapter)
	if !ok || csvSrc.Path != filepath.Join(dir, "data", "run.csv") {
		t.Fatalf("source=%#v", src)
	}

	src, err = p.source("other.csv")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if src.(*adapters.CSVAdapter).Path != "other.csv" {
		t.Fatalf("-in did not take precedence: %#v", src)
	}
}

func TestLoadProject_HTTPAdapter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "project.yaml")
	writeFile(t, path, `
adapter:
  url: http://lab.local/sweeps
  seriesPath: series
  temperaturePath: temp
  responsePath: modulus
  sharedFrequencyPath: frequency
  headers:
    Authorization: Bearer token
`)

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	src, err := p.source("")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if src.Name() != "http" {
		t.Fatalf("Name()=%q, want http", src.Name())
	}
}

func TestLoadProject_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "samples: [\n"},
		{"measurement and adapter", "measurement: a.csv\nadapter:\n  url: http://x\n"},
		{"non-numeric sample", "samples:\n  - {temp: warm, log_at: 1}\n"},
		{"too many samples", "samples:\n" + strings.Repeat("  - {temp: 20, log_at: 1}\n", wlf.MaxSamples+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "project.yaml")
			writeFile(t, path, tt.content)
			if _, err := LoadProject(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := LoadProject(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestProjectSource_NoMeasurement(t *testing.T) {
	t.Parallel()

	if _, err := (&Project{}).source(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_Dispatch(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), nil, &stdout, &stderr); !errors.Is(err, errUsage) {
		t.Fatalf("no args: err=%v, want errUsage", err)
	}
	if err := run(context.Background(), []string{"bogus"}, &stdout, &stderr); !errors.Is(err, errUsage) {
		t.Fatalf("unknown command: err=%v, want errUsage", err)
	}
	if !strings.Contains(stderr.String(), `unknown command "bogus"`) {
		t.Fatalf("stderr=%q", stderr.String())
	}

	stdout.Reset()
	if err := run(context.Background(), []string{"version"}, &stdout, &stderr); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != version {
		t.Fatalf("version output=%q", stdout.String())
	}
}

func TestRunFit_JSON(t *testing.T) {
	t.Parallel()

	out := runOK(t, "fit", "-json", "-top", "3")

	var res fitOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(res.Candidates) != 3 || res.Total <= 3 {
		t.Fatalf("candidates=%d total=%d", len(res.Candidates), res.Total)
	}
	if !res.Candidates[0].Recommended {
		t.Fatalf("first row not recommended: %+v", res.Candidates[0])
	}
	if res.Refined == nil {
		t.Fatalf("missing refined result")
	}
	if float64(res.Candidates[0].C1) != res.Params.C1 || float64(res.Candidates[0].C2) != res.Params.C2 {
		t.Fatalf("params %v do not match best %+v", res.Params, res.Candidates[0])
	}

	second := res.Candidates[1].ID
	dir := t.TempDir()
	out = runOK(t, "fit", "-json", "-select", strconv.Itoa(second), "-export", dir, "-export-step", "40")
	res = fitOutput{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Exported) != 1 {
		t.Fatalf("exported=%v, want one file", res.Exported)
	}
	want := tabular.FitSheetName(res.Candidates[1].C1, res.Candidates[1].C2) + ".csv"
	if filepath.Base(res.Exported[0]) != want {
		t.Fatalf("exported %q, want %q", res.Exported[0], want)
	}
	if !res.Candidates[1].Selected {
		t.Fatalf("selected candidate not marked: %+v", res.Candidates[1])
	}
}

func TestRunFit_Text(t *testing.T) {
	t.Parallel()

	out := runOK(t, "fit", "-samples", "0:1.93,10:1.3,20:0.9,40:0", "-top", "2")
	if !strings.Contains(out, "best:") || !strings.Contains(out, "refined:") {
		t.Fatalf("output missing summary:\n%s", out)
	}
	if !strings.Contains(out, "2 of ") {
		t.Fatalf("output missing count:\n%s", out)
	}
}

func TestRunEstimateAndShift(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "run.csv"), strings.Join([]string{
		"Frequency,0°C,20°C,40°C",
		"0.1,100,50,10",
		"1,200,80,20",
		"10,400,120,30",
		"",
	}, "\n"))
	writeFile(t, filepath.Join(dir, "project.yaml"), `
referenceTemp: 40
newReferenceTemp: 20
measurement: run.csv
table: out/aT.csv
`)
	project := filepath.Join(dir, "project.yaml")

	runOK(t, "estimate", "-project", project, "-c1", "17.44", "-c2", "51.6", "-step", "5")

	f, err := os.Open(filepath.Join(dir, "out", "aT.csv"))
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	table, err := tabular.ReadShiftTable(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadShiftTable: %v", err)
	}
	row, ok := table.Nearest(20)
	if !ok || row.TempC != 20 || row.Shift != 1 {
		t.Fatalf("row at new reference = %+v, want a_T 1", row)
	}

	flat := filepath.Join(dir, "master.csv")
	runOK(t, "shift", "-project", project, "-out", filepath.Join(dir, "shifted"), "-flat", flat)

	entries, err := os.ReadDir(filepath.Join(dir, "shifted"))
	if err != nil {
		t.Fatalf("read shifted dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("shifted files=%d, want 3", len(entries))
	}
	data, err := os.ReadFile(flat)
	if err != nil {
		t.Fatalf("read master curve: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Fatalf("master curve lines=%d, want header plus 9", len(lines))
	}
}

func TestRunEstimate_Stdout(t *testing.T) {
	t.Parallel()

	out := runOK(t, "estimate", "-new-ref", "20", "-step", "10", "-start", "0", "-stop", "40")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("lines=%d, want header plus 5:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], tabular.HeaderTemperature) {
		t.Fatalf("header=%q", lines[0])
	}
}

func TestRunEstimate_RequiresNewRef(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"estimate", "-c1", "17", "-c2", "52"}, &stdout, &stderr)
	if !errors.Is(err, errUsage) {
		t.Fatalf("err=%v, want errUsage", err)
	}
}

func TestRunShift_MissingTable(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"shift", "-in", "x.csv"}, &stdout, &stderr)
	if !errors.Is(err, errUsage) {
		t.Fatalf("err=%v, want errUsage", err)
	}
}

func runOK(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run %v: %v\nstderr:\n%s", args, err, stderr.String())
	}
	return stdout.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
