// Package tabular reads and writes the CSV tables exchanged with the
// outside world: raw frequency sweeps, shift-factor tables, fit exports and
// shifted master-curve data.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// Column headers.
const (
	HeaderTemperature = "Temperature (°C)"
	HeaderLogShift    = "log(a_T)"
	HeaderShift       = "a_T"
	HeaderFrequency   = "Frequency (Hz)"
	HeaderModulusMPa  = "Modulus (MPa)"
	HeaderModulus     = "Modulus"
)

// ParseTempLabel reads a temperature column header such as "20", "20°C" or
// "-5 °C".
func ParseTempLabel(label string) (float64, error) {
	s := strings.TrimSpace(label)
	s = strings.TrimSuffix(s, "°C")
	s = strings.TrimSuffix(s, "C")
	s = strings.TrimSuffix(s, "°")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &wlf.ValidationError{Field: "temperature header", Reason: fmt.Sprintf("%q is not a temperature", label)}
	}
	return v, nil
}

// ReadMeasurement parses a raw measurement table. The first column holds
// frequencies; each further column holds the responses measured at the
// temperature named by its header. Blank cells are skipped for that column.
func ReadMeasurement(r io.Reader) ([]shift.Series, error) {
	records, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, &wlf.ValidationError{Field: "measurement", Reason: "need a header row and at least one data row"}
	}
	header := records[0]
	if len(header) < 2 {
		return nil, &wlf.ValidationError{Field: "measurement", Reason: "need a frequency column and at least one temperature column"}
	}

	series := make([]shift.Series, len(header)-1)
	for j, label := range header[1:] {
		t, err := ParseTempLabel(label)
		if err != nil {
			return nil, err
		}
		series[j] = shift.Series{Label: strings.TrimSpace(label), TempC: t}
	}

	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		freq, err := parseFinite(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d frequency: %w", line, err)
		}
		for j := range series {
			if j+1 >= len(rec) || strings.TrimSpace(rec[j+1]) == "" {
				continue
			}
			v, err := parseFinite(rec[j+1])
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, series[j].Label, err)
			}
			series[j].Frequency = append(series[j].Frequency, freq)
			series[j].Response = append(series[j].Response, v)
		}
	}
	return series, nil
}

// ReadMeasurementFile opens path and parses it with ReadMeasurement.
func ReadMeasurementFile(path string) ([]shift.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open measurement: %w", err)
	}
	defer f.Close()
	return ReadMeasurement(f)
}

// WriteShiftTable writes the rows of t as Temperature, log(a_T), a_T.
func WriteShiftTable(w io.Writer, t shift.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{HeaderTemperature, HeaderLogShift, HeaderShift}); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := cw.Write([]string{formatFloat(r.TempC), formatFloat(r.LogShift), formatFloat(r.Shift)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadShiftTable reads a table written by WriteShiftTable or any table with
// a temperature column and an a_T or log(a_T) column, in any order. When only
// log(a_T) is present a_T is derived from it, and vice versa.
func ReadShiftTable(r io.Reader) (shift.Table, error) {
	records, err := readAll(r)
	if err != nil {
		return shift.Table{}, err
	}
	if len(records) == 0 {
		return shift.Table{}, &wlf.ValidationError{Field: "shift table", Reason: "empty"}
	}

	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.TrimSpace(h)] = i
	}
	ti, ok := idx[HeaderTemperature]
	if !ok {
		return shift.Table{}, &wlf.ValidationError{Field: "shift table", Reason: "missing " + HeaderTemperature + " column"}
	}
	li, hasLog := idx[HeaderLogShift]
	ai, hasShift := idx[HeaderShift]
	if !hasLog && !hasShift {
		return shift.Table{}, &wlf.ValidationError{Field: "shift table", Reason: "missing a_T and log(a_T) columns"}
	}

	var table shift.Table
	for i, rec := range records[1:] {
		line := i + 2
		temp, err := parseCell(cell(rec, ti))
		if err != nil {
			return shift.Table{}, fmt.Errorf("line %d temperature: %w", line, err)
		}
		var row shift.Row
		switch {
		case hasLog:
			logShift, err := parseCell(cell(rec, li))
			if err != nil {
				return shift.Table{}, fmt.Errorf("line %d log(a_T): %w", line, err)
			}
			row = shift.NewRow(temp, logShift)
			if hasShift {
				if row.Shift, err = parseCell(cell(rec, ai)); err != nil {
					return shift.Table{}, fmt.Errorf("line %d a_T: %w", line, err)
				}
			}
		default:
			aT, err := parseCell(cell(rec, ai))
			if err != nil {
				return shift.Table{}, fmt.Errorf("line %d a_T: %w", line, err)
			}
			row = shift.Row{TempC: temp, LogShift: math.Log10(aT), Shift: aT}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// FitSheetName names the export of one fitted candidate.
func FitSheetName(c1, c2 int) string {
	return fmt.Sprintf("Fit_C1_%d_C2_%d", c1, c2)
}

// FitSheet is the export of one fitted candidate.
type FitSheet struct {
	Name  string      `json:"name"`
	Table shift.Table `json:"table"`
}

// FitSheets evaluates each candidate over axis at refTempC, in candidate
// order.
func FitSheets(candidates []wlf.Candidate, refTempC float64, axis shift.Axis) ([]FitSheet, error) {
	if len(candidates) == 0 {
		return nil, &wlf.ValidationError{Field: "candidates", Reason: "no candidates selected"}
	}
	sheets := make([]FitSheet, 0, len(candidates))
	for _, c := range candidates {
		table, err := shift.BuildTable(c.Params(refTempC), refTempC, axis)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, FitSheet{Name: FitSheetName(c.C1, c.C2), Table: table})
	}
	return sheets, nil
}

// ExportFits writes one shift table per candidate into dir, evaluated on
// axis at refTempC. It returns the written paths in candidate order.
func ExportFits(dir string, candidates []wlf.Candidate, refTempC float64, axis shift.Axis) ([]string, error) {
	sheets, err := FitSheets(candidates, refTempC, axis)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	paths := make([]string, 0, len(sheets))
	for _, sh := range sheets {
		path := filepath.Join(dir, sh.Name+".csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteShiftTable(w, sh.Table) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteShifted writes one shifted series as Frequency (Hz), Modulus (MPa).
func WriteShifted(w io.Writer, s shift.ShiftedSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{HeaderFrequency, HeaderModulusMPa}); err != nil {
		return err
	}
	for i := range s.Frequency {
		if err := cw.Write([]string{formatFloat(s.Frequency[i]), formatFloat(s.Response[i])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ShiftedFileName names the per-temperature export of s.
func ShiftedFileName(s shift.ShiftedSeries) string {
	return fmt.Sprintf("Shifted_%sC.csv", formatFloat(s.TempC))
}

// ExportShifted writes every series of set to its own file in dir.
func ExportShifted(dir string, set []shift.ShiftedSeries) ([]string, error) {
	if len(set) == 0 {
		return nil, &wlf.ValidationError{Field: "shifted data", Reason: "nothing to export"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	paths := make([]string, 0, len(set))
	for _, s := range set {
		path := filepath.Join(dir, ShiftedFileName(s))
		if err := writeFile(path, func(w io.Writer) error { return WriteShifted(w, s) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteFlattened writes every point of set into a single two-column master
// curve. Points are emitted row by row: the i-th point of each series in
// series order, then the (i+1)-th.
func WriteFlattened(w io.Writer, set []shift.ShiftedSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{HeaderFrequency, HeaderModulus}); err != nil {
		return err
	}
	longest := 0
	for _, s := range set {
		longest = max(longest, len(s.Frequency))
	}
	for i := range longest {
		for _, s := range set {
			if i >= len(s.Frequency) {
				continue
			}
			if err := cw.Write([]string{formatFloat(s.Frequency[i]), formatFloat(s.Response[i])}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readAll(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &wlf.ValidationError{Field: "csv", Reason: pe.Error()}
		}
		return nil, err
	}
	return records, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &wlf.ValidationError{Field: "cell", Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return v, nil
}

// parseFinite is parseCell for measurement values, where NaN and infinities
// are never meaningful.
func parseFinite(s string) (float64, error) {
	v, err := parseCell(s)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &wlf.ValidationError{Field: "cell", Reason: fmt.Sprintf("%q is not finite", s)}
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
