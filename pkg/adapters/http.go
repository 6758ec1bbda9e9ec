package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/mastercurve/pkg/shift"
	"github.com/HatiCode/mastercurve/pkg/tabular"
	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// HTTPAdapter calls a REST endpoint and extracts frequency sweeps from its
// JSON response with gjson paths.
//
// SeriesPath selects the array of per-temperature objects. TemperaturePath,
// ResponsePath and FrequencyPath are evaluated against each element. When
// all series share one frequency axis, set SharedFrequencyPath (evaluated
// against the whole document) instead of FrequencyPath.
//
// Example configuration for a rheometer export service:
//
//	adapter := &HTTPAdapter{
//	    URL: "https://lab.example.com/runs/42",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	    },
//	    SeriesPath:          "sweeps",
//	    TemperaturePath:     "temperature",
//	    ResponsePath:        "storage_modulus",
//	    SharedFrequencyPath: "frequency",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required)
	URL string

	// Method is the HTTP method (GET, POST, etc.). Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	// Values can use template variables like {{.Token}}.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	SeriesPath          string
	TemperaturePath     string
	ResponsePath        string
	FrequencyPath       string
	SharedFrequencyPath string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are the variables available in Body and Headers templates.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Load implements Adapter.
func (h *HTTPAdapter) Load(ctx context.Context) ([]shift.Series, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}

	templateData := make(map[string]any, len(h.TemplateVars))
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	series, err := h.extract(respBody)
	if err != nil {
		return nil, err
	}
	if err := Validate(series); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return series, nil
}

func (h *HTTPAdapter) extract(doc []byte) ([]shift.Series, error) {
	if !gjson.ValidBytes(doc) {
		return nil, errors.New("response is not valid JSON")
	}

	items := gjson.GetBytes(doc, h.SeriesPath)
	if !items.Exists() || !items.IsArray() {
		return nil, fmt.Errorf("series path %q not found in response", h.SeriesPath)
	}

	var shared []float64
	if h.SharedFrequencyPath != "" {
		freq := gjson.GetBytes(doc, h.SharedFrequencyPath)
		if !freq.Exists() {
			return nil, fmt.Errorf("frequency path %q not found in response", h.SharedFrequencyPath)
		}
		var err error
		if shared, err = floatsOf(freq, h.SharedFrequencyPath); err != nil {
			return nil, err
		}
	}

	elems := items.Array()
	out := make([]shift.Series, 0, len(elems))
	for i, item := range elems {
		temp := item.Get(h.TemperaturePath)
		if !temp.Exists() {
			return nil, fmt.Errorf("series[%d]: temperature path %q not found", i, h.TemperaturePath)
		}
		label, tempC, err := temperature(temp)
		if err != nil {
			return nil, fmt.Errorf("series[%d]: %w", i, err)
		}

		resp := item.Get(h.ResponsePath)
		if !resp.Exists() {
			return nil, fmt.Errorf("series[%d]: response path %q not found", i, h.ResponsePath)
		}

		var freq []float64
		if h.FrequencyPath != "" {
			f := item.Get(h.FrequencyPath)
			if !f.Exists() {
				return nil, fmt.Errorf("series[%d]: frequency path %q not found", i, h.FrequencyPath)
			}
			if freq, err = floatsOf(f, h.FrequencyPath); err != nil {
				return nil, fmt.Errorf("series[%d]: %w", i, err)
			}
		} else {
			freq = append([]float64(nil), shared...)
		}

		values, err := floatsOf(resp, h.ResponsePath)
		if err != nil {
			return nil, fmt.Errorf("series[%d]: %w", i, err)
		}
		if len(values) != len(freq) {
			return nil, fmt.Errorf("series[%d]: response count (%d) != frequency count (%d)", i, len(values), len(freq))
		}

		out = append(out, shift.Series{
			Label:     label,
			TempC:     tempC,
			Frequency: freq,
			Response:  values,
		})
	}
	return out, nil
}

// temperature accepts either a number of degrees Celsius or a label such as
// "20°C".
func temperature(r gjson.Result) (string, float64, error) {
	if r.Type == gjson.Number {
		v := r.Float()
		return strconv.FormatFloat(v, 'g', -1, 64) + "°C", v, nil
	}
	label := strings.TrimSpace(r.String())
	v, err := tabular.ParseTempLabel(label)
	if err != nil {
		return "", 0, err
	}
	return label, v, nil
}

// floatsOf reads a JSON array of numbers. Any other element type is
// rejected rather than read as zero.
func floatsOf(r gjson.Result, path string) ([]float64, error) {
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			return nil, &wlf.ValidationError{
				Field:  fmt.Sprintf("%s[%d]", path, i),
				Reason: fmt.Sprintf("%s is not a number", v.Raw),
			}
		}
		out[i] = v.Float()
	}
	return out, nil
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// ParseHTTPAdapterConfig creates an HTTPAdapter from a generic config map,
// as decoded from a YAML project file.
//
// Example config:
//
//	url: https://lab.example.com/runs/42
//	headers:
//	  Authorization: Bearer {{.Token}}
//	seriesPath: sweeps
//	temperaturePath: temperature
//	responsePath: storage_modulus
//	sharedFrequencyPath: frequency
//	templateVars:
//	  Token: abc
func ParseHTTPAdapterConfig(config map[string]any) (*HTTPAdapter, error) {
	adapter := &HTTPAdapter{
		TemplateVars: make(map[string]string),
	}

	for key, dst := range map[string]*string{
		"url":                 &adapter.URL,
		"method":              &adapter.Method,
		"body":                &adapter.Body,
		"seriesPath":          &adapter.SeriesPath,
		"temperaturePath":     &adapter.TemperaturePath,
		"responsePath":        &adapter.ResponsePath,
		"frequencyPath":       &adapter.FrequencyPath,
		"sharedFrequencyPath": &adapter.SharedFrequencyPath,
	} {
		if v, ok := config[key]; ok {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a string, got %T", key, v)
			}
			*dst = s
		}
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		adapter.Headers = make(map[string]string)
		for k, v := range headers {
			if str, ok := v.(string); ok {
				adapter.Headers[k] = str
			}
		}
	}

	if vars, ok := config["templateVars"].(map[string]any); ok {
		for k, v := range vars {
			if str, ok := v.(string); ok {
				adapter.TemplateVars[k] = str
			}
		}
	}

	if err := adapter.ValidateConfig(); err != nil {
		return nil, err
	}
	return adapter, nil
}

// ValidateConfig checks if the adapter configuration is valid
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.SeriesPath == "" {
		return errors.New("seriesPath is required")
	}
	if h.TemperaturePath == "" {
		return errors.New("temperaturePath is required")
	}
	if h.ResponsePath == "" {
		return errors.New("responsePath is required")
	}
	if (h.FrequencyPath == "") == (h.SharedFrequencyPath == "") {
		return errors.New("exactly one of frequencyPath or sharedFrequencyPath is required")
	}
	return nil
}
