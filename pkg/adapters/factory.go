package adapters

import (
	"encoding/json"
	"fmt"
)

// New creates an adapter from a kind and a flat configuration map, as read
// from flags or environment variables.
//
// Supported kinds:
//   - "csv":  requires "path"
//   - "http": requires "url", "seriesPath", "temperaturePath",
//     "responsePath" and one of "frequencyPath" or "sharedFrequencyPath";
//     optional "method", "body", "headers" and "templateVars" (JSON objects)
func New(kind string, config map[string]string) (Adapter, error) {
	switch kind {
	case "csv":
		return newCSV(config)
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be csv or http)", kind)
	}
}

func newCSV(config map[string]string) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv adapter requires 'path' config")
	}
	return &CSVAdapter{Path: path}, nil
}

func newHTTP(config map[string]string) (Adapter, error) {
	a := &HTTPAdapter{
		URL:                 config["url"],
		Method:              config["method"],
		Body:                config["body"],
		SeriesPath:          config["seriesPath"],
		TemperaturePath:     config["temperaturePath"],
		ResponsePath:        config["responsePath"],
		FrequencyPath:       config["frequencyPath"],
		SharedFrequencyPath: config["sharedFrequencyPath"],
	}
	if a.Method == "" {
		a.Method = "GET"
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
