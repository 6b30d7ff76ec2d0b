package scan

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"sync"
)

//go:embed fallback.json
var fallbackData []byte

var (
	fallbackOnce     sync.Once
	fallbackPayloads map[string]json.RawMessage
)

// FallbackPayload returns the synthetic payload for taskID, shaped like the
// real plugin output. Unknown tasks get a generic demo marker. Each call
// returns a fresh value.
func FallbackPayload(taskID string) any {
	fallbackOnce.Do(func() {
		if err := json.Unmarshal(fallbackData, &fallbackPayloads); err != nil {
			panic("scan: invalid embedded fallback data: " + err.Error())
		}
	})
	if raw, ok := fallbackPayloads[taskID]; ok {
		if v, err := decodeJSON(raw); err == nil {
			return v
		}
	}
	return []any{map[string]any{
		"message": "Demo data for " + taskID,
		"note":    "This is sample data - install Volatility 3 for real analysis",
		"plugin":  taskID,
		"status":  "demo_mode",
	}}
}

// parseOutput decodes plugin stdout as JSON, keeping the raw text when it
// is not valid JSON.
func parseOutput(stdout []byte) any {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return ""
	}
	if v, err := decodeJSON(trimmed); err == nil {
		return v
	}
	return string(trimmed)
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
