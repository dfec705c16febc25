package report

import (
	"encoding/json"
	"io"
)

type JSONExporter struct{}

func (e *JSONExporter) Export(in Input, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(in)
}

func (e *JSONExporter) Extension() string { return "json" }

func (e *JSONExporter) ContentType() string { return "application/json" }
