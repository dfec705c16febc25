package report

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

type YAMLExporter struct{}

// Export goes through JSON first so resource data (raw JSON bytes) renders as a mapping.
func (e *YAMLExporter) Export(in Input, w io.Writer) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(doc)
}

func (e *YAMLExporter) Extension() string { return "yaml" }

func (e *YAMLExporter) ContentType() string { return "application/yaml" }
