// Package output prints command results as JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Printer writes values to Out in Format.
type Printer struct {
	Format string
	Out    io.Writer
}

// Print writes v followed by a newline. v must be JSON serializable.
func (p Printer) Print(v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}

	switch p.Format {
	case FormatJSON, "":
		_, err = p.Out.Write(data)
		return err
	case FormatYAML:
		return writeYAML(p.Out, data)
	default:
		return fmt.Errorf("unknown output format %q", p.Format)
	}
}

// marshalJSON indents with two spaces and leaves <, > and & unescaped.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("could not encode output: %w", err)
	}
	return buf.Bytes(), nil
}

// writeYAML converts a JSON document to block style YAML. Going through
// yaml.Node keeps scalars as written, so numbers keep their exact text.
func writeYAML(w io.Writer, jsonData []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("could not convert output to YAML: %w", err)
	}
	clearStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("could not encode output: %w", err)
	}
	return enc.Close()
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
