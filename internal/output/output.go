package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mj1618/voxnav/internal/model"
	"gopkg.in/yaml.v3"
)

// Format represents the output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// OutputFormat is the current output format, set by the root command's --format flag.
var OutputFormat Format = FormatYAML

// PrettyOutput enables pretty-printing for JSON output.
var PrettyOutput bool

// Writer receives all command output.
var Writer io.Writer = os.Stdout

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatYAML, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use yaml or json)", s)
	}
}

// ElementsResult is the top-level output of commands that list registry
// elements.
type ElementsResult struct {
	Container string          `yaml:"container,omitempty" json:"container,omitempty"`
	Epoch     int             `yaml:"epoch,omitempty"     json:"epoch,omitempty"`
	TS        int64           `yaml:"ts"                  json:"ts"`
	Elements  []model.Element `yaml:"elements"            json:"elements"`
}

// ErrorResult is printed when a command fails with a structured error.
type ErrorResult struct {
	OK         bool     `yaml:"ok"                   json:"ok"`
	Kind       string   `yaml:"kind,omitempty"       json:"kind,omitempty"`
	Error      string   `yaml:"error"                json:"error"`
	Candidates []string `yaml:"candidates,omitempty" json:"candidates,omitempty"`
}

// Print serializes v to Writer in the current output format.
func Print(v interface{}) error {
	switch OutputFormat {
	case FormatJSON:
		return PrintJSON(v, PrettyOutput)
	case FormatYAML:
		return PrintYAML(v)
	default:
		return fmt.Errorf("unsupported output format: %s", OutputFormat)
	}
}

// PrintJSON serializes v to Writer as JSON.
// If pretty is true, uses indentation; otherwise single-line.
func PrintJSON(v interface{}, pretty bool) error {
	enc := json.NewEncoder(Writer)
	if pretty {
		enc.SetIndent("", "  ")
	}
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// PrintYAML serializes v to Writer as YAML.
func PrintYAML(v interface{}) error {
	enc := yaml.NewEncoder(Writer)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}
	return enc.Close()
}
