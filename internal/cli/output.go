package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat selects how a command renders its result.
type OutputFormat string

const (
	// OutputFormatTable formats output as a kubectl-style plain table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON formats output as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats contains all valid output format values.
var ValidOutputFormats = []OutputFormat{
	OutputFormatTable,
	OutputFormatJSON,
	OutputFormatYAML,
}

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (valid formats: table, json, yaml)", format)
	}
}

// WriteJSON writes data as indented JSON followed by a newline.
func WriteJSON(w io.Writer, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}

// WriteYAML writes data as YAML.
func WriteYAML(w io.Writer, data interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to format as YAML: %w", err)
	}
	return enc.Close()
}

// WriteStructured writes data as JSON or YAML. For OutputFormatTable the
// table callback renders the data instead.
func WriteStructured(w io.Writer, format OutputFormat, data interface{}, tableFn func(io.Writer) error) error {
	switch format {
	case OutputFormatJSON:
		return WriteJSON(w, data)
	case OutputFormatYAML:
		return WriteYAML(w, data)
	default:
		return tableFn(w)
	}
}

// NewTable returns a borderless table writer in the style of kubectl
// output: upper-case headers, columns separated by spaces.
func NewTable(w io.Writer, noHeaders bool) *Table {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	style := table.StyleDefault
	style.Options = table.OptionsNoBordersAndSeparators
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "   "
	style.Format.Header = text.FormatUpper
	tw.SetStyle(style)

	return &Table{writer: tw, noHeaders: noHeaders}
}

// Table wraps a go-pretty table writer.
type Table struct {
	writer    table.Writer
	noHeaders bool
	rows      int
}

// SetHeaders sets the column headers.
func (t *Table) SetHeaders(headers ...string) {
	if t.noHeaders {
		return
	}
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	t.writer.AppendHeader(row)
}

// AppendRow adds a row of cells.
func (t *Table) AppendRow(cells ...interface{}) {
	t.writer.AppendRow(table.Row(cells))
	t.rows++
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return t.rows
}

// Render writes the table.
func (t *Table) Render() {
	t.writer.Render()
}

// FormatSuccess formats a success message for CLI output
func FormatSuccess(msg string) string {
	return fmt.Sprintf("%s %s", text.FgGreen.Sprint("✓"), msg)
}

// FormatWarning formats a warning message for CLI output
func FormatWarning(msg string) string {
	return fmt.Sprintf("%s %s", text.FgYellow.Sprint("⚠"), msg)
}

// Pluralize returns count followed by singular, with an "s" when count is not one.
func Pluralize(count int, singular string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %ss", count, singular)
}
