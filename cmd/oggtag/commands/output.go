package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mattermost/oggtag/cmd/oggtag/config"

	"github.com/goccy/go-yaml"
)

// texter is implemented by results that have a human readable form.
type texter interface {
	writeText(w io.Writer) error
}

func output(w io.Writer, format config.OutputFormat, result any) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case config.OutputFormatYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	case config.OutputFormatText, "":
		if t, ok := result.(texter); ok {
			return t.writeText(w)
		}
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// table accumulates aligned "name: value" rows.
type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer) *table {
	return &table{tw: tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)}
}

func (t *table) row(name string, value any) {
	fmt.Fprintf(t.tw, "%s:\t%v\n", name, value)
}

// rowIf adds the row unless value is the zero value of its type.
func (t *table) rowIf(name string, value any) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	case int:
		if v == 0 {
			return
		}
	case uint32:
		if v == 0 {
			return
		}
	}
	t.row(name, value)
}

func (t *table) flush() error {
	return t.tw.Flush()
}
