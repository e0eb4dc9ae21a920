// Package output renders command results as terminal tables or as JSON or
// YAML documents.
package output

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/clinmap/internal/cmd/table"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/save"
)

// Format names an output format.
type Format string

// Output formats. Wide is the table format with extra detail.
const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Data represents data formatted for table output.
type Data = table.Data

// Formatter writes one value in a fixed format.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format; unknown formats render
// tables.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return encodingFormatter(save.FormatJSON)
	case FormatYAML:
		return encodingFormatter(save.FormatYAML)
	default:
		return TableFormatter{}
	}
}

type encodingFormatter save.Format

func (f encodingFormatter) Format(w io.Writer, data any) error {
	return save.Encode(w, data, save.Format(f))
}

// TableFormatter renders Data directly and reflects other structs and
// struct slices into tables. Anything else is written as JSON.
type TableFormatter struct{}

// Format implements Formatter.
func (TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case Data:
		return render(w, v)
	case *Data:
		return render(w, *v)
	}
	if d, ok := reflectData(data); ok {
		return render(w, d)
	}
	return save.Encode(w, data, save.FormatJSON)
}

var twAlign = map[table.Align]tw.Align{
	table.AlignLeft:   tw.AlignLeft,
	table.AlignCenter: tw.AlignCenter,
	table.AlignRight:  tw.AlignRight,
}

func render(w io.Writer, data Data) error {
	var cfg tablewriter.Config
	if len(data.ColumnAlignment) > 0 {
		align := make([]tw.Align, len(data.ColumnAlignment))
		for i, a := range data.ColumnAlignment {
			if x, ok := twAlign[a]; ok {
				align[i] = x
			} else {
				align[i] = tw.Skip
			}
		}
		cfg.Header.Alignment = tw.CellAlignment{PerColumn: align}
		cfg.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}

	t := tablewriter.NewTable(w, tablewriter.WithConfig(cfg))
	if len(data.Headers) > 0 {
		t.Header(toAny(data.Headers)...)
	}
	for _, row := range data.Rows {
		if err := t.Append(toAny(row)...); err != nil {
			return err
		}
	}
	return t.Render()
}

func toAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

// DetectFormat returns the explicit format when given, otherwise table on
// a terminal and JSON when stdout is piped.
func DetectFormat(explicitFormat string) Format {
	if explicitFormat != "" {
		return Format(strings.ToLower(explicitFormat))
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return FormatTable
	}
	return FormatJSON
}

// ParseFormat converts string to Format with validation.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(s))
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatWide, "":
		return format, nil
	default:
		return "", errors.NewValidationError("format", s, "must be one of: table, wide, json, yaml")
	}
}

// reflectData lays out a struct slice one row per element, and a single
// struct as Property/Value pairs.
func reflectData(data any) (Data, bool) {
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return Data{}, false
		}
		v = v.Elem()
	}

	switch {
	case v.Kind() == reflect.Slice && v.Len() > 0 && v.Index(0).Kind() == reflect.Struct:
		d := Data{Headers: fieldNames(v.Index(0).Type())}
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			row := make([]string, elem.NumField())
			for j := range row {
				row[j] = cellString(elem.Field(j))
			}
			d.Rows = append(d.Rows, row)
		}
		return d, true
	case v.Kind() == reflect.Struct:
		d := Data{Headers: []string{"Property", "Value"}}
		for i, name := range fieldNames(v.Type()) {
			d.Rows = append(d.Rows, []string{name, cellString(v.Field(i))})
		}
		return d, true
	}
	return Data{}, false
}

// fieldNames titles the json tag of each field, or uses the Go name.
func fieldNames(t reflect.Type) []string {
	caser := cases.Title(language.English)
	names := make([]string, t.NumField())
	for i := range names {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "" || tag == "-" {
			names[i] = f.Name
			continue
		}
		names[i] = caser.String(strings.ReplaceAll(tag, "_", " "))
	}
	return names
}

func cellString(v reflect.Value) string {
	if !v.CanInterface() {
		return ""
	}
	switch x := v.Interface().(type) {
	case time.Time:
		return table.FormatTime(x)
	case time.Duration:
		return table.FormatDuration(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
