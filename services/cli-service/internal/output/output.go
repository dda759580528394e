// Package output печатает результаты команд таблицей, JSON или YAML
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v2"
)

// FormatType формат вывода
type FormatType string

const (
	FormatTable FormatType = "table"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// ParseFormat проверяет имя формата
func ParseFormat(s string) (FormatType, error) {
	switch f := FormatType(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q, must be one of: table, json, yaml", s)
	}
}

// TableData данные для табличного вывода
type TableData struct {
	Headers []string
	Rows    [][]string
}

// NewTableData создает таблицу с заголовками
func NewTableData(headers ...string) *TableData {
	return &TableData{Headers: headers}
}

// AddRow добавляет строку
func (td *TableData) AddRow(cells ...string) {
	td.Rows = append(td.Rows, cells)
}

// String выравнивает колонки через tabwriter
func (td *TableData) String() string {
	if len(td.Rows) == 0 {
		return "No data found\n"
	}

	var builder strings.Builder
	w := tabwriter.NewWriter(&builder, 0, 0, 2, ' ', 0)

	if len(td.Headers) > 0 {
		fmt.Fprintln(w, strings.Join(td.Headers, "\t"))
		separators := make([]string, len(td.Headers))
		for i := range separators {
			separators[i] = strings.Repeat("-", len(td.Headers[i]))
		}
		fmt.Fprintln(w, strings.Join(separators, "\t"))
	}
	for _, row := range td.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
	return builder.String()
}

// Printer печатает в выбранном формате
type Printer struct {
	out    io.Writer
	format FormatType
}

// NewPrinter создает Printer
func NewPrinter(out io.Writer, format FormatType) *Printer {
	return &Printer{out: out, format: format}
}

// Print выводит data. Для таблицы используется table, для JSON и YAML сами данные.
func (p *Printer) Print(table *TableData, data interface{}) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		raw, err := yaml.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, err = p.out.Write(raw)
		return err
	default:
		_, err := io.WriteString(p.out, table.String())
		return err
	}
}

// Message печатает строку состояния; в JSON и YAML оборачивается в {message}
func (p *Printer) Message(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if p.format == FormatTable {
		_, err := fmt.Fprintln(p.out, msg)
		return err
	}
	return p.Print(nil, map[string]string{"message": msg})
}
