package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// TSVFormatter writes SECTION, KEY and VALUE columns separated by tabs.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString("SECTION\tKEY\tVALUE\n")
	for _, fd := range Fields(r) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", fd.Section, fd.Key, fd.Value)
	}
	return nil
}

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

// Ensure TSVFormatter implements Formatter.
var _ Formatter = (*TSVFormatter)(nil)

// CSVFormatter writes SECTION, KEY and VALUE columns with RFC 4180 quoting.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"SECTION", "KEY", "VALUE"}); err != nil {
		return err
	}
	for _, fd := range Fields(r) {
		if err := writer.Write([]string{fd.Section, fd.Key, fd.Value}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)

// MarkdownFormatter writes a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString("| SECTION | KEY | VALUE |\n")
	w.WriteString("|---------|-----|-------|\n")

	for _, fd := range Fields(r) {
		fmt.Fprintf(w, "| %s | %s | %s |\n",
			escapeMarkdownPipe(fd.Section), escapeMarkdownPipe(fd.Key), escapeMarkdownPipe(fd.Value))
	}
	return nil
}

// escapeMarkdownPipe escapes pipe characters in a string for Markdown tables.
func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

// Ensure MarkdownFormatter implements Formatter.
var _ Formatter = (*MarkdownFormatter)(nil)
