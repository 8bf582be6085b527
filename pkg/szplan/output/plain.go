package output

import (
	"bytes"
	"text/tabwriter"
)

// PlainFormatter writes one "section.key value" line per field with aligned
// columns. No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	for _, fd := range Fields(r) {
		if _, err := tw.Write([]byte(fd.Section + "." + fd.Key + "\t" + fd.Value + "\n")); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
