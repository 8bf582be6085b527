package output

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PrettyFormatter renders each section as a titled box using lipgloss.
type PrettyFormatter struct{}

var sectionTitles = map[string]string{
	SectionHost:       "Host",
	SectionDevices:    "Devices",
	SectionInput:      "Input",
	SectionConfig:     "Configuration",
	SectionDemand:     "Resource demand",
	SectionValidation: "Validation",
	SectionDatasets:   "Datasets",
	SectionCache:      "Capability cache",
	SectionWarnings:   "Warnings",
}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	fields := Fields(r)
	if len(fields) == 0 {
		w.WriteString(MutedStyle.Render("Nothing to report"))
		w.WriteString("\n")
		return nil
	}

	var boxes []string
	for _, group := range groupBySection(fields) {
		boxes = append(boxes, f.renderSection(group))
	}
	w.WriteString(lipgloss.JoinVertical(lipgloss.Left, boxes...))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) renderSection(fields []Field) string {
	section := fields[0].Section

	width := 0
	for _, fd := range fields {
		width = max(width, len(fd.Key))
	}

	lines := []string{TitleStyle.Render(sectionTitles[section])}
	for _, fd := range fields {
		label := LabelStyle.Render(padRight(fd.Key, width))
		lines = append(lines, label+"  "+f.styleValue(fd))
	}

	box := SectionBox
	switch section {
	case SectionWarnings:
		box = box.BorderForeground(ColorWarning)
	case SectionValidation:
		box = box.BorderForeground(ColorPrimary)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) styleValue(fd Field) string {
	switch {
	case fd.Section == SectionValidation && fd.Value == "ok":
		return SuccessStyle.Render(fd.Value)
	case fd.Section == SectionValidation:
		return ErrorStyle.Render(fd.Value)
	case fd.Section == SectionDevices && fd.Key == "error":
		return ErrorStyle.Render(fd.Value)
	case fd.Section == SectionWarnings:
		return WarningStyle.Render(fd.Value)
	default:
		return ValueStyle.Render(fd.Value)
	}
}

// groupBySection splits fields into runs sharing a section.
func groupBySection(fields []Field) [][]Field {
	var groups [][]Field
	for i, fd := range fields {
		if i == 0 || fd.Section != fields[i-1].Section {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], fd)
	}
	return groups
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
