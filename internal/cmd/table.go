package cmd

// table.go renders the rig and worker list tables and the doctor / town up
// issue lines with lipgloss styles.

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	issueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Column defines a table column with a name and a fixed width.
type Column struct {
	Name  string
	Width int
}

// Table provides minimal styled table rendering for terminal output.
type Table struct {
	columns []Column
	rows    [][]string
	indent  string
}

// NewTable creates a Table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns, indent: "  "}
}

// AddRow appends a row of values, padding short rows with empty cells.
func (t *Table) AddRow(values ...string) *Table {
	for len(values) < len(t.columns) {
		values = append(values, "")
	}
	t.rows = append(t.rows, values)
	return t
}

// Render returns the formatted table string.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}
	var sb strings.Builder

	sb.WriteString(t.indent)
	for _, col := range t.columns {
		sb.WriteString(headerStyle.Render(pad(col.Name, col.Width)))
		sb.WriteString(" ")
	}
	sb.WriteString("\n")

	sb.WriteString(t.indent)
	for _, col := range t.columns {
		sb.WriteString(dimStyle.Render(strings.Repeat("-", col.Width)))
		sb.WriteString(" ")
	}
	sb.WriteString("\n")

	for _, row := range t.rows {
		sb.WriteString(t.indent)
		for i, col := range t.columns {
			sb.WriteString(pad(row[i], col.Width))
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RenderIssue styles a Doctor issue code by severity, reserving red for the
// codes that indicate outright breakage over merely stale configuration.
func RenderIssue(code, detail string) string {
	switch code {
	case "FAILED_WORKERS", "ORPHAN_IN_PROGRESS", "HOOK_DANGLING_WORK":
		return issueStyle.Render(code) + ": " + detail
	case "NO_RIGS", "NO_ACTORS":
		return warnStyle.Render(code) + ": " + detail
	default:
		return code + ": " + detail
	}
}

// RenderOK renders the all-clear message Doctor prints when no issues exist.
func RenderOK() string {
	return okStyle.Render("OK") + ": no issues found"
}
