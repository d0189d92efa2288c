package cmd

import (
	"strings"
	"testing"
)

func TestTableRenderIncludesHeaderAndRows(t *testing.T) {
	table := NewTable(Column{Name: "ID", Width: 8}, Column{Name: "NAME", Width: 10})
	table.AddRow("r1", "demo")

	out := table.Render()
	if !strings.Contains(out, "ID") || !strings.Contains(out, "NAME") {
		t.Fatalf("expected header columns in output, got %q", out)
	}
	if !strings.Contains(out, "r1") || !strings.Contains(out, "demo") {
		t.Fatalf("expected row values in output, got %q", out)
	}
}

func TestTableAddRowPadsShortRows(t *testing.T) {
	table := NewTable(Column{Name: "A", Width: 4}, Column{Name: "B", Width: 4})
	table.AddRow("x")

	if len(table.rows[0]) != 2 {
		t.Fatalf("expected row padded to 2 cells, got %+v", table.rows[0])
	}
}

func TestRenderIssueAndOK(t *testing.T) {
	if out := RenderIssue("FAILED_WORKERS", "1 worker in Failed status"); !strings.Contains(out, "FAILED_WORKERS") {
		t.Fatalf("expected code in rendered issue, got %q", out)
	}
	if out := RenderOK(); !strings.Contains(out, "OK") {
		t.Fatalf("expected OK in rendered output, got %q", out)
	}
}
