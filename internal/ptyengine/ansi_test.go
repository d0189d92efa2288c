package ptyengine

import "testing"

func TestStripANSIRemovesCSI(t *testing.T) {
	in := "\x1b[1;32mhello\x1b[0m world"
	if got := stripANSI(in); got != "hello world" {
		t.Fatalf("stripANSI(%q) = %q", in, got)
	}
}

func TestStripANSIRemovesOSCWithBEL(t *testing.T) {
	in := "\x1b]0;my title\x07prompt> "
	if got := stripANSI(in); got != "prompt> " {
		t.Fatalf("stripANSI(%q) = %q", in, got)
	}
}

func TestStripANSIRemovesOSCWithST(t *testing.T) {
	in := "\x1b]0;my title\x1b\\prompt> "
	if got := stripANSI(in); got != "prompt> " {
		t.Fatalf("stripANSI(%q) = %q", in, got)
	}
}

func TestStripANSIPassesPlainText(t *testing.T) {
	in := "no escapes here"
	if got := stripANSI(in); got != in {
		t.Fatalf("stripANSI(%q) = %q", in, got)
	}
}

func TestStripANSIHandlesTrailingEscape(t *testing.T) {
	in := "trailing\x1b"
	if got := stripANSI(in); got != "trailing" {
		t.Fatalf("stripANSI(%q) = %q", in, got)
	}
}
