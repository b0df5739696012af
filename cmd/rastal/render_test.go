package main

import (
	"strings"
	"testing"

	"github.com/chazu/rastal/compiler"
)

var testBindings = compiler.Bindings{
	{Name: "a", Role: compiler.Source},
	{Name: "out", Role: compiler.Destination},
}

func TestRenderProblems(t *testing.T) {
	source := "t = 1;\nout = q + t;"
	problems := compiler.Check(source, testBindings)

	var sb strings.Builder
	renderProblems(&sb, "main.ras", source, problems)
	got := sb.String()

	for _, want := range []string{
		"main.ras:2:7:",
		"error:",
		"[UndeclaredIdentifier]",
		"2 | out = q + t;",
		"^",
		"warning:",
		"[UnusedSource]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestCaret(t *testing.T) {
	span := compiler.MakeSpan(compiler.Position{Line: 1, Column: 3}, compiler.Position{Line: 1, Column: 7})
	if got := caret(span); got != "^^^^" {
		t.Errorf("caret = %q", got)
	}
	multi := compiler.MakeSpan(compiler.Position{Line: 1, Column: 3}, compiler.Position{Line: 2, Column: 1})
	if got := caret(multi); got != "^" {
		t.Errorf("multi-line caret = %q", got)
	}
	if got := caretIndent("\tout = q;", 8); got != "\t      " {
		t.Errorf("indent = %q", got)
	}
}

func TestSummary(t *testing.T) {
	if got := summary(nil); !strings.Contains(got, "ok") {
		t.Errorf("clean summary = %q", got)
	}
	got := summary(compiler.Check("out = q;", testBindings))
	if !strings.Contains(got, "1 error") || !strings.Contains(got, "1 warning") {
		t.Errorf("summary = %q", got)
	}
}
