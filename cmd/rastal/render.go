package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chazu/rastal/compiler"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	locStyle     = lipgloss.NewStyle().Bold(true)
	codeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	gutterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
)

// renderProblems writes each problem as a located message followed by
// the offending source line and a caret under its column.
func renderProblems(w io.Writer, path, source string, problems compiler.Problems) {
	lines := strings.Split(source, "\n")
	for _, p := range problems {
		style := errorStyle
		if p.Severity == compiler.SeverityWarning {
			style = warningStyle
		}
		pos := p.Span.Start
		fmt.Fprintf(w, "%s %s %s %s\n",
			locStyle.Render(fmt.Sprintf("%s:%d:%d:", path, pos.Line, pos.Column)),
			style.Render(p.Severity.String()+":"),
			p.Message,
			codeStyle.Render("["+p.Code.String()+"]"))

		if pos.Line < 1 || pos.Line > len(lines) {
			continue
		}
		line := strings.TrimRight(lines[pos.Line-1], "\r")
		gutter := fmt.Sprintf("%4d | ", pos.Line)
		fmt.Fprintf(w, "%s%s\n", gutterStyle.Render(gutter), line)
		fmt.Fprintf(w, "%s%s%s\n",
			gutterStyle.Render(strings.Repeat(" ", 4)+" | "),
			caretIndent(line, pos.Column),
			style.Render(caret(p.Span)))
	}
}

// caretIndent reproduces the line's tabs so the caret lines up.
func caretIndent(line string, column int) string {
	var sb strings.Builder
	for i := 0; i < column-1 && i < len(line); i++ {
		if line[i] == '\t' {
			sb.WriteByte('\t')
		} else {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// caret underlines a single-line span; multi-line spans get one mark.
func caret(span compiler.Span) string {
	n := 1
	if span.End.Line == span.Start.Line && span.End.Column > span.Start.Column {
		n = span.End.Column - span.Start.Column
	}
	return strings.Repeat("^", n)
}

// summary is the closing line of a check.
func summary(problems compiler.Problems) string {
	errs, warns := len(problems.Errors()), len(problems.Warnings())
	if errs == 0 && warns == 0 {
		return okStyle.Render("ok")
	}
	parts := []string{errorStyle.Render(fmt.Sprintf("%d error%s", errs, plural(errs)))}
	parts = append(parts, warningStyle.Render(fmt.Sprintf("%d warning%s", warns, plural(warns))))
	return strings.Join(parts, ", ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
