package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Diagnostics: compilation problems shared by the parser and the resolver
// ---------------------------------------------------------------------------

// Severity of a compilation problem.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Kind groups error codes into the diagnostics taxonomy.
type Kind int

const (
	KindSyntax Kind = iota
	KindScope
	KindArity
	KindUnassignedDestination
	KindWarning
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "SyntaxError"
	case KindScope:
		return "ScopeError"
	case KindArity:
		return "ArityError"
	case KindUnassignedDestination:
		return "UnassignedDestinationError"
	case KindWarning:
		return "Warning"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ErrorCode identifies a specific compilation problem.
type ErrorCode int

const (
	SyntaxError ErrorCode = iota
	UndeclaredIdentifier
	UseBeforeAssignment
	AssignToSource
	UnassignedDestination
	ReadBeforeWrite
	WrongArity
	AmbiguousUse
	ReservedName
	UnknownFunction
	ImageInInit
	PositionalInInit

	// warnings
	ShadowsFunction
	UnusedSource
)

type codeInfo struct {
	name     string
	kind     Kind
	severity Severity
}

var codeTable = map[ErrorCode]codeInfo{
	SyntaxError:           {"SyntaxError", KindSyntax, SeverityError},
	UndeclaredIdentifier:  {"UndeclaredIdentifier", KindScope, SeverityError},
	UseBeforeAssignment:   {"UseBeforeAssignment", KindScope, SeverityError},
	AssignToSource:        {"AssignToSource", KindScope, SeverityError},
	UnassignedDestination: {"UnassignedDestination", KindUnassignedDestination, SeverityError},
	ReadBeforeWrite:       {"ReadBeforeWrite", KindScope, SeverityError},
	WrongArity:            {"WrongArity", KindArity, SeverityError},
	AmbiguousUse:          {"AmbiguousUse", KindScope, SeverityError},
	ReservedName:          {"ReservedName", KindScope, SeverityError},
	UnknownFunction:       {"UnknownFunction", KindScope, SeverityError},
	ImageInInit:           {"ImageInInit", KindScope, SeverityError},
	PositionalInInit:      {"PositionalInInit", KindScope, SeverityError},
	ShadowsFunction:       {"ShadowsFunction", KindWarning, SeverityWarning},
	UnusedSource:          {"UnusedSource", KindWarning, SeverityWarning},
}

func (c ErrorCode) String() string {
	if info, ok := codeTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Kind returns the taxonomy group of the code.
func (c ErrorCode) Kind() Kind {
	return codeTable[c].kind
}

// Severity returns the default severity of the code.
func (c ErrorCode) Severity() Severity {
	return codeTable[c].severity
}

// Problem is one compilation diagnostic. Name is the offending variable,
// if any.
type Problem struct {
	Code     ErrorCode
	Name     string
	Severity Severity
	Message  string
	Span     Span
}

// NewProblem builds a problem with the code's default severity.
func NewProblem(code ErrorCode, name string, span Span, format string, args ...interface{}) Problem {
	return Problem{
		Code:     code,
		Name:     name,
		Severity: code.Severity(),
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	}
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: line %d, column %d: %s [%s]",
		p.Severity, p.Span.Start.Line, p.Span.Start.Column, p.Message, p.Code)
}

// Problems is an ordered diagnostics list.
type Problems []Problem

// HasErrors reports whether any problem has error severity.
func (ps Problems) HasErrors() bool {
	for _, p := range ps {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity problems.
func (ps Problems) Errors() Problems {
	return ps.filter(SeverityError)
}

// Warnings returns only the warning-severity problems.
func (ps Problems) Warnings() Problems {
	return ps.filter(SeverityWarning)
}

func (ps Problems) filter(sev Severity) Problems {
	var out Problems
	for _, p := range ps {
		if p.Severity == sev {
			out = append(out, p)
		}
	}
	return out
}

// Has reports whether a problem with the given code is present.
func (ps Problems) Has(code ErrorCode) bool {
	for _, p := range ps {
		if p.Code == code {
			return true
		}
	}
	return false
}

// HasKind reports whether a problem of the given taxonomy kind is present.
func (ps Problems) HasKind(kind Kind) bool {
	for _, p := range ps {
		if p.Code.Kind() == kind {
			return true
		}
	}
	return false
}

func (ps Problems) String() string {
	lines := make([]string, len(ps))
	for i, p := range ps {
		lines[i] = p.String()
	}
	return strings.Join(lines, "\n")
}

// CompileError is returned when a script has at least one error-severity
// problem. It carries the full diagnostics list, warnings included.
type CompileError struct {
	Problems Problems
}

func (e *CompileError) Error() string {
	errs := e.Problems.Errors()
	if len(errs) == 1 {
		return "compile failed: " + errs[0].String()
	}
	return fmt.Sprintf("compile failed with %d errors:\n%s", len(errs), errs.String())
}
