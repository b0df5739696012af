package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/rastal/vm"
)

var log = commonlog.GetLogger("rastal.compiler")

// Strategy selects how a resolved script is lowered.
type Strategy int

const (
	// StrategyBytecode lowers to vm chunks run by the dispatch loop.
	StrategyBytecode Strategy = iota
	// StrategyTree evaluates the annotated AST directly.
	StrategyTree
)

func (s Strategy) String() string {
	switch s {
	case StrategyBytecode:
		return "bytecode"
	case StrategyTree:
		return "tree"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy maps a strategy name back to its value.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "bytecode":
		return StrategyBytecode, nil
	case "tree":
		return StrategyTree, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

type options struct {
	strategy Strategy
	registry *vm.Registry
}

// Option configures Compile.
type Option func(*options)

// WithStrategy selects the lowering strategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithRegistry resolves calls against r instead of vm.DefaultRegistry().
func WithRegistry(r *vm.Registry) Option {
	return func(o *options) { o.registry = r }
}

// Result is everything a compilation produced. Program is nil whenever
// Problems holds an error.
type Result struct {
	Script   *Script
	Symbols  *SymbolTable
	Problems Problems
	Program  *vm.Program
}

// Compile parses, resolves and lowers a script. On any error-severity
// problem it returns the partial Result together with a *CompileError.
func Compile(source string, bindings Bindings, opts ...Option) (*Result, error) {
	script, problems := Parse(source)
	if script == nil {
		return &Result{Problems: problems}, &CompileError{Problems: problems}
	}
	return CompileScript(script, bindings, opts...)
}

// CompileScript resolves and lowers an already parsed script. The script
// is not modified, so it may be compiled against other bindings again.
func CompileScript(script *Script, bindings Bindings, opts ...Option) (*Result, error) {
	o := options{strategy: StrategyBytecode}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = vm.DefaultRegistry()
	}
	if err := bindings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bindings: %w", err)
	}

	prog, table, problems := Resolve(script, bindings, o.registry)
	result := &Result{Script: script, Symbols: table, Problems: problems}
	if problems.HasErrors() {
		log.Debugf("compile failed with %d problems", len(problems))
		return result, &CompileError{Problems: problems}
	}

	program := &vm.Program{
		Images:     bindings.images(),
		VarNames:   table.LocalNames(),
		Persistent: make([]bool, len(table.Locals)),
		Strategy:   o.strategy.String(),
	}
	for _, sym := range table.Locals {
		program.Persistent[sym.Slot] = sym.Persistent
	}

	switch o.strategy {
	case StrategyTree:
		if prog.Init != nil {
			program.Init = &TreeEvaluator{Statements: prog.Init.Statements}
		}
		program.Body = &TreeEvaluator{Statements: prog.Body}

	case StrategyBytecode:
		init, body, err := GenerateBytecode(prog, table)
		if err != nil {
			return result, fmt.Errorf("code generation: %w", err)
		}
		if init != nil {
			program.Init = init
		}
		program.Body = body

	default:
		return result, fmt.Errorf("unknown strategy %s", o.strategy)
	}

	log.Debugf("compiled script: %d images, %d variables, strategy %s",
		len(program.Images), len(program.VarNames), o.strategy)
	result.Program = program
	return result, nil
}

// Check returns the diagnostics of a script without building a program.
func Check(source string, bindings Bindings, opts ...Option) Problems {
	script, problems := Parse(source)
	if script == nil {
		return problems
	}
	if bad := BindingProblems(bindings); len(bad) > 0 {
		return bad
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	_, _, problems = Resolve(script, bindings, o.registry)
	return problems
}

// BindingProblems reports an invalid binding table as a ReservedName
// problem at the start of the script, or nil when the table is valid.
func BindingProblems(bindings Bindings) Problems {
	err := bindings.Validate()
	if err == nil {
		return nil
	}
	start := Position{Line: 1, Column: 1}
	return Problems{NewProblem(ReservedName, "", MakeSpan(start, start), "invalid bindings: %s", err)}
}
