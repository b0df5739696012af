package compiler

import (
	"github.com/chazu/rastal/vm"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: scope resolution and binding checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer resolves every identifier of a program against the
// binding table and the function registry. It annotates the AST it is
// given in place, so callers hand it a clone of the parsed script.
type SemanticAnalyzer struct {
	bindings Bindings
	registry *vm.Registry
	table    *SymbolTable
	problems Problems

	scope  *Scope
	inInit bool

	// assignedNames holds every name that is the target of a plain
	// assignment anywhere in the script. It separates use-before-assignment
	// from references to names that are never declared.
	assignedNames map[string]bool

	// writtenImages holds destination names assigned anywhere.
	writtenImages map[string]bool

	// written holds destination names assigned so far in program order.
	written map[string]bool

	// read holds source names read anywhere.
	read map[string]bool
}

// NewSemanticAnalyzer creates an analyzer for one binding table. A nil
// registry means vm.DefaultRegistry().
func NewSemanticAnalyzer(bindings Bindings, registry *vm.Registry) *SemanticAnalyzer {
	if registry == nil {
		registry = vm.DefaultRegistry()
	}
	return &SemanticAnalyzer{
		bindings:      bindings,
		registry:      registry,
		table:         newSymbolTable(bindings),
		assignedNames: make(map[string]bool),
		writtenImages: make(map[string]bool),
		written:       make(map[string]bool),
		read:          make(map[string]bool),
	}
}

// Problems returns the accumulated diagnostics in discovery order.
func (s *SemanticAnalyzer) Problems() Problems {
	return s.problems
}

// Symbols returns the symbol table built during analysis.
func (s *SemanticAnalyzer) Symbols() *SymbolTable {
	return s.table
}

// report records a problem at node.
func (s *SemanticAnalyzer) report(code ErrorCode, name string, node Node, format string, args ...interface{}) {
	s.reportAt(code, name, node.Span(), format, args...)
}

func (s *SemanticAnalyzer) reportAt(code ErrorCode, name string, span Span, format string, args ...interface{}) {
	s.problems = append(s.problems, NewProblem(code, name, span, format, args...))
}

// Analyze resolves the whole program.
func (s *SemanticAnalyzer) Analyze(prog *Program) {
	collectAssignments(prog, s.assignedNames, s.writtenImages, s.table.Root)

	s.scope = s.table.Root
	if prog.Init != nil {
		s.inInit = true
		s.analyzeStatements(prog.Init.Statements)
		s.inInit = false
	}

	s.scope = NewScope("pixel", s.table.Root)
	s.analyzeStatements(prog.Body)
	s.scope = s.table.Root

	s.checkImages(prog)
}

// checkImages reports unassigned destinations and unread sources.
func (s *SemanticAnalyzer) checkImages(prog *Program) {
	at := MakeSpan(prog.SpanVal.Start, prog.SpanVal.Start)
	for _, sym := range s.table.Images {
		if sym.Role&RoleDestinationImage != 0 && !s.writtenImages[sym.Name] {
			s.reportAt(UnassignedDestination, sym.Name, at,
				"destination image %s is never assigned", sym.Name)
		}
	}
	for _, sym := range s.table.Images {
		if sym.Role&RoleSourceImage != 0 && !s.read[sym.Name] {
			s.reportAt(UnusedSource, sym.Name, at,
				"source image %s is never read", sym.Name)
		}
	}
}

// collectAssignments walks the program once before resolution, recording
// plain assignment targets and destination writes.
func collectAssignments(prog *Program, names, images map[string]bool, root *Scope) {
	var walk func(n Node)
	walk = func(n Node) {
		switch e := n.(type) {
		case nil, *Literal, *VariableRef:
		case *BinaryOp:
			walk(e.Left)
			walk(e.Right)
		case *UnaryOp:
			walk(e.Operand)
		case *Assignment:
			if !e.Compound {
				names[e.Target] = true
			}
			if sym := root.LookupLocal(e.Target); sym != nil && sym.Role&RoleDestinationImage != 0 {
				images[e.Target] = true
			}
			walk(e.Value)
		case *IncDec:
			if sym := root.LookupLocal(e.Target); sym != nil && sym.Role&RoleDestinationImage != 0 {
				images[e.Target] = true
			}
		case *FunctionCall:
			for _, arg := range e.Args {
				walk(arg)
			}
		case *Block:
			for _, stmt := range e.Statements {
				walk(stmt)
			}
		case *If:
			walk(e.Cond)
			walk(e.Then)
			walk(e.Else)
		case *While:
			walk(e.Cond)
			walk(e.Body)
		default:
			panic(unknownNode(n))
		}
	}
	if prog.Init != nil {
		for _, stmt := range prog.Init.Statements {
			walk(stmt)
		}
	}
	for _, stmt := range prog.Body {
		walk(stmt)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) analyzeStatements(stmts []Node) {
	for _, stmt := range stmts {
		s.analyzeNode(stmt)
	}
}

// analyzeNested resolves a statement in a fresh child scope. Blocks and
// the branches of if/while each get their own scope.
func (s *SemanticAnalyzer) analyzeNested(n Node, name string) {
	outer := s.scope
	s.scope = NewScope(name, outer)
	if block, ok := n.(*Block); ok {
		s.analyzeStatements(block.Statements)
	} else {
		s.analyzeNode(n)
	}
	s.scope = outer
}

func (s *SemanticAnalyzer) analyzeNode(n Node) {
	switch e := n.(type) {
	case *Literal:
		// nothing to resolve

	case *VariableRef:
		s.analyzeRef(e)

	case *BinaryOp:
		s.analyzeNode(e.Left)
		s.analyzeNode(e.Right)

	case *UnaryOp:
		s.analyzeNode(e.Operand)

	case *Assignment:
		s.analyzeAssignment(e)

	case *IncDec:
		e.Symbol = s.analyzeUpdate(e.Target, e)

	case *FunctionCall:
		s.analyzeCall(e)

	case *Block:
		s.analyzeNested(e, "block")

	case *If:
		s.analyzeNode(e.Cond)
		s.analyzeNested(e.Then, "then")
		if e.Else != nil {
			s.analyzeNested(e.Else, "else")
		}

	case *While:
		s.analyzeNode(e.Cond)
		s.analyzeNested(e.Body, "while")

	default:
		panic(unknownNode(n))
	}
}

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

// analyzeRef resolves a plain variable read.
func (s *SemanticAnalyzer) analyzeRef(ref *VariableRef) {
	if _, ok := builtinNames[ref.Name]; ok {
		s.report(AmbiguousUse, ref.Name, ref,
			"%s is a built-in function; call it as %s()", ref.Name, ref.Name)
		return
	}

	sym := s.scope.Lookup(ref.Name)
	if sym == nil {
		s.reportUnresolved(ref.Name, ref)
		return
	}
	if sym.Role.IsImage() {
		s.checkImageRead(sym, ref)
	}
	ref.Symbol = sym
}

// reportUnresolved distinguishes a local used before any visible
// assignment from a name that is never declared.
func (s *SemanticAnalyzer) reportUnresolved(name string, node Node) {
	if s.assignedNames[name] {
		s.report(UseBeforeAssignment, name, node,
			"%s is used before it is assigned", name)
		return
	}
	s.report(UndeclaredIdentifier, name, node, "undeclared identifier %s", name)
}

// checkImageRead applies the read rules for an image symbol.
func (s *SemanticAnalyzer) checkImageRead(sym *Symbol, node Node) {
	if s.inInit {
		s.report(ImageInInit, sym.Name, node,
			"image %s cannot be read in the init block", sym.Name)
		return
	}
	if sym.Role&RoleSourceImage != 0 {
		s.read[sym.Name] = true
		return
	}
	if !s.written[sym.Name] {
		s.report(ReadBeforeWrite, sym.Name, node,
			"destination image %s is read before it is assigned", sym.Name)
	}
}

// checkImageWrite applies the write rules for an image symbol.
func (s *SemanticAnalyzer) checkImageWrite(sym *Symbol, node Node) bool {
	if s.inInit {
		s.report(ReservedName, sym.Name, node,
			"image name %s cannot be assigned in the init block", sym.Name)
		return false
	}
	if sym.Role&RoleDestinationImage == 0 {
		s.report(AssignToSource, sym.Name, node,
			"cannot assign to source image %s", sym.Name)
		return false
	}
	s.written[sym.Name] = true
	return true
}

// analyzeAssignment resolves target = value and the compound forms. The
// value is resolved first, matching evaluation order.
func (s *SemanticAnalyzer) analyzeAssignment(a *Assignment) {
	if a.Compound {
		s.analyzeNode(a.Value)
		a.Symbol = s.analyzeUpdate(a.Target, a)
		return
	}

	s.analyzeNode(a.Value)

	if _, ok := builtinNames[a.Target]; ok {
		s.report(AmbiguousUse, a.Target, a,
			"cannot assign to built-in function %s", a.Target)
		return
	}

	sym := s.scope.Lookup(a.Target)
	switch {
	case sym == nil:
		sym = s.table.declareLocal(s.scope, a.Target, s.inInit, a.SpanVal)
		if _, ok := s.registry.Lookup(a.Target); ok {
			s.report(ShadowsFunction, a.Target, a,
				"variable %s has the same name as a function", a.Target)
		}
	case sym.Role.IsImage():
		if !s.checkImageWrite(sym, a) {
			return
		}
	}
	a.Symbol = sym
}

// analyzeUpdate resolves a read-modify-write of name (compound assignment
// or ++/--). The target must already be visible.
func (s *SemanticAnalyzer) analyzeUpdate(name string, node Node) *Symbol {
	if _, ok := builtinNames[name]; ok {
		s.report(AmbiguousUse, name, node, "cannot assign to built-in function %s", name)
		return nil
	}

	sym := s.scope.Lookup(name)
	if sym == nil {
		s.reportUnresolved(name, node)
		return nil
	}
	if sym.Role.IsImage() {
		if s.inInit {
			s.report(ReservedName, name, node,
				"image name %s cannot be assigned in the init block", name)
			return nil
		}
		if sym.Role&RoleDestinationImage == 0 {
			s.report(AssignToSource, name, node, "cannot assign to source image %s", name)
			return nil
		}
		s.checkImageRead(sym, node)
		s.written[name] = true
	}
	return sym
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) analyzeCall(call *FunctionCall) {
	for _, arg := range call.Args {
		s.analyzeNode(arg)
	}

	switch call.Builtin {
	case BuiltinPositional, BuiltinInfo:
		if len(call.Args) != 0 {
			s.report(WrongArity, call.Name, call,
				"%s() takes no arguments, got %d", call.Name, len(call.Args))
		}
		if call.Builtin == BuiltinPositional && s.inInit {
			s.report(PositionalInInit, call.Name, call,
				"%s() has no meaning in the init block", call.Name)
		}
		return
	}

	fn, ok := s.registry.Lookup(call.Name)
	if !ok {
		s.report(UnknownFunction, call.Name, call, "unknown function %s", call.Name)
		return
	}
	if fn.Arity != len(call.Args) {
		s.report(WrongArity, call.Name, call,
			"%s() takes %d argument%s, got %d", call.Name, fn.Arity, plural(fn.Arity), len(call.Args))
		return
	}
	call.Func = fn
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Resolve analyzes a clone of the script's AST against bindings. The
// script itself is left untouched.
func Resolve(script *Script, bindings Bindings, registry *vm.Registry) (*Program, *SymbolTable, Problems) {
	prog := script.AST.Clone()
	s := NewSemanticAnalyzer(bindings, registry)
	s.Analyze(prog)
	return prog, s.Symbols(), s.Problems()
}
