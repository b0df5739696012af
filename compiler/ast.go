package compiler

import (
	"fmt"
	"math"
	"sort"

	"github.com/chazu/rastal/vm"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for raster-algebra scripts
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// MakeSpan creates a span from start to end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// Node is the interface implemented by all AST nodes. The set of node
// types is closed by the unexported marker method; every pass over the
// tree switches on the concrete type.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOperator identifies an arithmetic, relational or logical operator.
type BinaryOperator int

const (
	OpAdd BinaryOperator = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
)

var binaryOperatorNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%", OpPow: "^",
	OpEQ: "==", OpNE: "!=", OpLT: "<", OpLE: "<=", OpGT: ">", OpGE: ">=",
	OpAnd: "&&", OpOr: "||",
}

func (op BinaryOperator) String() string {
	if int(op) < len(binaryOperatorNames) {
		return binaryOperatorNames[op]
	}
	return "?"
}

// UnaryOperator identifies a prefix operator.
type UnaryOperator int

const (
	OpNeg UnaryOperator = iota
	OpPlus
	OpNot
)

func (op UnaryOperator) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpPlus:
		return "+"
	case OpNot:
		return "!"
	}
	return "?"
}

// BuiltinKind classifies a function call resolved by the parser.
type BuiltinKind int

const (
	NotBuiltin BuiltinKind = iota
	BuiltinPositional
	BuiltinInfo
)

// Positional and info built-ins. Both take zero arguments.
var builtinNames = map[string]BuiltinKind{
	"x":      BuiltinPositional,
	"y":      BuiltinPositional,
	"col":    BuiltinPositional,
	"row":    BuiltinPositional,
	"width":  BuiltinInfo,
	"height": BuiltinInfo,
}

// reservedConstants are identifiers the parser turns into literals.
var reservedConstants = map[string]float64{
	"true":  1,
	"false": 0,
	"NaN":   math.NaN(),
	"M_PI":  3.141592653589793,
	"M_E":   2.718281828459045,
}

// LookupBuiltin reports whether name is a built-in function.
func LookupBuiltin(name string) (BuiltinKind, bool) {
	kind, ok := builtinNames[name]
	return kind, ok
}

// LookupConstant reports the value of a reserved constant.
func LookupConstant(name string) (float64, bool) {
	v, ok := reservedConstants[name]
	return v, ok
}

// BuiltinNames returns the built-in function names in sorted order.
func BuiltinNames() []string {
	return sortedKeys(builtinNames)
}

// ConstantNames returns the reserved constant names in sorted order.
func ConstantNames() []string {
	return sortedKeys(reservedConstants)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Literal is a numeric literal or reserved constant.
type Literal struct {
	SpanVal Span
	Value   float64
}

func (n *Literal) Span() Span { return n.SpanVal }
func (n *Literal) node()      {}

// VariableRef reads a variable or an image at the current pixel.
type VariableRef struct {
	SpanVal Span
	Name    string
	Symbol  *Symbol // set by the scope resolver
}

func (n *VariableRef) Span() Span { return n.SpanVal }
func (n *VariableRef) node()      {}

// BinaryOp applies an infix operator.
type BinaryOp struct {
	SpanVal Span
	Op      BinaryOperator
	Left    Node
	Right   Node
}

func (n *BinaryOp) Span() Span { return n.SpanVal }
func (n *BinaryOp) node()      {}

// UnaryOp applies a prefix operator.
type UnaryOp struct {
	SpanVal Span
	Op      UnaryOperator
	Operand Node
}

func (n *UnaryOp) Span() Span { return n.SpanVal }
func (n *UnaryOp) node()      {}

// Assignment stores a value into a variable or destination image. Op is
// the arithmetic operator of a compound assignment (a += b) and is only
// meaningful when Compound is set.
type Assignment struct {
	SpanVal  Span
	Target   string
	Compound bool
	Op       BinaryOperator
	Value    Node
	Symbol   *Symbol // set by the scope resolver
}

func (n *Assignment) Span() Span { return n.SpanVal }
func (n *Assignment) node()      {}

// IncDec is ++/-- in prefix or postfix position.
type IncDec struct {
	SpanVal   Span
	Target    string
	Decrement bool
	Prefix    bool
	Symbol    *Symbol // set by the scope resolver
}

func (n *IncDec) Span() Span { return n.SpanVal }
func (n *IncDec) node()      {}

// FunctionCall calls a positional/info built-in or a registry function.
type FunctionCall struct {
	SpanVal Span
	Name    string
	Args    []Node
	Builtin BuiltinKind
	Func    *vm.Func // registry function, set by the scope resolver
}

func (n *FunctionCall) Span() Span { return n.SpanVal }
func (n *FunctionCall) node()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Block is a brace-delimited statement list with its own scope.
type Block struct {
	SpanVal    Span
	Statements []Node
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}

// If is a conditional statement. Else may be nil.
type If struct {
	SpanVal Span
	Cond    Node
	Then    Node
	Else    Node
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}

// While is a pre-tested loop.
type While struct {
	SpanVal Span
	Cond    Node
	Body    Node
}

func (n *While) Span() Span { return n.SpanVal }
func (n *While) node()      {}

// InitBlock holds statements run once before the per-pixel sweep.
type InitBlock struct {
	SpanVal    Span
	Statements []Node
}

func (n *InitBlock) Span() Span { return n.SpanVal }
func (n *InitBlock) node()      {}

// Program is the root of a parsed script. Init may be nil.
type Program struct {
	SpanVal Span
	Init    *InitBlock
	Body    []Node
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// ---------------------------------------------------------------------------
// Cloning
// ---------------------------------------------------------------------------

// Clone returns a deep copy of the program without resolver annotations.
func (n *Program) Clone() *Program {
	out := &Program{SpanVal: n.SpanVal, Body: cloneNodes(n.Body)}
	if n.Init != nil {
		out.Init = &InitBlock{SpanVal: n.Init.SpanVal, Statements: cloneNodes(n.Init.Statements)}
	}
	return out
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out
}

func cloneNode(n Node) Node {
	switch e := n.(type) {
	case nil:
		return nil
	case *Literal:
		c := *e
		return &c
	case *VariableRef:
		return &VariableRef{SpanVal: e.SpanVal, Name: e.Name}
	case *BinaryOp:
		return &BinaryOp{SpanVal: e.SpanVal, Op: e.Op, Left: cloneNode(e.Left), Right: cloneNode(e.Right)}
	case *UnaryOp:
		return &UnaryOp{SpanVal: e.SpanVal, Op: e.Op, Operand: cloneNode(e.Operand)}
	case *Assignment:
		return &Assignment{SpanVal: e.SpanVal, Target: e.Target, Compound: e.Compound, Op: e.Op, Value: cloneNode(e.Value)}
	case *IncDec:
		return &IncDec{SpanVal: e.SpanVal, Target: e.Target, Decrement: e.Decrement, Prefix: e.Prefix}
	case *FunctionCall:
		return &FunctionCall{SpanVal: e.SpanVal, Name: e.Name, Args: cloneNodes(e.Args), Builtin: e.Builtin}
	case *Block:
		return &Block{SpanVal: e.SpanVal, Statements: cloneNodes(e.Statements)}
	case *If:
		return &If{SpanVal: e.SpanVal, Cond: cloneNode(e.Cond), Then: cloneNode(e.Then), Else: cloneNode(e.Else)}
	case *While:
		return &While{SpanVal: e.SpanVal, Cond: cloneNode(e.Cond), Body: cloneNode(e.Body)}
	default:
		panic(unknownNode(n))
	}
}

// unknownNode formats the panic message for a node type a pass does not
// handle. Reaching it means a new node type was added without updating
// every switch.
func unknownNode(n Node) string {
	return fmt.Sprintf("compiler: unhandled node type %T", n)
}
