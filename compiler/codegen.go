package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/rastal/vm"
)

// ---------------------------------------------------------------------------
// Code Generator: lowers the annotated AST to vm bytecode
// ---------------------------------------------------------------------------

// CodeGenerator emits one chunk. It tracks the operand stack depth so the
// chunk can declare the stack size it needs.
type CodeGenerator struct {
	chunk    *vm.Chunk
	depth    int
	maxDepth int
	err      error
}

// NewCodeGenerator creates a generator for a chunk with the given name and
// debug tables.
func NewCodeGenerator(name string, table *SymbolTable) *CodeGenerator {
	chunk := vm.NewChunk(name)
	chunk.VarNames = table.LocalNames()
	for _, img := range table.Images {
		chunk.ImageNames = append(chunk.ImageNames, img.Name)
	}
	return &CodeGenerator{chunk: chunk}
}

// Generate compiles a statement list and returns the finished chunk.
func (g *CodeGenerator) Generate(stmts []Node) (*vm.Chunk, error) {
	for _, stmt := range stmts {
		g.compileStmt(stmt)
	}
	g.emit(vm.OpReturn)
	if g.err != nil {
		return nil, g.err
	}
	g.chunk.MaxStack = g.maxDepth
	return g.chunk, nil
}

// errorf records the first code generation error.
func (g *CodeGenerator) errorf(format string, args ...interface{}) {
	if g.err == nil {
		g.err = fmt.Errorf(format, args...)
	}
}

// adjust moves the tracked stack depth.
func (g *CodeGenerator) adjust(delta int) {
	g.depth += delta
	if g.depth > g.maxDepth {
		g.maxDepth = g.depth
	}
}

// emit appends an operand-free opcode and tracks its stack effect.
func (g *CodeGenerator) emit(op vm.Opcode) {
	info := vm.GetOpcodeInfo(op)
	g.chunk.Emit(op)
	g.adjust(info.StackPush - info.StackPop)
}

func (g *CodeGenerator) emitJump(op vm.Opcode) int {
	info := vm.GetOpcodeInfo(op)
	g.adjust(info.StackPush - info.StackPop)
	return g.chunk.EmitJump(op)
}

func (g *CodeGenerator) patchJump(placeholder int) {
	if err := g.chunk.PatchJump(placeholder); err != nil {
		g.errorf("%v", err)
	}
}

func (g *CodeGenerator) mark(n Node) {
	pos := n.Span().Start
	g.chunk.AddSourceLocation(uint32(g.chunk.CurrentOffset()), uint32(pos.Line), uint16(pos.Column))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *CodeGenerator) compileStmt(n Node) {
	g.mark(n)

	switch s := n.(type) {
	case *Block:
		for _, stmt := range s.Statements {
			g.compileStmt(stmt)
		}

	case *If:
		g.compileExpr(s.Cond)
		elseJump := g.emitJump(vm.OpJumpFalse)
		g.compileStmt(s.Then)
		if s.Else == nil {
			g.patchJump(elseJump)
			return
		}
		endJump := g.emitJump(vm.OpJump)
		g.patchJump(elseJump)
		g.compileStmt(s.Else)
		g.patchJump(endJump)

	case *While:
		loopStart := g.chunk.CurrentOffset()
		g.compileExpr(s.Cond)
		exitJump := g.emitJump(vm.OpJumpFalse)
		g.compileStmt(s.Body)
		if err := g.chunk.EmitLoop(loopStart); err != nil {
			g.errorf("%v", err)
		}
		g.patchJump(exitJump)

	case *Assignment:
		g.compileAssignment(s, false)

	case *IncDec:
		g.compileIncDec(s, false)

	default:
		g.compileExpr(n)
		g.emit(vm.OpPop)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOpcodes = map[BinaryOperator]vm.Opcode{
	OpAdd: vm.OpAdd,
	OpSub: vm.OpSub,
	OpMul: vm.OpMul,
	OpDiv: vm.OpDiv,
	OpMod: vm.OpMod,
	OpPow: vm.OpPow,
	OpEQ:  vm.OpEq,
	OpNE:  vm.OpNe,
	OpLT:  vm.OpLt,
	OpLE:  vm.OpLe,
	OpGT:  vm.OpGt,
	OpGE:  vm.OpGe,
}

func (g *CodeGenerator) compileExpr(n Node) {
	switch e := n.(type) {
	case *Literal:
		g.chunk.EmitConstant(e.Value)
		g.adjust(1)

	case *VariableRef:
		g.compileLoad(e.Symbol)

	case *BinaryOp:
		g.compileBinary(e)

	case *UnaryOp:
		g.compileExpr(e.Operand)
		switch e.Op {
		case OpNeg:
			g.emit(vm.OpNeg)
		case OpNot:
			g.emit(vm.OpNot)
		}

	case *Assignment:
		g.compileAssignment(e, true)

	case *IncDec:
		g.compileIncDec(e, true)

	case *FunctionCall:
		g.compileCall(e)

	default:
		panic(unknownNode(n))
	}
}

// compileBinary emits arithmetic and comparisons directly; && and ||
// short-circuit and leave 0 or 1.
func (g *CodeGenerator) compileBinary(b *BinaryOp) {
	switch b.Op {
	case OpAnd, OpOr:
		jump, shortValue := vm.OpJumpFalse, vm.OpConstZero
		if b.Op == OpOr {
			jump, shortValue = vm.OpJumpTrue, vm.OpConstOne
		}
		g.compileExpr(b.Left)
		shortJump := g.emitJump(jump)
		g.compileExpr(b.Right)
		g.emit(vm.OpTruthy)
		endJump := g.emitJump(vm.OpJump)
		g.patchJump(shortJump)
		g.adjust(-1) // the short path joins without the right operand
		g.emit(shortValue)
		g.patchJump(endJump)
		return
	}

	g.compileExpr(b.Left)
	g.compileExpr(b.Right)
	op, ok := binaryOpcodes[b.Op]
	if !ok {
		g.errorf("no opcode for operator %s", b.Op)
		return
	}
	g.emit(op)
}

// compileLoad pushes the value of a variable or image.
func (g *CodeGenerator) compileLoad(sym *Symbol) {
	if sym == nil {
		g.errorf("unresolved symbol")
		return
	}
	if sym.Role.IsImage() {
		g.chunk.EmitWithOperand(vm.OpReadImage, g.imageOperand(sym))
	} else {
		g.chunk.EmitUint16(vm.OpLoadVar, g.slotOperand(sym))
	}
	g.adjust(1)
}

// compileStore pops into a variable or destination image.
func (g *CodeGenerator) compileStore(sym *Symbol) {
	if sym == nil {
		g.errorf("unresolved symbol")
		return
	}
	if sym.Role.IsImage() {
		g.chunk.EmitWithOperand(vm.OpWriteImage, g.imageOperand(sym))
	} else {
		g.chunk.EmitUint16(vm.OpStoreVar, g.slotOperand(sym))
	}
	g.adjust(-1)
}

func (g *CodeGenerator) imageOperand(sym *Symbol) byte {
	if sym.Slot > math.MaxUint8 {
		g.errorf("image %s: more than %d images", sym.Name, math.MaxUint8+1)
	}
	return byte(sym.Slot)
}

func (g *CodeGenerator) slotOperand(sym *Symbol) uint16 {
	if sym.Slot > math.MaxUint16 {
		g.errorf("variable %s: more than %d variables", sym.Name, math.MaxUint16+1)
	}
	return uint16(sym.Slot)
}

// compileAssignment stores a value; keep leaves the assigned value on the
// stack when the assignment is used as an expression.
func (g *CodeGenerator) compileAssignment(a *Assignment, keep bool) {
	if a.Compound {
		g.compileLoad(a.Symbol)
		g.compileExpr(a.Value)
		g.emit(binaryOpcodes[a.Op])
	} else {
		g.compileExpr(a.Value)
	}
	if keep {
		g.emit(vm.OpDup)
	}
	g.compileStore(a.Symbol)
}

// compileIncDec emits ++/--. The prefix form yields the updated value,
// the postfix form the original one.
func (g *CodeGenerator) compileIncDec(n *IncDec, keep bool) {
	op := vm.OpAdd
	if n.Decrement {
		op = vm.OpSub
	}

	g.compileLoad(n.Symbol)
	if keep && !n.Prefix {
		g.emit(vm.OpDup)
	}
	g.emit(vm.OpConstOne)
	g.emit(op)
	if keep && n.Prefix {
		g.emit(vm.OpDup)
	}
	g.compileStore(n.Symbol)
}

var builtinOpcodes = map[string]vm.Opcode{
	"x":      vm.OpX,
	"col":    vm.OpX,
	"y":      vm.OpY,
	"row":    vm.OpY,
	"width":  vm.OpWidth,
	"height": vm.OpHeight,
}

func (g *CodeGenerator) compileCall(call *FunctionCall) {
	if call.Builtin != NotBuiltin {
		g.emit(builtinOpcodes[call.Name])
		return
	}
	if call.Func == nil {
		g.errorf("unresolved function %s", call.Name)
		return
	}

	for _, arg := range call.Args {
		g.compileExpr(arg)
	}
	idx := g.chunk.AddFunction(call.Func)
	g.chunk.EmitWithOperand(vm.OpCall, byte(idx>>8), byte(idx), byte(len(call.Args)))
	g.adjust(1 - len(call.Args))
}

// GenerateBytecode lowers an annotated program into init and body chunks.
// The init chunk is nil when the script has no init block.
func GenerateBytecode(prog *Program, table *SymbolTable) (init, body *vm.Chunk, err error) {
	if prog.Init != nil {
		init, err = NewCodeGenerator("init", table).Generate(prog.Init.Statements)
		if err != nil {
			return nil, nil, fmt.Errorf("init block: %w", err)
		}
	}
	body, err = NewCodeGenerator("body", table).Generate(prog.Body)
	if err != nil {
		return nil, nil, err
	}
	return init, body, nil
}
