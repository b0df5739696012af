package vm

import (
	"fmt"
	"math"
)

// SourceLocation maps bytecode position to source location for debugging.
type SourceLocation struct {
	BytecodeOffset uint32 // Offset in code section
	Line           uint32 // Source line number (1-based)
	Column         uint16 // Source column number (1-based)
}

// Chunk is compiled bytecode for one entry point of a program (the init
// block or the per-pixel body). A chunk is immutable once the code
// generator hands it over and may be run by many machines at once.
type Chunk struct {
	Name string

	// Code section
	Code []byte

	// Constant pool referenced by OpConst
	Constants []float64

	// Registry functions referenced by OpCall
	Functions []*Func

	// MaxStack is the deepest operand stack the code can reach.
	MaxStack int

	// Debug information
	VarNames   []string // variable names by slot
	ImageNames []string // image names by index
	SourceMap  []SourceLocation
}

// NewChunk creates a new empty chunk.
func NewChunk(name string) *Chunk {
	return &Chunk{
		Name:      name,
		Code:      make([]byte, 0, 64),
		Constants: make([]float64, 0, 8),
	}
}

// AddConstant adds a constant to the pool and returns its index.
// If a constant with the same bit pattern exists, returns its index.
func (c *Chunk) AddConstant(value float64) uint16 {
	bits := math.Float64bits(value)
	for i, v := range c.Constants {
		if math.Float64bits(v) == bits {
			return uint16(i)
		}
	}
	idx := uint16(len(c.Constants))
	c.Constants = append(c.Constants, value)
	return idx
}

// AddFunction adds a function reference and returns its index.
func (c *Chunk) AddFunction(fn *Func) uint16 {
	for i, f := range c.Functions {
		if f == fn {
			return uint16(i)
		}
	}
	idx := uint16(len(c.Functions))
	c.Functions = append(c.Functions, fn)
	return idx
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitUint16 appends an opcode with one big-endian u16 operand.
func (c *Chunk) EmitUint16(op Opcode, operand uint16) int {
	return c.EmitWithOperand(op, byte(operand>>8), byte(operand))
}

// EmitConstant emits the shortest instruction pushing value.
func (c *Chunk) EmitConstant(value float64) int {
	switch {
	case value == 0 && !math.Signbit(value):
		return c.Emit(OpConstZero)
	case value == 1:
		return c.Emit(OpConstOne)
	}
	return c.EmitUint16(OpConst, c.AddConstant(value))
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), 0xFF, 0xFF) // placeholder
	return offset + 1
}

// PatchJump patches a jump instruction's offset to jump to the current position.
func (c *Chunk) PatchJump(placeholderOffset int) error {
	return c.PatchJumpTo(placeholderOffset, len(c.Code))
}

// PatchJumpTo patches a jump to go to a specific offset.
func (c *Chunk) PatchJumpTo(placeholderOffset int, target int) error {
	jumpFrom := placeholderOffset + 2
	delta := target - jumpFrom
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		return fmt.Errorf("jump of %d bytes does not fit in 16 bits", delta)
	}

	c.Code[placeholderOffset] = byte(delta >> 8)
	c.Code[placeholderOffset+1] = byte(delta)
	return nil
}

// EmitLoop emits a counted backward jump to the given loop start.
func (c *Chunk) EmitLoop(loopStart int) error {
	// Jump goes backward, so delta is negative
	jumpFrom := len(c.Code) + 3 // After this instruction
	delta := loopStart - jumpFrom
	if delta < math.MinInt16 {
		return fmt.Errorf("loop body of %d bytes does not fit in 16 bits", -delta)
	}

	c.Code = append(c.Code, byte(OpLoop))
	c.Code = append(c.Code, byte(delta>>8), byte(delta))
	return nil
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// AddSourceLocation adds a debug source location mapping. Consecutive
// mappings for the same line and column are collapsed.
func (c *Chunk) AddSourceLocation(bytecodeOffset uint32, line uint32, column uint16) {
	if n := len(c.SourceMap); n > 0 && c.SourceMap[n-1].Line == line && c.SourceMap[n-1].Column == column {
		return
	}
	c.SourceMap = append(c.SourceMap, SourceLocation{
		BytecodeOffset: bytecodeOffset,
		Line:           line,
		Column:         column,
	})
}

// GetSourceLocation returns the source location for a bytecode offset.
// Returns line 0, column 0 if no mapping exists.
func (c *Chunk) GetSourceLocation(offset uint32) (line uint32, column uint16) {
	// Find the nearest mapping at or before the offset
	for i := len(c.SourceMap) - 1; i >= 0; i-- {
		if c.SourceMap[i].BytecodeOffset <= offset {
			return c.SourceMap[i].Line, c.SourceMap[i].Column
		}
	}
	return 0, 0
}

// Eval implements Evaluator by running the chunk on the environment's
// machine.
func (c *Chunk) Eval(env *Env) error {
	return env.machine.Run(c, env)
}
