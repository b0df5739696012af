package vm

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpPop Opcode = 0x01 // Pop top of stack
	OpDup Opcode = 0x02 // Duplicate top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst     Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpConstZero Opcode = 0x11 // Push 0
	OpConstOne  Opcode = 0x12 // Push 1

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpLoadVar  Opcode = 0x20 // Push variable: OpLoadVar <slot:u16>
	OpStoreVar Opcode = 0x21 // Pop and store to variable: OpStoreVar <slot:u16>

	// ========================================================================
	// Images and positional built-ins (0x30-0x3F)
	// ========================================================================

	OpReadImage  Opcode = 0x30 // Push image sample at the current pixel: OpReadImage <image:u8>
	OpWriteImage Opcode = 0x31 // Pop and write image sample: OpWriteImage <image:u8>
	OpX          Opcode = 0x38 // Push current column
	OpY          Opcode = 0x39 // Push current row
	OpWidth      Opcode = 0x3A // Push raster width
	OpHeight     Opcode = 0x3B // Push raster height

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient
	OpMod Opcode = 0x54 // Pop two, push math.Mod(a, b)
	OpPow Opcode = 0x55 // Pop two, push math.Pow(a, b)
	OpNeg Opcode = 0x56 // Negate top of stack

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpEq Opcode = 0x60 // Pop two, push 1 if equal, 0 otherwise
	OpNe Opcode = 0x61 // Pop two, push 1 if not equal and neither is NaN
	OpLt Opcode = 0x62 // Pop two, push 1 if a < b
	OpLe Opcode = 0x63 // Pop two, push 1 if a <= b
	OpGt Opcode = 0x64 // Pop two, push 1 if a > b
	OpGe Opcode = 0x65 // Pop two, push 1 if a >= b

	// ========================================================================
	// Logical operations (0x68-0x6F)
	// ========================================================================

	OpNot    Opcode = 0x68 // Push 1 if TOS is falsy, else 0
	OpTruthy Opcode = 0x69 // Push 1 if TOS is truthy, else 0

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump      Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpTrue  Opcode = 0x81 // Pop, jump if truthy: OpJumpTrue <offset:i16>
	OpJumpFalse Opcode = 0x82 // Pop, jump if falsy: OpJumpFalse <offset:i16>
	OpLoop      Opcode = 0x83 // Backward jump counted by the loop guard: OpLoop <offset:i16>

	// ========================================================================
	// Function calls (0x90-0x9F)
	// ========================================================================

	OpCall Opcode = 0x90 // Call registry function: OpCall <func:u16> <argc:u8>

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0 // End of chunk
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop: {"NOP", 0, 0, 0},
	OpPop: {"POP", 1, 0, 0},
	OpDup: {"DUP", 1, 2, 0},

	// Constants
	OpConst:     {"CONST", 0, 1, 2},
	OpConstZero: {"CONST_ZERO", 0, 1, 0},
	OpConstOne:  {"CONST_ONE", 0, 1, 0},

	// Variables
	OpLoadVar:  {"LOAD_VAR", 0, 1, 2},
	OpStoreVar: {"STORE_VAR", 1, 0, 2},

	// Images and built-ins
	OpReadImage:  {"READ_IMAGE", 0, 1, 1},
	OpWriteImage: {"WRITE_IMAGE", 1, 0, 1},
	OpX:          {"X", 0, 1, 0},
	OpY:          {"Y", 0, 1, 0},
	OpWidth:      {"WIDTH", 0, 1, 0},
	OpHeight:     {"HEIGHT", 0, 1, 0},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, 0},
	OpSub: {"SUB", 2, 1, 0},
	OpMul: {"MUL", 2, 1, 0},
	OpDiv: {"DIV", 2, 1, 0},
	OpMod: {"MOD", 2, 1, 0},
	OpPow: {"POW", 2, 1, 0},
	OpNeg: {"NEG", 1, 1, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	// Logical
	OpNot:    {"NOT", 1, 1, 0},
	OpTruthy: {"TRUTHY", 1, 1, 0},

	// Control flow
	OpJump:      {"JUMP", 0, 0, 2},
	OpJumpTrue:  {"JUMP_TRUE", 1, 0, 2},
	OpJumpFalse: {"JUMP_FALSE", 1, 0, 2},
	OpLoop:      {"LOOP", 0, 0, 2},

	// Calls
	OpCall: {"CALL", -1, 1, 3}, // Pops argc args

	// Return
	OpReturn: {"RETURN", 0, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpLoop
}
