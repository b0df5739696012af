package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	var sb strings.Builder

	// Header
	if c.Name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", c.Name))
	}
	sb.WriteString(fmt.Sprintf("; %d bytes, max stack %d\n", len(c.Code), c.MaxStack))

	if len(c.VarNames) > 0 {
		sb.WriteString(fmt.Sprintf("; Variables (%d): %s\n", len(c.VarNames), strings.Join(c.VarNames, ", ")))
	}
	if len(c.ImageNames) > 0 {
		sb.WriteString(fmt.Sprintf("; Images (%d): %s\n", len(c.ImageNames), strings.Join(c.ImageNames, ", ")))
	}
	sb.WriteString("\n")

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %g\n", i, v))
		}
		sb.WriteString("\n")
	}

	// Functions
	if len(c.Functions) > 0 {
		sb.WriteString("; Functions:\n")
		for i, fn := range c.Functions {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s/%d\n", i, fn.Name, fn.Arity))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)

		if srcLine, srcCol := c.GetSourceLocation(uint32(offset)); srcLine > 0 {
			sb.WriteString(fmt.Sprintf("%04X  %-30s ; line %d:%d\n", offset, line, srcLine, srcCol))
		} else {
			sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		}

		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)
	if offset+op.InstructionLen() > len(c.Code) {
		return fmt.Sprintf("%s <truncated>", info.Name), len(c.Code) - offset
	}

	switch op {
	case OpConst:
		idx := c.readUint16(offset + 1)
		if int(idx) < len(c.Constants) {
			return fmt.Sprintf("CONST %d ; %g", idx, c.Constants[idx]), 3
		}
		return fmt.Sprintf("CONST %d", idx), 3

	case OpLoadVar, OpStoreVar:
		slot := c.readUint16(offset + 1)
		if int(slot) < len(c.VarNames) {
			return fmt.Sprintf("%s %d ; %s", info.Name, slot, c.VarNames[slot]), 3
		}
		return fmt.Sprintf("%s %d", info.Name, slot), 3

	case OpReadImage, OpWriteImage:
		idx := c.Code[offset+1]
		if int(idx) < len(c.ImageNames) {
			return fmt.Sprintf("%s %d ; %s", info.Name, idx, c.ImageNames[idx]), 2
		}
		return fmt.Sprintf("%s %d", info.Name, idx), 2

	case OpJump, OpJumpTrue, OpJumpFalse, OpLoop:
		delta := int16(c.readUint16(offset + 1))
		target := offset + 3 + int(delta)
		return fmt.Sprintf("%s %+d ; -> %04X", info.Name, delta, target), 3

	case OpCall:
		idx := c.readUint16(offset + 1)
		argc := c.Code[offset+3]
		if int(idx) < len(c.Functions) {
			return fmt.Sprintf("CALL %d %d ; %s", idx, argc, c.Functions[idx].Name), 4
		}
		return fmt.Sprintf("CALL %d %d", idx, argc), 4
	}

	return info.Name, op.InstructionLen()
}

func (c *Chunk) readUint16(offset int) uint16 {
	return uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
}
