package vm

import "math"

// Machine executes chunks with a float64 operand stack. Each Env owns
// one machine; the stack is reused across evaluations.
type Machine struct {
	stack []float64
}

// Run executes c from the beginning until OpReturn or the end of code.
func (m *Machine) Run(c *Chunk, env *Env) error {
	if len(m.stack) < c.MaxStack {
		m.stack = make([]float64, c.MaxStack)
	}
	stack := m.stack
	code := c.Code
	sp := 0
	ip := 0

	for ip < len(code) {
		op := Opcode(code[ip])
		ip++

		switch op {
		// ============ Stack Operations ============
		case OpNop:
			// Do nothing

		case OpPop:
			sp--

		case OpDup:
			stack[sp] = stack[sp-1]
			sp++

		// ============ Constants ============
		case OpConst:
			idx := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			stack[sp] = c.Constants[idx]
			sp++

		case OpConstZero:
			stack[sp] = 0
			sp++

		case OpConstOne:
			stack[sp] = 1
			sp++

		// ============ Variables ============
		case OpLoadVar:
			slot := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			stack[sp] = env.Vars[slot]
			sp++

		case OpStoreVar:
			slot := int(code[ip])<<8 | int(code[ip+1])
			ip += 2
			sp--
			env.Vars[slot] = stack[sp]

		// ============ Images and built-ins ============
		case OpReadImage:
			v, err := env.ReadImage(int(code[ip]))
			if err != nil {
				return err
			}
			ip++
			stack[sp] = v
			sp++

		case OpWriteImage:
			sp--
			if err := env.WriteImage(int(code[ip]), stack[sp]); err != nil {
				return err
			}
			ip++

		case OpX:
			stack[sp] = float64(env.X)
			sp++

		case OpY:
			stack[sp] = float64(env.Y)
			sp++

		case OpWidth:
			stack[sp] = float64(env.Width)
			sp++

		case OpHeight:
			stack[sp] = float64(env.Height)
			sp++

		// ============ Arithmetic ============
		case OpAdd:
			sp--
			stack[sp-1] += stack[sp]

		case OpSub:
			sp--
			stack[sp-1] -= stack[sp]

		case OpMul:
			sp--
			stack[sp-1] *= stack[sp]

		case OpDiv:
			sp--
			stack[sp-1] /= stack[sp]

		case OpMod:
			sp--
			stack[sp-1] = math.Mod(stack[sp-1], stack[sp])

		case OpPow:
			sp--
			stack[sp-1] = math.Pow(stack[sp-1], stack[sp])

		case OpNeg:
			stack[sp-1] = -stack[sp-1]

		// ============ Comparison ============
		case OpEq:
			sp--
			stack[sp-1] = Bool(stack[sp-1] == stack[sp])

		case OpNe:
			sp--
			stack[sp-1] = Bool(NotEqual(stack[sp-1], stack[sp]))

		case OpLt:
			sp--
			stack[sp-1] = Bool(stack[sp-1] < stack[sp])

		case OpLe:
			sp--
			stack[sp-1] = Bool(stack[sp-1] <= stack[sp])

		case OpGt:
			sp--
			stack[sp-1] = Bool(stack[sp-1] > stack[sp])

		case OpGe:
			sp--
			stack[sp-1] = Bool(stack[sp-1] >= stack[sp])

		// ============ Logical ============
		case OpNot:
			stack[sp-1] = Bool(!Truthy(stack[sp-1]))

		case OpTruthy:
			stack[sp-1] = Bool(Truthy(stack[sp-1]))

		// ============ Control Flow ============
		case OpJump:
			offset := int16(uint16(code[ip])<<8 | uint16(code[ip+1]))
			ip += 2 + int(offset)

		case OpJumpTrue:
			offset := int16(uint16(code[ip])<<8 | uint16(code[ip+1]))
			ip += 2
			sp--
			if Truthy(stack[sp]) {
				ip += int(offset)
			}

		case OpJumpFalse:
			offset := int16(uint16(code[ip])<<8 | uint16(code[ip+1]))
			ip += 2
			sp--
			if !Truthy(stack[sp]) {
				ip += int(offset)
			}

		case OpLoop:
			offset := int16(uint16(code[ip])<<8 | uint16(code[ip+1]))
			ip += 2
			if err := env.Tick(); err != nil {
				return err
			}
			ip += int(offset)

		// ============ Calls ============
		case OpCall:
			fn := c.Functions[int(code[ip])<<8|int(code[ip+1])]
			argc := int(code[ip+2])
			ip += 3
			v, err := env.Call(fn, stack[sp-argc:sp])
			if err != nil {
				return err
			}
			sp -= argc
			stack[sp] = v
			sp++

		case OpReturn:
			return nil

		default:
			return evalErrorf("unknown opcode 0x%02X at %04X in %s", byte(op), ip-1, c.Name)
		}
	}
	return nil
}
