package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/rastal/vm"
)

// ---------------------------------------------------------------------------
// Tree evaluator: runs the annotated AST directly
// ---------------------------------------------------------------------------

// TreeEvaluator implements vm.Evaluator by walking resolved statements.
// It shares the value semantics of the bytecode machine and exists for
// debugging and as a reference for the code generator.
type TreeEvaluator struct {
	Statements []Node
}

// Eval implements vm.Evaluator.
func (t *TreeEvaluator) Eval(env *vm.Env) error {
	for _, stmt := range t.Statements {
		if err := execStmt(stmt, env); err != nil {
			return err
		}
	}
	return nil
}

func execStmt(n Node, env *vm.Env) error {
	switch s := n.(type) {
	case *Block:
		for _, stmt := range s.Statements {
			if err := execStmt(stmt, env); err != nil {
				return err
			}
		}
		return nil

	case *If:
		cond, err := evalExpr(s.Cond, env)
		if err != nil {
			return err
		}
		if vm.Truthy(cond) {
			return execStmt(s.Then, env)
		}
		if s.Else != nil {
			return execStmt(s.Else, env)
		}
		return nil

	case *While:
		for {
			cond, err := evalExpr(s.Cond, env)
			if err != nil {
				return err
			}
			if !vm.Truthy(cond) {
				return nil
			}
			if err := execStmt(s.Body, env); err != nil {
				return err
			}
			if err := env.Tick(); err != nil {
				return err
			}
		}

	default:
		_, err := evalExpr(n, env)
		return err
	}
}

func evalExpr(n Node, env *vm.Env) (float64, error) {
	switch e := n.(type) {
	case *Literal:
		return e.Value, nil

	case *VariableRef:
		return load(e.Symbol, env)

	case *BinaryOp:
		return evalBinary(e, env)

	case *UnaryOp:
		v, err := evalExpr(e.Operand, env)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case OpNeg:
			return -v, nil
		case OpNot:
			return vm.Bool(!vm.Truthy(v)), nil
		}
		return v, nil

	case *Assignment:
		var v float64
		if e.Compound {
			old, err := load(e.Symbol, env)
			if err != nil {
				return 0, err
			}
			rhs, err := evalExpr(e.Value, env)
			if err != nil {
				return 0, err
			}
			v = applyBinary(e.Op, old, rhs)
		} else {
			var err error
			if v, err = evalExpr(e.Value, env); err != nil {
				return 0, err
			}
		}
		return v, store(e.Symbol, env, v)

	case *IncDec:
		old, err := load(e.Symbol, env)
		if err != nil {
			return 0, err
		}
		updated := old + 1
		if e.Decrement {
			updated = old - 1
		}
		if err := store(e.Symbol, env, updated); err != nil {
			return 0, err
		}
		if e.Prefix {
			return updated, nil
		}
		return old, nil

	case *FunctionCall:
		return evalCall(e, env)

	default:
		panic(unknownNode(n))
	}
}

func evalBinary(b *BinaryOp, env *vm.Env) (float64, error) {
	left, err := evalExpr(b.Left, env)
	if err != nil {
		return 0, err
	}

	switch b.Op {
	case OpAnd:
		if !vm.Truthy(left) {
			return 0, nil
		}
		right, err := evalExpr(b.Right, env)
		return vm.Bool(vm.Truthy(right)), err
	case OpOr:
		if vm.Truthy(left) {
			return 1, nil
		}
		right, err := evalExpr(b.Right, env)
		return vm.Bool(vm.Truthy(right)), err
	}

	right, err := evalExpr(b.Right, env)
	if err != nil {
		return 0, err
	}
	return applyBinary(b.Op, left, right), nil
}

// applyBinary applies a non-short-circuit operator.
func applyBinary(op BinaryOperator, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpMod:
		return math.Mod(a, b)
	case OpPow:
		return math.Pow(a, b)
	case OpEQ:
		return vm.Bool(a == b)
	case OpNE:
		return vm.Bool(vm.NotEqual(a, b))
	case OpLT:
		return vm.Bool(a < b)
	case OpLE:
		return vm.Bool(a <= b)
	case OpGT:
		return vm.Bool(a > b)
	case OpGE:
		return vm.Bool(a >= b)
	}
	panic(fmt.Sprintf("compiler: operator %s has no direct evaluation", op))
}

func evalCall(call *FunctionCall, env *vm.Env) (float64, error) {
	if call.Builtin != NotBuiltin {
		switch call.Name {
		case "x", "col":
			return float64(env.X), nil
		case "y", "row":
			return float64(env.Y), nil
		case "width":
			return float64(env.Width), nil
		case "height":
			return float64(env.Height), nil
		}
		panic(fmt.Sprintf("compiler: unknown built-in %s", call.Name))
	}

	args := make([]float64, len(call.Args))
	for i, arg := range call.Args {
		v, err := evalExpr(arg, env)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return env.Call(call.Func, args)
}

func load(sym *Symbol, env *vm.Env) (float64, error) {
	if sym.Role.IsImage() {
		return env.ReadImage(sym.Slot)
	}
	return env.Vars[sym.Slot], nil
}

func store(sym *Symbol, env *vm.Env, v float64) error {
	if sym.Role.IsImage() {
		return env.WriteImage(sym.Slot, v)
	}
	env.Vars[sym.Slot] = v
	return nil
}
