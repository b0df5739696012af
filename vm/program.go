package vm

import "strings"

// Evaluator runs compiled code against an environment. Chunks implement
// it; the compiler also provides a tree-walking implementation.
type Evaluator interface {
	Eval(env *Env) error
}

// Program is the immutable result of compiling a script. It holds no
// image references and no variable state, so one Program may back any
// number of Runtimes.
type Program struct {
	Images     []ImageSlot
	VarNames   []string // by slot
	Persistent []bool   // by slot; init-block variables survive between pixels
	Init       Evaluator
	Body       Evaluator
	Strategy   string // lowering strategy that produced the evaluators
}

// ImageIndex returns the index of the named image, or -1.
func (p *Program) ImageIndex(name string) int {
	for i, img := range p.Images {
		if img.Name == name {
			return i
		}
	}
	return -1
}

// Disassemble lists the bytecode of both entry points. Programs built by
// the tree strategy have none.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for _, e := range []Evaluator{p.Init, p.Body} {
		if c, ok := e.(*Chunk); ok {
			sb.WriteString(c.Disassemble())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// NewRuntime creates an unbound runtime for the program.
func (p *Program) NewRuntime() *Runtime {
	rt := &Runtime{
		prog:        p,
		sources:     make([]Raster, len(p.Images)),
		dests:       make([]WritableRaster, len(p.Images)),
		firstSource: -1,
		firstDest:   -1,
	}
	for slot, persistent := range p.Persistent {
		if !persistent {
			rt.pixelSlots = append(rt.pixelSlots, slot)
		}
	}
	rt.env.rt = rt
	rt.env.Vars = make([]float64, len(p.VarNames))
	return rt
}
