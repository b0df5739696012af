package vm

import (
	"errors"
	"image"
	"testing"
)

// copyBody assembles: out = a.
func copyBody() *Chunk {
	c := NewChunk("body")
	c.EmitWithOperand(OpReadImage, 0)
	c.EmitWithOperand(OpWriteImage, 1)
	c.Emit(OpReturn)
	c.MaxStack = 1
	return c
}

func TestRuntimeBindingErrors(t *testing.T) {
	rt := newTestProgram(copyBody()).NewRuntime()
	buf := NewBufferSize(1, 1, 1)

	tests := []struct {
		name string
		err  error
	}{
		{"unknown source", rt.SetSourceImage("nope", buf)},
		{"destination as source", rt.SetSourceImage("out", buf)},
		{"source as destination", rt.SetDestinationImage("a", buf)},
		{"nil source", rt.SetSourceImage("a", nil)},
		{"nil destination", rt.SetDestinationImage("out", nil)},
	}
	for _, tc := range tests {
		if !errors.Is(tc.err, ErrImageBinding) {
			t.Errorf("%s: error = %v, want ErrImageBinding", tc.name, tc.err)
		}
	}

	err := rt.CheckBindings()
	if !errors.Is(err, ErrImageBinding) {
		t.Fatalf("CheckBindings = %v", err)
	}
	if err := rt.Evaluate(0, 0, 0); !errors.Is(err, ErrImageBinding) {
		t.Errorf("Evaluate unbound = %v", err)
	}
}

func TestRuntimeOutOfBoundsRead(t *testing.T) {
	a := NewBufferSize(2, 2, 1)
	out := NewBufferSize(4, 4, 1)
	rt := bind(t, newTestProgram(copyBody()), a, out)

	err := rt.Evaluate(3, 3, 0)
	var ee *EvalError
	if !errors.As(err, &ee) || !errors.Is(err, ErrImageBinding) {
		t.Fatalf("error = %v, want located ErrImageBinding", err)
	}
	if ee.Image != "a" || ee.X != 3 || ee.Y != 3 {
		t.Errorf("location = %+v", ee)
	}

	rt.SetOutsideValue(-1)
	if err := rt.Evaluate(3, 3, 0); err != nil {
		t.Fatal(err)
	}
	if got := out.At(3, 3, 0); got != -1 {
		t.Errorf("outside value = %v, want -1", got)
	}
}

func TestRuntimeBandBeyondSource(t *testing.T) {
	rt := bind(t, newTestProgram(copyBody()), NewBufferSize(1, 1, 1), NewBufferSize(1, 1, 3))
	if err := rt.Evaluate(0, 0, 2); !errors.Is(err, ErrImageBinding) {
		t.Errorf("error = %v, want ErrImageBinding", err)
	}
}

func TestRuntimeOutOfBoundsWriteDropped(t *testing.T) {
	a := NewBufferSize(4, 4, 1)
	a.Fill(0, 9)
	out := NewBufferSize(2, 2, 1)
	rt := bind(t, newTestProgram(copyBody()), a, out)
	if err := rt.Evaluate(3, 3, 0); err != nil {
		t.Fatalf("out-of-bounds write: %v", err)
	}
	for _, v := range out.Pix() {
		if v != 0 {
			t.Fatalf("destination changed: %v", out.Pix())
		}
	}
}

func TestRuntimeDimensions(t *testing.T) {
	rt := newTestProgram(copyBody()).NewRuntime()
	rt.SetSourceImage("a", NewBufferSize(5, 6, 1))
	if rt.Width() != 5 || rt.Height() != 6 {
		t.Errorf("source fallback = %dx%d", rt.Width(), rt.Height())
	}
	rt.SetDestinationImage("out", NewBuffer(image.Rect(10, 10, 13, 12), 1))
	if rt.Width() != 3 || rt.Height() != 2 {
		t.Errorf("destination dims = %dx%d", rt.Width(), rt.Height())
	}
	rt.SetSourceImage("a", NewBufferSize(9, 9, 1))
	if rt.Width() != 3 {
		t.Errorf("rebinding a source changed width to %d", rt.Width())
	}
	if got := rt.Destinations(); len(got) != 1 || got[0] != "out" {
		t.Errorf("Destinations() = %v", got)
	}
	if rt.Destination("out") == nil || rt.Source("a") == nil || rt.Source("zzz") != nil {
		t.Error("raster accessors")
	}
}

func TestRuntimeImageAccess(t *testing.T) {
	a := NewBufferSize(2, 1, 1)
	a.Set(1, 0, 0, 4)
	out := NewBufferSize(2, 1, 1)
	rt := bind(t, newTestProgram(copyBody()), a, out)

	if v, err := rt.ReadFromImage("a", 1, 0, 0); err != nil || v != 4 {
		t.Errorf("ReadFromImage = %v, %v", v, err)
	}
	if err := rt.WriteToImage("out", 0, 0, 0, 8); err != nil || out.At(0, 0, 0) != 8 {
		t.Errorf("WriteToImage = %v, out %v", err, out.Pix())
	}
	// A destination-only name reads its destination raster.
	if v, err := rt.ReadFromImage("out", 0, 0, 0); err != nil || v != 8 {
		t.Errorf("ReadFromImage(out) = %v, %v", v, err)
	}
	if err := rt.WriteToImage("a", 0, 0, 0, 1); !errors.Is(err, ErrImageBinding) {
		t.Errorf("write to source = %v", err)
	}
	if _, err := rt.ReadFromImage("zzz", 0, 0, 0); !errors.Is(err, ErrImageBinding) {
		t.Errorf("read unknown = %v", err)
	}
}

func TestRuntimeSourceAndDestinationSameName(t *testing.T) {
	// img = img + 1 with img bound both ways.
	c := NewChunk("body")
	c.EmitWithOperand(OpReadImage, 0)
	c.Emit(OpConstOne)
	c.Emit(OpAdd)
	c.EmitWithOperand(OpWriteImage, 0)
	c.Emit(OpReturn)
	c.MaxStack = 2
	p := &Program{Images: []ImageSlot{{Name: "img", Role: RoleSource | RoleDestination}}, Body: c}

	src := NewBufferSize(1, 1, 1)
	src.Fill(0, 10)
	dst := NewBufferSize(1, 1, 1)
	rt := p.NewRuntime()
	rt.SetSourceImage("img", src)
	rt.SetDestinationImage("img", dst)
	for i := 0; i < 3; i++ {
		if err := rt.Evaluate(0, 0, 0); err != nil {
			t.Fatal(err)
		}
	}
	if src.At(0, 0, 0) != 10 || dst.At(0, 0, 0) != 11 {
		t.Errorf("src %v dst %v, want 10 and 11", src.At(0, 0, 0), dst.At(0, 0, 0))
	}
}

func TestRuntimePersistentVariables(t *testing.T) {
	// init: n = 100. body: k = k + 1; n = n + k; out = n.
	init := NewChunk("init")
	init.EmitConstant(100)
	init.EmitUint16(OpStoreVar, 0)
	init.Emit(OpReturn)
	init.MaxStack = 1

	body := NewChunk("body")
	body.EmitUint16(OpLoadVar, 1)
	body.Emit(OpConstOne)
	body.Emit(OpAdd)
	body.EmitUint16(OpStoreVar, 1)
	body.EmitUint16(OpLoadVar, 0)
	body.EmitUint16(OpLoadVar, 1)
	body.Emit(OpAdd)
	body.Emit(OpDup)
	body.EmitUint16(OpStoreVar, 0)
	body.EmitWithOperand(OpWriteImage, 1)
	body.Emit(OpReturn)
	body.MaxStack = 3

	p := newTestProgram(body, "n", "k")
	p.Persistent = []bool{true, false}
	p.Init = init

	out := NewBufferSize(3, 1, 1)
	rt := bind(t, p, NewBufferSize(3, 1, 1), out)
	if err := rt.Init(); err != nil {
		t.Fatal(err)
	}
	for x := 0; x < 3; x++ {
		if err := rt.Evaluate(x, 0, 0); err != nil {
			t.Fatal(err)
		}
	}
	// k restarts at zero for every pixel while n accumulates.
	if got := out.Band(0); got[0] != 101 || got[1] != 102 || got[2] != 103 {
		t.Errorf("out = %v, want [101 102 103]", got)
	}

	if err := rt.Init(); err != nil {
		t.Fatal(err)
	}
	rt.Evaluate(0, 0, 0)
	if out.At(0, 0, 0) != 101 {
		t.Errorf("Init did not reset persistent state: %v", out.At(0, 0, 0))
	}
}

func TestEvalErrorMessage(t *testing.T) {
	err := &EvalError{Image: "a", X: 1, Y: 2, Band: 0, Err: ErrEvaluation}
	if got := err.Error(); got != "evaluating a at (1, 2) band 0: runtime evaluation error" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrEvaluation) {
		t.Error("Unwrap")
	}
}
