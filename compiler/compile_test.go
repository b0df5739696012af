package compiler

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/rastal/vm"
)

// sweep compiles src against srcDst and evaluates every pixel of a w x h
// destination in row-major order. Source a holds x + y at each pixel.
func sweep(t *testing.T, src string, strategy Strategy, w, h int) *vm.Buffer {
	t.Helper()
	result, err := Compile(src, srcDst, WithStrategy(strategy))
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}

	a := vm.NewBufferSize(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a.Set(x, y, 0, float64(x+y))
		}
	}
	out := vm.NewBufferSize(w, h, 1)

	rt := result.Program.NewRuntime()
	if err := rt.SetSourceImage("a", a); err != nil {
		t.Fatal(err)
	}
	if err := rt.SetDestinationImage("out", out); err != nil {
		t.Fatal(err)
	}
	if err := rt.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if err := rt.Evaluate(x, y, 0); err != nil {
				t.Fatalf("Evaluate(%d, %d): %v", x, y, err)
			}
		}
	}
	return out
}

func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func TestCompileConstantFill(t *testing.T) {
	for _, strategy := range []Strategy{StrategyBytecode, StrategyTree} {
		out := sweep(t, "out = 1;", strategy, 10, 10)
		for i, v := range out.Band(0) {
			if v != 1 {
				t.Fatalf("%v: sample %d = %v, want 1", strategy, i, v)
			}
		}
	}
}

func TestCompilePersistentCounter(t *testing.T) {
	const w, h = 7, 5
	for _, strategy := range []Strategy{StrategyBytecode, StrategyTree} {
		out := sweep(t, "init { n = 0; } out = n++;", strategy, w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if got, want := out.At(x, y, 0), float64(y*w+x); got != want {
					t.Fatalf("%v: out(%d, %d) = %v, want %v", strategy, x, y, got, want)
				}
			}
		}
	}
}

var equivalenceScripts = []string{
	"out = a * 2 + 1;",
	"out = a % 3 - a / 4;",
	"out = -2^2 + a ^ 0.5;",
	"out = (a > 3 && a < 10) || a == 0;",
	"out = !a + !!a;",
	"out = (a != NaN) + (a == NaN) + (NaN < 1) + !NaN;",
	"out = a / 0 + a % 0;",
	"t = 0; i = 0; while (i < a) { t += i; i++; } out = t;",
	"if (a > 2) out = 1; else if (a > 1) out = 0; else out = -1;",
	"out = max(a, 3) + min(a, 1) + con(a > 2, 10, 20) + clamp(a, 1, 4);",
	"out = sqrt(a) + floor(a / 3) + sign(a - 2) + isnan(a / a) + hypot(a, 1);",
	"init { n = 0; } out = n++;",
	"init { n = 10; s = width() * height(); } n -= 1; out = n + s;",
	"t = a; t *= 2; t -= 1; t /= 4; out = t;",
	"out = x() + y() * width() + height() + col() - row();",
	"k = a; out = k++ + ++k + k-- + --k;",
	"out = 1; out += a; out = out * out;",
	"out = (t = a) + t;",
	"out = 0 || a; out = out + (a && 0) + (a && 2);",
	"{ t = a; { u = t * 2; out = u; } }",
	"out = M_PI * a + M_E;",
}

func TestStrategiesAgree(t *testing.T) {
	for _, src := range equivalenceScripts {
		t.Run(src, func(t *testing.T) {
			tree := sweep(t, src, StrategyTree, 6, 4)
			bytecode := sweep(t, src, StrategyBytecode, 6, 4)
			treePix, bcPix := tree.Pix(), bytecode.Pix()
			for i := range treePix {
				if !sameValue(treePix[i], bcPix[i]) {
					t.Fatalf("sample %d: tree %v, bytecode %v", i, treePix[i], bcPix[i])
				}
			}
		})
	}
}

func TestCompileSemantics(t *testing.T) {
	tests := []struct {
		src  string
		want float64 // at pixel (1, 1), where a == 2
	}{
		{"out = -2^2;", -4},
		{"out = 2^3^2;", 512},
		{"out = 7 % 3;", 1},
		{"out = -7 % 3;", -1},
		{"out = NaN != NaN;", 0},
		{"out = NaN == NaN;", 0},
		{"out = !NaN;", 1},
		{"out = 3 && 4;", 1},
		{"out = 0 || 0;", 0},
		{"k = 5; out = k++;", 5},
		{"k = 5; out = ++k;", 6},
		{"k = 5; k--; out = k;", 4},
		{"out = a; out *= 10;", 20},
		{"out = x() * 10 + y();", 11},
		{"out = width() * 100 + height();", 302},
		{"i = 0; while (i < 10) i += 3; out = i;", 12},
	}
	for _, tc := range tests {
		for _, strategy := range []Strategy{StrategyBytecode, StrategyTree} {
			out := sweep(t, tc.src, strategy, 3, 2)
			if got := out.At(1, 1, 0); got != tc.want {
				t.Errorf("%v: %s => %v, want %v", strategy, tc.src, got, tc.want)
			}
		}
	}
}

func TestCompileFailureHasNoProgram(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
		code ErrorCode
	}{
		{"out = q;", KindScope, UndeclaredIdentifier},
		{"a = 1; out = 1;", KindScope, AssignToSource},
		{"{ out = a;", KindSyntax, SyntaxError},
		{"out = max(a);", KindArity, WrongArity},
		{"t = a;", KindUnassignedDestination, UnassignedDestination},
	}
	for _, tc := range tests {
		result, err := Compile(tc.src, srcDst)
		var ce *CompileError
		if !errors.As(err, &ce) {
			t.Fatalf("Compile(%q) error = %v, want *CompileError", tc.src, err)
		}
		if result.Program != nil {
			t.Errorf("Compile(%q) produced a program", tc.src)
		}
		if !ce.Problems.HasKind(tc.kind) || !ce.Problems.Has(tc.code) {
			t.Errorf("Compile(%q) problems:\n%s\nwant %v / %v", tc.src, ce.Problems, tc.kind, tc.code)
		}
	}
}

func TestCompileReturnsWarnings(t *testing.T) {
	result, err := Compile("out = 1;", srcDst)
	if err != nil {
		t.Fatal(err)
	}
	if result.Program == nil {
		t.Fatal("no program")
	}
	if !result.Problems.Has(UnusedSource) {
		t.Errorf("warnings = %s", result.Problems)
	}
}

func TestCompileInvalidBindings(t *testing.T) {
	_, err := Compile("out = 1;", Bindings{{Name: "out", Role: Destination}, {Name: "out", Role: Source}})
	if err == nil {
		t.Fatal("duplicate binding accepted")
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		t.Errorf("binding error reported as compile error: %v", err)
	}
}

func TestCompileUserFunction(t *testing.T) {
	reg := vm.DefaultRegistry()
	reg.MustRegister("double", 1, func(args []float64) (float64, error) { return args[0] * 2, nil })
	reg.MustRegister("fail", 0, func([]float64) (float64, error) { return 0, errors.New("boom") })

	result, err := Compile("out = double(a);", srcDst, WithRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}
	rt := result.Program.NewRuntime()
	a := vm.NewBufferSize(1, 1, 1)
	a.Set(0, 0, 0, 21)
	out := vm.NewBufferSize(1, 1, 1)
	rt.SetSourceImage("a", a)
	rt.SetDestinationImage("out", out)
	if err := rt.Evaluate(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0, 0) != 42 {
		t.Errorf("double(21) = %v", out.At(0, 0, 0))
	}

	for _, strategy := range []Strategy{StrategyBytecode, StrategyTree} {
		result, err = Compile("out = fail() + a;", srcDst, WithRegistry(reg), WithStrategy(strategy))
		if err != nil {
			t.Fatal(err)
		}
		rt = result.Program.NewRuntime()
		rt.SetSourceImage("a", a)
		rt.SetDestinationImage("out", out)
		err = rt.Evaluate(0, 0, 0)
		if !errors.Is(err, vm.ErrEvaluation) {
			t.Errorf("%v: error = %v, want ErrEvaluation", strategy, err)
		}
		var ee *vm.EvalError
		if !errors.As(err, &ee) || ee.X != 0 || ee.Y != 0 {
			t.Errorf("%v: error %v does not locate the pixel", strategy, err)
		}
	}
}

func TestCompileLoopGuard(t *testing.T) {
	for _, strategy := range []Strategy{StrategyBytecode, StrategyTree} {
		result, err := Compile("i = 0; while (1) i++; out = i + a;", srcDst, WithStrategy(strategy))
		if err != nil {
			t.Fatal(err)
		}
		rt := result.Program.NewRuntime()
		rt.SetSourceImage("a", vm.NewBufferSize(1, 1, 1))
		rt.SetDestinationImage("out", vm.NewBufferSize(1, 1, 1))
		rt.SetMaxLoopIterations(100)
		if err := rt.Evaluate(0, 0, 0); !errors.Is(err, vm.ErrEvaluation) {
			t.Errorf("%v: error = %v, want ErrEvaluation", strategy, err)
		}
	}
}

func TestGenerateBytecode(t *testing.T) {
	result, err := Compile("out = 1;", Bindings{{Name: "out", Role: Destination}})
	if err != nil {
		t.Fatal(err)
	}
	body, ok := result.Program.Body.(*vm.Chunk)
	if !ok {
		t.Fatalf("body is %T, want *vm.Chunk", result.Program.Body)
	}
	want := []byte{byte(vm.OpConstOne), byte(vm.OpWriteImage), 0, byte(vm.OpReturn)}
	if string(body.Code) != string(want) {
		t.Errorf("code = % x, want % x", body.Code, want)
	}
	if body.MaxStack != 1 {
		t.Errorf("MaxStack = %d, want 1", body.MaxStack)
	}
	if result.Program.Init != nil {
		t.Error("init chunk generated without an init block")
	}
}

func TestGenerateBytecodeStackDepth(t *testing.T) {
	result, err := Compile("out = (a && a) + max(a, a * (a + a)) + (a || 0);", srcDst)
	if err != nil {
		t.Fatal(err)
	}
	body := result.Program.Body.(*vm.Chunk)
	// (a&&a) stays on the stack while max's second argument needs four more.
	if body.MaxStack != 5 {
		t.Errorf("MaxStack = %d, want 5\n%s", body.MaxStack, body.Disassemble())
	}
}

func TestDisassemble(t *testing.T) {
	result, err := Compile("init { n = 0; } while (n < 3) n++; out = max(a, n);", srcDst)
	if err != nil {
		t.Fatal(err)
	}
	listing := result.Program.Disassemble()
	for _, want := range []string{"=== init ===", "=== body ===", "LOOP", "JUMP_FALSE", "READ_IMAGE 0 ; a", "WRITE_IMAGE 1 ; out", "CALL 0 2 ; max", "STORE_VAR 0 ; n"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing lacks %q:\n%s", want, listing)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{StrategyBytecode, StrategyTree} {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStrategy("jit"); err == nil {
		t.Error("ParseStrategy(jit) succeeded")
	}
}
