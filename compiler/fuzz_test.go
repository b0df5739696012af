package compiler

import (
	"testing"
	"unicode/utf8"
)

var fuzzSeeds = []string{
	"out = 1;",
	"init { n = 0; } out = n++;",
	"if (a > 1) { out = a; } else out = -a;",
	"while (i < 10) i += 2;",
	"out = max(a, b) ^ -2 ^ 3;",
	"{ { ;",
	"} out = 1;",
	"/* open",
	"1e+",
	"out = ((a);",
	"x = = 3;",
	"out = a $ b;",
}

func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		toks := Tokenize(src)
		if len(toks) == 0 {
			t.Fatal("Tokenize returned no tokens")
		}
		last := toks[len(toks)-1].Type
		if last != TokenEOF && last != TokenError {
			t.Fatalf("token stream ends with %v", last)
		}
	})
}

func FuzzParse(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		if !utf8.ValidString(src) {
			t.Skip()
		}
		script, problems := Parse(src)
		if script == nil && !problems.HasErrors() {
			t.Fatalf("Parse(%q) failed without reporting an error", src)
		}
		if script == nil {
			return
		}
		bindings := Bindings{{Name: "a", Role: Source}, {Name: "out", Role: Destination}}
		for _, strategy := range []Strategy{StrategyBytecode, StrategyTree} {
			// Compilation may fail; it must not panic.
			_, _ = CompileScript(script, bindings, WithStrategy(strategy))
		}
	})
}
