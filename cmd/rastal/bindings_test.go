package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/rastal/compiler"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadScriptFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.ras")
	writeFile(t, path, "state = state + a;")

	s, err := loadScript(path, []string{"a"}, []string{"out"}, []string{"state"})
	if err != nil {
		t.Fatal(err)
	}
	want := compiler.Bindings{
		{Name: "a", Role: compiler.Source},
		{Name: "state", Role: compiler.Source | compiler.Destination},
		{Name: "out", Role: compiler.Destination},
	}
	if len(s.bindings) != len(want) {
		t.Fatalf("bindings = %+v", s.bindings)
	}
	for i := range want {
		if s.bindings[i] != want[i] {
			t.Errorf("binding %d = %+v, want %+v", i, s.bindings[i], want[i])
		}
	}
	if s.origin != "command line" {
		t.Errorf("origin = %q", s.origin)
	}

	if _, err := loadScript(path, []string{"x"}, nil, nil); err == nil {
		t.Error("built-in name accepted as a binding")
	}
}

func TestLoadScriptManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rastal.toml"), `
[[images]]
name = "nir"
path = "nir.png"

[[images]]
name = "out"
role = "destination"
path = "out.png"
`)
	path := filepath.Join(dir, "main.ras")
	writeFile(t, path, "out = nir;")

	s, err := loadScript(path, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.bindings) != 2 || s.bindings[1].Name != "out" {
		t.Errorf("bindings = %+v", s.bindings)
	}
	if problems := checkScript(s); len(problems) != 0 {
		t.Errorf("problems:\n%s", problems)
	}
}

func TestCheckScriptWithoutBindings(t *testing.T) {
	s := &script{path: "loose.ras", source: "out = q;"}
	if problems := checkScript(s); len(problems) != 0 {
		t.Errorf("unbound script reported scope problems:\n%s", problems)
	}
	s.source = "out = (;"
	if problems := checkScript(s); !problems.HasErrors() {
		t.Error("syntax error not reported")
	}
}
