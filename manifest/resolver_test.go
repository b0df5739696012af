package manifest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/rastal/compiler"
)

func TestResolverBindings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "nir.png"), "")
	writeFile(t, filepath.Join(dir, "state.cbor"), "")
	writeFile(t, filepath.Join(dir, TOMLFile), `
[[images]]
name = "nir"
path = "nir.png"

[[images]]
name = "state"
role = "both"
path = "state.cbor"
output = "next.cbor"

[[images]]
name = "out"
role = "destination"
path = "out/result.png"
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(m)

	bindings, err := r.Bindings()
	if err != nil {
		t.Fatal(err)
	}
	want := compiler.Bindings{
		{Name: "nir", Role: compiler.Source},
		{Name: "state", Role: compiler.Source | compiler.Destination},
		{Name: "out", Role: compiler.Destination},
	}
	if len(bindings) != len(want) {
		t.Fatalf("bindings = %+v", bindings)
	}
	for i := range want {
		if bindings[i] != want[i] {
			t.Errorf("binding %d = %+v, want %+v", i, bindings[i], want[i])
		}
	}

	images, err := r.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if images[0].Input != filepath.Join(dir, "nir.png") || images[0].Output != "" {
		t.Errorf("nir = %+v", images[0])
	}
	if images[1].Input != filepath.Join(dir, "state.cbor") || images[1].Output != filepath.Join(dir, "next.cbor") {
		t.Errorf("state = %+v", images[1])
	}
	if images[2].Input != "" || images[2].Output != filepath.Join(dir, "out", "result.png") {
		t.Errorf("out = %+v", images[2])
	}
}

func TestResolverMissingSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TOMLFile), "[[images]]\nname = \"nir\"\npath = \"missing.png\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil || !strings.Contains(err.Error(), "nir") {
		t.Errorf("error = %v", err)
	}
}

func TestResolverReadWriteNeedsOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "s.cbor"), "")
	writeFile(t, filepath.Join(dir, TOMLFile), "[[images]]\nname = \"s\"\nrole = \"both\"\npath = \"s.cbor\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("read-write image without output resolved")
	}
}

func TestResolverRejectsReservedNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TOMLFile), "[[images]]\nname = \"width\"\nrole = \"destination\"\npath = \"w.png\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Bindings(); err == nil {
		t.Error("built-in name accepted as an image")
	}
}
