package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/manifest"
)

// script is a loaded script file and the bindings it is checked against.
type script struct {
	path     string
	source   string
	bindings compiler.Bindings
	origin   string // where the bindings came from
}

// loadScript reads path and picks its bindings: the -s/-d/-b flags when
// any is given, else the nearest project manifest, else none.
func loadScript(path string, sources, dests, both []string) (*script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &script{path: path, source: string(data)}

	if len(sources)+len(dests)+len(both) > 0 {
		s.bindings = flagBindings(sources, dests, both)
		s.origin = "command line"
		return s, s.bindings.Validate()
	}

	m, err := manifest.FindAndLoad(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if m == nil {
		s.origin = "no bindings"
		return s, nil
	}
	s.bindings, err = manifest.NewResolver(m).Bindings()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path, err)
	}
	s.origin = m.Path
	return s, nil
}

// flagBindings orders names as given: sources, then names bound both
// ways, then destinations.
func flagBindings(sources, dests, both []string) compiler.Bindings {
	var out compiler.Bindings
	for _, name := range sources {
		out = append(out, compiler.Binding{Name: name, Role: compiler.Source})
	}
	for _, name := range both {
		out = append(out, compiler.Binding{Name: name, Role: compiler.Source | compiler.Destination})
	}
	for _, name := range dests {
		out = append(out, compiler.Binding{Name: name, Role: compiler.Destination})
	}
	return out
}
