package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/vm"
)

// ParseRole maps a manifest role name to image role bits.
func ParseRole(s string) (vm.ImageRole, error) {
	switch strings.ToLower(s) {
	case "source", "src", "":
		return vm.RoleSource, nil
	case "destination", "dest", "dst":
		return vm.RoleDestination, nil
	case "both", "source+destination":
		return vm.RoleSource | vm.RoleDestination, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// ResolvedImage is a manifest image with absolute paths.
type ResolvedImage struct {
	Name   string
	Role   vm.ImageRole
	Input  string // read path; empty for pure destinations
	Output string // write path; empty for pure sources
	Image  Image
}

// Resolver turns the manifest's image table into compiler bindings and
// file locations.
type Resolver struct {
	manifest *Manifest
}

// NewResolver creates a resolver for m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Bindings returns the binding table in manifest order. Image files are
// not consulted, so editors can check scripts before any input exists.
func (r *Resolver) Bindings() (compiler.Bindings, error) {
	out := make(compiler.Bindings, 0, len(r.manifest.Images))
	for _, img := range r.manifest.Images {
		role, err := ParseRole(img.Role)
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", img.Name, err)
		}
		out = append(out, compiler.Binding{Name: img.Name, Role: role})
	}
	return out, out.Validate()
}

// Resolve resolves every image. Source files must exist; destination
// files are created by the run.
func (r *Resolver) Resolve() ([]ResolvedImage, error) {
	var out []ResolvedImage
	for _, img := range r.manifest.Images {
		role, err := ParseRole(img.Role)
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", img.Name, err)
		}
		res := ResolvedImage{Name: img.Name, Role: role, Image: img}
		if role&vm.RoleSource != 0 {
			res.Input = r.manifest.resolve(img.Path)
			if _, err := os.Stat(res.Input); err != nil {
				return nil, fmt.Errorf("source image %q: %w", img.Name, err)
			}
		}
		if role&vm.RoleDestination != 0 {
			res.Output = r.manifest.resolve(img.Path)
			if role&vm.RoleSource != 0 {
				if img.Output == "" {
					return nil, fmt.Errorf("image %q is read and written: set output to a different file", img.Name)
				}
				res.Output = r.manifest.resolve(img.Output)
			}
		}
		out = append(out, res)
	}
	return out, nil
}
