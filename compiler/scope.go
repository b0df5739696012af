package compiler

import (
	"fmt"

	"github.com/chazu/rastal/vm"
)

// ---------------------------------------------------------------------------
// Bindings: the image names a script is compiled against
// ---------------------------------------------------------------------------

// Image roles. A name bound both ways reads from its source raster and
// writes to its destination raster.
const (
	Source      = vm.RoleSource
	Destination = vm.RoleDestination
)

// Binding declares one image name.
type Binding struct {
	Name string
	Role vm.ImageRole
}

// Bindings is the ordered binding table. Order matters: it fixes image
// indices and the order in which the driver sweeps destinations.
type Bindings []Binding

// Lookup finds a binding by name.
func (b Bindings) Lookup(name string) (Binding, bool) {
	for _, bind := range b {
		if bind.Name == name {
			return bind, true
		}
	}
	return Binding{}, false
}

// Validate rejects duplicate names, empty roles and names that collide
// with keywords, constants or built-ins.
func (b Bindings) Validate() error {
	seen := make(map[string]bool, len(b))
	for _, bind := range b {
		switch {
		case bind.Name == "":
			return fmt.Errorf("binding with empty name")
		case seen[bind.Name]:
			return fmt.Errorf("image %q bound twice", bind.Name)
		case bind.Role&(Source|Destination) == 0:
			return fmt.Errorf("image %q has no role", bind.Name)
		}
		if _, ok := reservedWords[bind.Name]; ok {
			return fmt.Errorf("image name %q is a keyword", bind.Name)
		}
		if _, ok := reservedConstants[bind.Name]; ok {
			return fmt.Errorf("image name %q is a reserved constant", bind.Name)
		}
		if _, ok := builtinNames[bind.Name]; ok {
			return fmt.Errorf("image name %q is a built-in", bind.Name)
		}
		seen[bind.Name] = true
	}
	return nil
}

// images converts the table into the runtime's image descriptors.
func (b Bindings) images() []vm.ImageSlot {
	out := make([]vm.ImageSlot, len(b))
	for i, bind := range b {
		out[i] = vm.ImageSlot{Name: bind.Name, Role: bind.Role}
	}
	return out
}

// ---------------------------------------------------------------------------
// Symbols and scopes
// ---------------------------------------------------------------------------

// Role classifies a resolved identifier.
type Role uint8

const (
	RoleSourceImage Role = 1 << iota
	RoleDestinationImage
	RoleLocal
	RolePositionalBuiltin
	RoleInfoBuiltin
)

// IsImage reports whether the symbol names a bound image.
func (r Role) IsImage() bool {
	return r&(RoleSourceImage|RoleDestinationImage) != 0
}

func (r Role) String() string {
	switch {
	case r&RoleSourceImage != 0 && r&RoleDestinationImage != 0:
		return "source/destination image"
	case r&RoleSourceImage != 0:
		return "source image"
	case r&RoleDestinationImage != 0:
		return "destination image"
	case r&RoleLocal != 0:
		return "local"
	case r&RolePositionalBuiltin != 0:
		return "positional built-in"
	case r&RoleInfoBuiltin != 0:
		return "info built-in"
	}
	return "unknown"
}

// Symbol is a resolved name. For images Slot is the binding index; for
// locals it is the variable slot in the runtime environment.
type Symbol struct {
	Name       string
	Role       Role
	Scope      *Scope
	Slot       int
	Persistent bool // first assigned in the init block
	Span       Span // declaring assignment; zero for images
}

// Scope is one lexical level of name bindings.
type Scope struct {
	Name    string
	Parent  *Scope
	symbols map[string]*Symbol
	order   []*Symbol
}

// NewScope creates a scope nested in parent (nil for the root).
func NewScope(name string, parent *Scope) *Scope {
	return &Scope{Name: name, Parent: parent, symbols: make(map[string]*Symbol)}
}

// Define adds a symbol to this scope.
func (s *Scope) Define(sym *Symbol) {
	sym.Scope = s
	s.symbols[sym.Name] = sym
	s.order = append(s.order, sym)
}

// LookupLocal finds a name in this scope only.
func (s *Scope) LookupLocal(name string) *Symbol {
	return s.symbols[name]
}

// Lookup finds a name in this scope or any enclosing scope.
func (s *Scope) Lookup(name string) *Symbol {
	for sc := s; sc != nil; sc = sc.Parent {
		if sym := sc.symbols[name]; sym != nil {
			return sym
		}
	}
	return nil
}

// Symbols returns this scope's symbols in definition order.
func (s *Scope) Symbols() []*Symbol {
	return s.order
}

// SymbolTable is the resolver's output alongside the annotated AST.
type SymbolTable struct {
	Root   *Scope
	Images []*Symbol // binding order
	Locals []*Symbol // slot order
}

// Image returns the image symbol for name, or nil.
func (t *SymbolTable) Image(name string) *Symbol {
	for _, sym := range t.Images {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

// Persistent returns the slots of init-block variables.
func (t *SymbolTable) Persistent() []int {
	var slots []int
	for _, sym := range t.Locals {
		if sym.Persistent {
			slots = append(slots, sym.Slot)
		}
	}
	return slots
}

// LocalNames returns variable names indexed by slot. Names may repeat
// when a nested scope declares a name already used by a sibling.
func (t *SymbolTable) LocalNames() []string {
	names := make([]string, len(t.Locals))
	for i, sym := range t.Locals {
		names[i] = sym.Name
	}
	return names
}

func newSymbolTable(bindings Bindings) *SymbolTable {
	t := &SymbolTable{Root: NewScope("script", nil)}
	for i, bind := range bindings {
		var role Role
		if bind.Role&Source != 0 {
			role |= RoleSourceImage
		}
		if bind.Role&Destination != 0 {
			role |= RoleDestinationImage
		}
		sym := &Symbol{Name: bind.Name, Role: role, Slot: i}
		t.Root.Define(sym)
		t.Images = append(t.Images, sym)
	}
	return t
}

func (t *SymbolTable) declareLocal(scope *Scope, name string, persistent bool, span Span) *Symbol {
	sym := &Symbol{
		Name:       name,
		Role:       RoleLocal,
		Slot:       len(t.Locals),
		Persistent: persistent,
		Span:       span,
	}
	scope.Define(sym)
	t.Locals = append(t.Locals, sym)
	return sym
}
