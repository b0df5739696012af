package server

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/vm"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "out = ma", protocol.Position{Line: 0, Character: 8}, "ma"},
		{"at start", "ou", protocol.Position{Line: 0, Character: 2}, "ou"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "t = 1;\nout = t;\nhyp", protocol.Position{Line: 2, Character: 3}, "hyp"},
		{"after operator", "out = a+sq", protocol.Position{Line: 0, Character: 10}, "sq"},
		{"underscore", "out = M_P", protocol.Position{Line: 0, Character: 9}, "M_P"},
		{"cursor at beginning", "out", protocol.Position{Line: 0, Character: 0}, ""},
		{"line beyond document", "out", protocol.Position{Line: 5, Character: 0}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractPrefix(tc.text, tc.pos); got != tc.want {
				t.Errorf("extractPrefix = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"middle of word", "out = nir;", protocol.Position{Line: 0, Character: 7}, "nir"},
		{"at end", "out = nir", protocol.Position{Line: 0, Character: 9}, "nir"},
		{"on space", "out = nir", protocol.Position{Line: 0, Character: 4}, ""},
		{"first word", "out = nir", protocol.Position{Line: 0, Character: 1}, "out"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "t = 1;\nout = t_max;", protocol.Position{Line: 1, Character: 8}, "t_max"},
		{"line beyond document", "out", protocol.Position{Line: 3, Character: 0}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractWord(tc.text, tc.pos); got != tc.want {
				t.Errorf("extractWord = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Error("boolPtr(true) should point at true")
	}
	if p := boolPtr(false); p == nil || *p {
		t.Error("boolPtr(false) should point at false")
	}
}

// ---------------------------------------------------------------------------
// Analysis and diagnostics
// ---------------------------------------------------------------------------

var testBindings = compiler.Bindings{
	{Name: "nir", Role: compiler.Source},
	{Name: "out", Role: compiler.Destination},
}

func TestAnalyzeManagedReportsScopeProblems(t *testing.T) {
	s := NewLSP(nil)
	doc := s.analyze("out = q + nir;", testBindings, true)

	diags := diagnostics(doc.problems)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %+v", diags)
	}
	d := diags[0]
	if d.Range.Start.Line != 0 || d.Range.Start.Character != 6 {
		t.Errorf("range start = %+v, want 0:6", d.Range.Start)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", d.Severity)
	}
	if d.Code == nil || d.Code.Value != "UndeclaredIdentifier" {
		t.Errorf("code = %+v", d.Code)
	}
	if !strings.Contains(d.Message, "q") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestAnalyzeWarningSeverity(t *testing.T) {
	s := NewLSP(nil)
	doc := s.analyze("out = 1;", testBindings, true)

	diags := diagnostics(doc.problems)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %+v", diags)
	}
	if *diags[0].Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("unused source should be a warning, got %v", *diags[0].Severity)
	}
}

func TestAnalyzeUnmanagedReportsSyntaxOnly(t *testing.T) {
	s := NewLSP(nil)

	doc := s.analyze("out = q + nir;", nil, false)
	if len(doc.problems) != 0 {
		t.Errorf("unmanaged document reported scope problems:\n%s", doc.problems)
	}

	doc = s.analyze("out = (1 + ;", nil, false)
	if !doc.problems.HasKind(compiler.KindSyntax) {
		t.Errorf("syntax error not reported:\n%s", doc.problems)
	}
	if doc.symbols != nil {
		t.Error("unparseable document should have no symbols")
	}
}

func TestSpanRange(t *testing.T) {
	span := compiler.MakeSpan(
		compiler.Position{Line: 3, Column: 5},
		compiler.Position{Line: 3, Column: 9},
	)
	r := spanRange(span)
	if r.Start.Line != 2 || r.Start.Character != 4 || r.End.Line != 2 || r.End.Character != 8 {
		t.Errorf("range = %+v", r)
	}

	zero := spanRange(compiler.Span{Start: compiler.Position{Line: 1, Column: 1}})
	if zero.End != zero.Start {
		t.Errorf("missing end should collapse to start, got %+v", zero)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fileURI(path string) protocol.DocumentUri {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return protocol.DocumentUri(u.String())
}

func TestBindingsFromManifest(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "scripts")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "rastal.toml"), `
[[images]]
name = "nir"
path = "nir.png"

[[images]]
name = "out"
role = "destination"
path = "out.cbor"
`)

	s := NewLSP(nil)
	bindings, ok := s.bindingsFor(fileURI(filepath.Join(sub, "ndvi.ras")))
	if !ok {
		t.Fatal("manifest in parent directory not found")
	}
	if len(bindings) != 2 || bindings[0].Name != "nir" || bindings[1].Role != compiler.Destination {
		t.Errorf("bindings = %+v", bindings)
	}

	doc := s.open(fileURI(filepath.Join(sub, "ndvi.ras")), "out = nir * 2;")
	if !doc.managed || len(doc.problems) != 0 {
		t.Errorf("managed = %v, problems:\n%s", doc.managed, doc.problems)
	}
}

func TestInvalidManifestBindingsReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rastal.toml"), `
[[images]]
name = "nir"
path = "nir.png"

[[images]]
name = "width"
role = "destination"
path = "out.cbor"
`)

	s := NewLSP(nil)
	doc := s.open(fileURI(filepath.Join(dir, "main.ras")), "width = nir;")
	if !doc.managed {
		t.Fatal("document with invalid bindings should stay managed")
	}
	if !doc.problems.Has(compiler.ReservedName) {
		t.Errorf("invalid binding not reported:\n%s", doc.problems)
	}
	if doc.symbols != nil {
		t.Error("invalid bindings should not be resolved")
	}
}

func TestBindingsWithoutManifest(t *testing.T) {
	s := NewLSP(nil)
	if _, ok := s.bindingsFor("untitled:Untitled-1"); ok {
		t.Error("non-file URI should have no bindings")
	}
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

const featureScript = `init { total = 0; }
scale = 2;
total += nir;
out = max(nir * scale, M_PI);`

func featureDoc(t *testing.T, s *LspServer) *document {
	t.Helper()
	doc := s.analyze(featureScript, testBindings, true)
	if doc.problems.HasErrors() {
		t.Fatalf("feature script does not compile:\n%s", doc.problems)
	}
	return doc
}

func labels(items []protocol.CompletionItem) map[string]string {
	out := make(map[string]string)
	for _, item := range items {
		out[item.Label] = *item.Detail
	}
	return out
}

func TestComplete(t *testing.T) {
	s := NewLSP(nil)
	doc := featureDoc(t, s)

	got := labels(s.complete(doc, "m"))
	for _, want := range []string{"max", "min", "M_PI", "M_E"} {
		if _, ok := got[want]; !ok {
			t.Errorf("completion for %q missing %s: %v", "m", want, got)
		}
	}
	if got["max"] != "max(a1, a2)" {
		t.Errorf("max detail = %q", got["max"])
	}

	got = labels(s.complete(doc, "n"))
	if got["nir"] != "source image" {
		t.Errorf("nir detail = %q", got["nir"])
	}

	got = labels(s.complete(doc, "to"))
	if got["total"] != "persistent variable (init)" {
		t.Errorf("total detail = %q", got["total"])
	}

	got = labels(s.complete(doc, "wh"))
	if got["while"] != "keyword" {
		t.Errorf("while detail = %q", got["while"])
	}

	got = labels(s.complete(doc, "hei"))
	if got["height"] != "built-in" {
		t.Errorf("height detail = %q", got["height"])
	}
}

func TestCompleteRegistryFunctions(t *testing.T) {
	r := vm.DefaultRegistry()
	r.MustRegister("ndvi", 2, func(args []float64) (float64, error) {
		return (args[0] - args[1]) / (args[0] + args[1]), nil
	})
	s := NewLSP(r)
	doc := s.analyze("out = ndvi(nir, nir);", testBindings, true)
	if doc.problems.HasErrors() {
		t.Fatalf("custom function not resolved:\n%s", doc.problems)
	}
	if _, ok := labels(s.complete(doc, "nd"))["ndvi"]; !ok {
		t.Error("registered function missing from completion")
	}
}

func hoverText(h *protocol.Hover) string {
	if h == nil {
		return ""
	}
	return h.Contents.(protocol.MarkupContent).Value
}

func TestHover(t *testing.T) {
	s := NewLSP(nil)
	doc := featureDoc(t, s)

	tests := []struct {
		word string
		want string
	}{
		{"nir", "source image"},
		{"out", "destination image"},
		{"x", "column of the pixel"},
		{"M_PI", "3.14159"},
		{"max", "max(a1, a2)"},
		{"total", "persistent variable"},
		{"scale", "first assigned on line 2"},
	}
	for _, tc := range tests {
		got := hoverText(s.hover(doc, tc.word))
		if !strings.Contains(got, tc.want) {
			t.Errorf("hover %s = %q, want it to contain %q", tc.word, got, tc.want)
		}
	}

	if h := s.hover(doc, "nothing"); h != nil {
		t.Errorf("hover on unknown word = %q", hoverText(h))
	}
}

func TestDefinition(t *testing.T) {
	s := NewLSP(nil)
	doc := featureDoc(t, s)
	uri := protocol.DocumentUri("file:///tmp/ndvi.ras")

	locs := definition(doc, uri, "scale")
	if len(locs) != 1 {
		t.Fatalf("definition = %+v", locs)
	}
	if locs[0].URI != uri || locs[0].Range.Start.Line != 1 || locs[0].Range.Start.Character != 0 {
		t.Errorf("location = %+v", locs[0])
	}

	if locs := definition(doc, uri, "nir"); len(locs) != 0 {
		t.Errorf("images have no declaring assignment, got %+v", locs)
	}
}

func TestDocumentStore(t *testing.T) {
	s := NewLSP(nil)
	uri := protocol.DocumentUri("untitled:scratch")

	s.open(uri, "out = 1;")
	doc := s.lookup(uri)
	if doc == nil || doc.text != "out = 1;" {
		t.Fatalf("document not stored: %+v", doc)
	}

	s.open(uri, "out = 2;")
	if s.lookup(uri).text != "out = 2;" {
		t.Error("reopen should replace the stored text")
	}

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()
	if s.lookup(uri) != nil {
		t.Error("document should be removed after close")
	}
}
