package server

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/manifest"
	"github.com/chazu/rastal/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "rastal-lsp"

var log = commonlog.GetLogger("rastal.lsp")

// LspServer serves editor features for raster-algebra scripts.
type LspServer struct {
	registry *vm.Registry

	mu   sync.Mutex
	docs map[string]*document // URI → latest analysis

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// document is one open script and the result of analyzing it.
type document struct {
	text     string
	bindings compiler.Bindings
	managed  bool // bindings come from a project manifest
	symbols  *compiler.SymbolTable
	problems compiler.Problems
}

// NewLSP creates a language server resolving calls against registry. A
// nil registry means vm.DefaultRegistry().
func NewLSP(registry *vm.Registry) *LspServer {
	if registry == nil {
		registry = vm.DefaultRegistry()
	}
	s := &LspServer{
		registry: registry,
		docs:     make(map[string]*document),
		version:  "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("rastal LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := s.open(params.TextDocument.URI, params.TextDocument.Text)
	s.publishDiagnostics(ctx, params.TextDocument.URI, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.open(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// open analyzes text and stores it as the current state of uri.
func (s *LspServer) open(uri protocol.DocumentUri, text string) *document {
	bindings, managed := s.bindingsFor(uri)
	doc := s.analyze(text, bindings, managed)

	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) lookup(uri protocol.DocumentUri) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[string(uri)]
}

// --- Analysis ---

// bindingsFor finds the project manifest above a file URI and returns its
// binding table. The second result is false when no usable manifest exists.
func (s *LspServer) bindingsFor(uri protocol.DocumentUri) (compiler.Bindings, bool) {
	path, ok := uriPath(uri)
	if !ok {
		return nil, false
	}
	m, err := manifest.FindAndLoad(filepath.Dir(path))
	if err != nil {
		log.Warningf("manifest for %s: %s", path, err)
		return nil, false
	}
	if m == nil {
		return nil, false
	}
	bindings, err := manifest.NewResolver(m).Bindings()
	if err != nil {
		log.Warningf("bindings in %s: %s", m.Path, err)
		if bindings == nil {
			return nil, false
		}
	}
	return bindings, true
}

// analyze parses text and, when the bindings are known, resolves it. An
// unmanaged document only reports syntax problems since every image
// reference would otherwise look undeclared.
func (s *LspServer) analyze(text string, bindings compiler.Bindings, managed bool) *document {
	doc := &document{text: text, bindings: bindings, managed: managed}

	script, problems := compiler.Parse(text)
	doc.problems = problems
	if script == nil {
		return doc
	}
	if managed {
		if bad := compiler.BindingProblems(bindings); len(bad) > 0 {
			doc.problems = append(doc.problems, bad...)
			return doc
		}
	}

	_, symbols, resolved := compiler.Resolve(script, bindings, s.registry)
	doc.symbols = symbols
	if managed {
		doc.problems = append(doc.problems, resolved...)
	}
	return doc
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics(doc.problems),
	})
}

// diagnostics converts compiler problems to LSP diagnostics.
func diagnostics(problems compiler.Problems) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(problems))
	source := lspName
	for _, p := range problems {
		severity := protocol.DiagnosticSeverityError
		if p.Severity == compiler.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		out = append(out, protocol.Diagnostic{
			Range:    spanRange(p.Span),
			Severity: &severity,
			Code:     &protocol.IntegerOrString{Value: p.Code.String()},
			Source:   &source,
			Message:  p.Message,
		})
	}
	return out
}

// spanRange maps a 1-based source span to a 0-based LSP range.
func spanRange(span compiler.Span) protocol.Range {
	start := lspPosition(span.Start)
	end := start
	if span.End.Line > 0 {
		end = lspPosition(span.End)
	}
	return protocol.Range{Start: start, End: end}
}

func lspPosition(p compiler.Position) protocol.Position {
	var pos protocol.Position
	if p.Line > 0 {
		pos.Line = protocol.UInteger(p.Line - 1)
	}
	if p.Column > 0 {
		pos.Character = protocol.UInteger(p.Column - 1)
	}
	return pos
}

// uriPath converts a file:// URI to a local path.
func uriPath(uri protocol.DocumentUri) (string, bool) {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc := s.lookup(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}

	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(doc, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.lookup(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc := s.lookup(uri)
	if doc == nil {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	locations := definition(doc, uri, word)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

func (s *LspServer) complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	seen := make(map[string]bool)

	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(strings.ToLower(label), lowerPrefix) {
			return
		}
		seen[label] = true
		insert := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &insert,
		})
	}

	for _, b := range doc.bindings {
		add(b.Name, protocol.CompletionItemKindVariable, imageRole(b.Role))
	}
	if doc.symbols != nil {
		for _, sym := range doc.symbols.Locals {
			add(sym.Name, protocol.CompletionItemKindVariable, localDetail(sym))
		}
	}
	for _, name := range compiler.BuiltinNames() {
		add(name, protocol.CompletionItemKindFunction, "built-in")
	}
	for _, name := range s.registry.Names() {
		fn, _ := s.registry.Lookup(name)
		add(name, protocol.CompletionItemKindFunction, signature(fn.Name, fn.Arity))
	}
	for _, name := range compiler.ConstantNames() {
		add(name, protocol.CompletionItemKindConstant, "constant")
	}
	for _, name := range compiler.Keywords() {
		add(name, protocol.CompletionItemKindKeyword, "keyword")
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

var builtinDocs = map[string]string{
	"x":      "column of the pixel being evaluated",
	"col":    "column of the pixel being evaluated",
	"y":      "row of the pixel being evaluated",
	"row":    "row of the pixel being evaluated",
	"width":  "width of the evaluation region",
	"height": "height of the evaluation region",
}

func (s *LspServer) hover(doc *document, word string) *protocol.Hover {
	var b strings.Builder

	switch {
	case bindingFound(doc.bindings, word):
		bind, _ := doc.bindings.Lookup(word)
		fmt.Fprintf(&b, "**%s**: %s", word, imageRole(bind.Role))

	case isBuiltin(word):
		fmt.Fprintf(&b, "**%s()**: built-in\n\n%s", word, builtinDocs[word])

	case isConstant(word):
		v, _ := compiler.LookupConstant(word)
		fmt.Fprintf(&b, "**%s** = %v", word, v)

	default:
		if fn, ok := s.registry.Lookup(word); ok {
			fmt.Fprintf(&b, "**%s**: function", signature(fn.Name, fn.Arity))
			break
		}
		sym := firstLocal(doc.symbols, word)
		if sym == nil {
			return nil
		}
		fmt.Fprintf(&b, "**%s**: %s", word, localDetail(sym))
		if sym.Span.Start.Line > 0 {
			fmt.Fprintf(&b, "\n\nfirst assigned on line %d", sym.Span.Start.Line)
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// definition returns the declaring assignments of every local named word.
// Sibling scopes may each declare the same name.
func definition(doc *document, uri protocol.DocumentUri, word string) []protocol.Location {
	if doc.symbols == nil {
		return nil
	}
	var locations []protocol.Location
	for _, sym := range doc.symbols.Locals {
		if sym.Name != word {
			continue
		}
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: spanRange(sym.Span),
		})
	}
	return locations
}

func bindingFound(bindings compiler.Bindings, name string) bool {
	_, ok := bindings.Lookup(name)
	return ok
}

func isBuiltin(name string) bool {
	_, ok := compiler.LookupBuiltin(name)
	return ok
}

func isConstant(name string) bool {
	_, ok := compiler.LookupConstant(name)
	return ok
}

func firstLocal(table *compiler.SymbolTable, name string) *compiler.Symbol {
	if table == nil {
		return nil
	}
	for _, sym := range table.Locals {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

func imageRole(role vm.ImageRole) string {
	switch {
	case role&vm.RoleSource != 0 && role&vm.RoleDestination != 0:
		return "source and destination image"
	case role&vm.RoleDestination != 0:
		return "destination image"
	}
	return "source image"
}

func localDetail(sym *compiler.Symbol) string {
	if sym.Persistent {
		return "persistent variable (init)"
	}
	return "per-pixel variable"
}

func signature(name string, arity int) string {
	params := make([]string, arity)
	for i := range params {
		params[i] = fmt.Sprintf("a%d", i+1)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(params, ", "))
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor for
// completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}

	end := col
	for end < len(line) && isIdentByte(line[end]) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isIdentByte(c byte) bool {
	ch := rune(c)
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
