package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/sysy/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "sysy-lsp"

var keywords = []string{
	"break", "const", "continue", "else", "getint", "if", "int",
	"main", "printf", "return", "void", "while",
}

// analysis is the result of translating one document.
type analysis struct {
	diagnostics []protocol.Diagnostic
	globals     compiler.Scope
}

// LspServer publishes translation diagnostics and answers hover,
// completion and definition requests from the global scope.
type LspServer struct {
	worker *Worker

	mu       sync.Mutex
	docs     map[string]string // URI → full document content
	analyses map[string]*analysis

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		worker:   NewWorker(),
		docs:     make(map[string]string),
		analyses: make(map[string]*analysis),
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
	log.Infof("%s initializing", lspName)

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
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	delete(s.analyses, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) lookup(uri protocol.DocumentUri) (string, *analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[string(uri)], s.analyses[string(uri)]
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, a := s.lookup(params.TextDocument.URI)
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(a, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, a := s.lookup(params.TextDocument.URI)
	word := extractWord(text, params.Position)
	if word == "" || a == nil {
		return nil, nil
	}
	return hover(a, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, a := s.lookup(uri)
	word := extractWord(text, params.Position)
	if word == "" || a == nil {
		return nil, nil
	}
	sym, ok := a.globals[word]
	if !ok || sym.Line <= 0 {
		return nil, nil
	}
	pos := protocol.Position{Line: protocol.UInteger(sym.Line - 1)}
	return []protocol.Location{{
		URI:   uri,
		Range: protocol.Range{Start: pos, End: pos},
	}}, nil
}

// complete lists keywords and global names starting with prefix.
func complete(a *analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	for _, kw := range keywords {
		if strings.HasPrefix(kw, prefix) {
			kind := protocol.CompletionItemKindKeyword
			name := kw
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				InsertText: &name,
			})
		}
	}

	if a != nil {
		var names []string
		for name := range a.globals {
			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			sym := a.globals[name]
			kind := protocol.CompletionItemKindVariable
			switch {
			case sym.Kind == compiler.SymbolFunc:
				kind = protocol.CompletionItemKindFunction
			case sym.Const:
				kind = protocol.CompletionItemKindConstant
			}
			detail := declaration(sym)
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}
	return items
}

// hover describes a global symbol.
func hover(a *analysis, word string) *protocol.Hover {
	sym, ok := a.globals[word]
	if !ok {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "```c\n%s\n```\n", declaration(sym))
	if sym.Line > 0 {
		fmt.Fprintf(&b, "\nDeclared on line %d", sym.Line)
	}
	if sym.Const && sym.Kind == compiler.SymbolInt {
		fmt.Fprintf(&b, "\n\nValue: `%d`", sym.Value)
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// declaration renders a symbol the way it was declared.
func declaration(sym *compiler.Symbol) string {
	if sym.Kind == compiler.SymbolFunc {
		return sym.Signature()
	}
	t := sym.TypeString()
	if i := strings.IndexByte(t, '['); i >= 0 {
		return t[:i] + " " + sym.Name + t[i:]
	}
	return t + " " + sym.Name
}

// analyze translates text and converts its diagnostics. A structural
// error becomes a single diagnostic.
func analyze(text string) *analysis {
	a := &analysis{diagnostics: []protocol.Diagnostic{}}
	lines := strings.Split(text, "\n")
	res, err := compiler.Compile(text)
	if err != nil {
		line := 1
		var serr *compiler.SyntaxError
		if errors.As(err, &serr) {
			line = serr.Line
		}
		a.diagnostics = append(a.diagnostics, newDiagnostic(lines, line, "", err.Error()))
		return a
	}

	a.globals = res.Globals
	for _, d := range res.Diagnostics {
		a.diagnostics = append(a.diagnostics, newDiagnostic(lines, d.Line, string(d.Kind.Code()), d.Message()))
	}
	return a
}

func newDiagnostic(lines []string, line int, code, msg string) protocol.Diagnostic {
	if line < 1 {
		line = 1
	}
	end := 0
	if line <= len(lines) {
		end = len(lines[line-1])
	}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line - 1)},
			End:   protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(end)},
		},
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
	if code != "" {
		d.Code = &protocol.IntegerOrString{Value: code}
	}
	return d
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func() (any, error) {
		return analyze(text), nil
	})
	if err != nil {
		log.Errorf("analyze %s: %s", uri, err)
		return
	}
	a := result.(*analysis)

	s.mu.Lock()
	s.analyses[string(uri)] = a
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: a.diagnostics,
	})
}

// --- Text extraction helpers ---

func isIdentChar(ch byte) bool {
	return ch == '_' || ch < unicode.MaxASCII && (unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)))
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the whole identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start, end := col, col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	for end < len(line) && isIdentChar(line[end]) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
