package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/sysy/vm"
)

var log = commonlog.GetLogger("sysy.compiler")

// Mode selects what expression translation does with the operations it
// recognizes.
type Mode int

const (
	// ModeEmit emits code that leaves the value on the operand stack.
	ModeEmit Mode = iota
	// ModeConst folds the expression at translation time. A result that
	// cannot be folded is reported as ErrNonConstantInitializer.
	ModeConst
	// ModeShape folds what it can without emitting or reporting.
	ModeShape
)

func (m Mode) String() string {
	switch m {
	case ModeEmit:
		return "emit"
	case ModeConst:
		return "const"
	case ModeShape:
		return "shape"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Result is a translated compilation unit.
type Result struct {
	Program     *vm.Program
	Globals     Scope        // the global scope after translation
	Diagnostics []Diagnostic // sorted by line, then code
}

// OK reports whether translation found no errors. Only programs without
// diagnostics may be executed.
func (r *Result) OK() bool {
	return len(r.Diagnostics) == 0
}

type loop struct {
	start  int
	breaks []int
}

// bailout carries a structural error out of the recursive descent.
type bailout struct {
	err *SyntaxError
}

// Translator is a single-pass recursive descent translator from tokens to
// a vm.Program. Semantic errors are collected and translation continues;
// structural errors stop it.
type Translator struct {
	tokens []Token
	pos    int

	prog   *vm.Program
	scopes *ScopeStack
	diags  []Diagnostic

	fn       *Symbol // function being translated, nil at global scope
	loops    []*loop
	mainCall int
}

// Translate translates a complete token stream. A structural error is
// returned as a *SyntaxError; recoverable errors are in Result.Diagnostics.
func Translate(tokens []Token) (res *Result, err error) {
	t := &Translator{
		tokens: tokens,
		prog:   vm.NewProgram(),
		scopes: NewScopeStack(),
	}

	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			res, err = nil, b.err
		}
	}()

	t.compUnit()
	SortDiagnostics(t.diags)

	if len(t.diags) == 0 {
		if verr := t.prog.Verify(); verr != nil {
			return nil, fmt.Errorf("translator produced an invalid program: %w", verr)
		}
	}
	log.Debugf("translated %d tokens into %d instructions, %d diagnostics",
		len(tokens), t.prog.Len(), len(t.diags))

	return &Result{
		Program:     t.prog,
		Globals:     t.scopes.Global(),
		Diagnostics: t.diags,
	}, nil
}

// ---------------------------------------------------------------------------
// Token cursor
// ---------------------------------------------------------------------------

func (t *Translator) peek(n int) Token {
	if i := t.pos + n; i < len(t.tokens) {
		return t.tokens[i]
	}
	line := 1
	if len(t.tokens) > 0 {
		line = t.tokens[len(t.tokens)-1].Line
	}
	return Token{Type: TokenEOF, Line: line}
}

func (t *Translator) cur() Token {
	return t.peek(0)
}

func (t *Translator) curIs(tt TokenType) bool {
	return t.cur().Type == tt
}

func (t *Translator) next() Token {
	tok := t.cur()
	if t.pos < len(t.tokens) {
		t.pos++
	}
	return tok
}

// prevLine is the line of the last consumed token. Missing terminators are
// reported there.
func (t *Translator) prevLine() int {
	if t.pos == 0 || len(t.tokens) == 0 {
		return t.cur().Line
	}
	return t.tokens[t.pos-1].Line
}

// expect consumes a token of type tt or stops translation.
func (t *Translator) expect(tt TokenType, what string) Token {
	if !t.curIs(tt) {
		t.errorf("expected %s, found %s", what, describe(t.cur()))
	}
	return t.next()
}

// expectOr consumes a token of type tt, or records kind at the previous
// token's line and continues as if it had been present.
func (t *Translator) expectOr(tt TokenType, kind ErrorKind) {
	if t.curIs(tt) {
		t.next()
		return
	}
	t.report(t.prevLine(), kind, "")
}

func (t *Translator) errorf(format string, args ...any) {
	panic(bailout{&SyntaxError{Line: t.cur().Line, Msg: fmt.Sprintf(format, args...)}})
}

func (t *Translator) report(line int, kind ErrorKind, detail string) {
	t.diags = append(t.diags, Diagnostic{Line: line, Kind: kind, Detail: detail})
}

func describe(tok Token) string {
	if tok.Type == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", tok.Literal)
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (t *Translator) emit(op vm.Opcode, operand int, line int) int {
	return t.prog.Emit(op, operand, line)
}

func (t *Translator) emitConst(v int64, line int) {
	t.emit(vm.OpLoadConst, t.prog.AddConstant(v), line)
}

// declare binds sym in the innermost scope, reporting a redefinition.
func (t *Translator) declare(sym *Symbol) {
	if err := t.scopes.Declare(sym.Name, sym); err != nil {
		t.report(sym.Line, ErrIdentRedefined, sym.Name)
	}
}

// ---------------------------------------------------------------------------
// Compilation unit and functions
// ---------------------------------------------------------------------------

// compUnit translates {Decl} {FuncDef} MainFuncDef. The program starts with
// a call to main followed by EXIT_INTERP; the call is patched once main
// has been translated.
func (t *Translator) compUnit() {
	t.mainCall = t.prog.Emit(vm.OpCallFunction, vm.Unresolved, 0)
	t.prog.Emit(vm.OpExitInterp, 0, 0)

	for t.startsDecl() {
		t.decl()
	}
	for t.startsFuncDef() {
		t.funcDef()
	}
	if !t.curIs(TokenInt) || t.peek(1).Type != TokenMain {
		t.errorf("expected main function, found %s", describe(t.cur()))
	}
	mainFn := t.funcDef()
	t.prog.PatchJump(t.mainCall, mainFn.Index)

	if !t.curIs(TokenEOF) {
		t.errorf("unexpected %s after main", describe(t.cur()))
	}
}

func (t *Translator) startsDecl() bool {
	switch t.cur().Type {
	case TokenConst:
		return true
	case TokenInt:
		return t.peek(1).Type == TokenIdent && t.peek(2).Type != TokenLParen
	}
	return false
}

func (t *Translator) startsFuncDef() bool {
	switch t.cur().Type {
	case TokenInt, TokenVoid:
		return t.peek(1).Type == TokenIdent && t.peek(2).Type == TokenLParen
	}
	return false
}

// funcDef translates FuncType Ident '(' [FuncFParams] ')' Block, main
// included. The function is declared before its body so it may recurse.
func (t *Translator) funcDef() *Symbol {
	retTok := t.next()
	nameTok := t.cur()
	if nameTok.Type != TokenIdent && nameTok.Type != TokenMain {
		t.errorf("expected function name, found %s", describe(nameTok))
	}
	t.next()

	fn := &Symbol{
		Kind:    SymbolFunc,
		Name:    nameTok.Literal,
		Line:    nameTok.Line,
		Global:  true,
		Slot:    -1,
		Returns: SymbolInt,
	}
	if retTok.Type == TokenVoid {
		fn.Returns = SymbolVoid
	}
	fn.Index = t.prog.AddFunction(vm.Function{
		Name: fn.Name,
		Line: fn.Line,
		Void: fn.Returns == SymbolVoid,
	})
	t.declare(fn)

	t.expect(TokenLParen, "'('")
	t.scopes.Push()
	if t.curIs(TokenInt) {
		for {
			t.funcParam(fn)
			if !t.curIs(TokenComma) {
				break
			}
			t.next()
		}
	}
	t.expectOr(TokenRParen, ErrMissingRParen)

	t.prog.Functions[fn.Index].Entry = t.prog.Len()
	t.fn = fn
	endsInReturn, closeLine := t.block(false)
	if fn.Returns == SymbolInt && !endsInReturn {
		t.report(closeLine, ErrMissingReturn, fn.Name)
	}
	t.emit(vm.OpReturnValue, 0, closeLine)
	t.scopes.Pop()
	t.fn = nil

	log.Debugf("function %s at %04d", fn.Signature(), t.prog.Functions[fn.Index].Entry)
	return fn
}

// funcParam translates 'int' Ident ['[' ']' {'[' ConstExp ']'}]. An array
// parameter's leading dimension is recorded as 0 and taken from the
// argument at call time.
func (t *Translator) funcParam(fn *Symbol) {
	t.expect(TokenInt, "'int'")
	nameTok := t.expect(TokenIdent, "parameter name")

	p := &Symbol{Kind: SymbolInt, Name: nameTok.Literal, Line: nameTok.Line, Slot: -1}
	if t.curIs(TokenLBracket) {
		t.next()
		t.expectOr(TokenRBracket, ErrMissingRBracket)
		p.Kind = SymbolArray
		p.Dims = []int64{0}
		for t.curIs(TokenLBracket) {
			t.next()
			d := t.expr(ModeShape)
			p.Dims = append(p.Dims, d.Value)
			t.expectOr(TokenRBracket, ErrMissingRBracket)
		}
	}
	t.declare(p)

	p.Slot = t.prog.AddVariable(vm.Variable{Name: p.Name, Line: p.Line, Dims: p.Dims})
	fn.Params = append(fn.Params, p)
	t.prog.Functions[fn.Index].Params = append(t.prog.Functions[fn.Index].Params, p.Slot)
}

// block translates '{' {BlockItem} '}'. Function bodies share the scope of
// their parameters; nested blocks open their own. It reports whether the
// last item is a return statement, and the line of the closing brace.
func (t *Translator) block(newScope bool) (bool, int) {
	t.expect(TokenLBrace, "'{'")
	if newScope {
		t.scopes.Push()
		defer t.scopes.Pop()
	}

	endsInReturn := false
	for !t.curIs(TokenRBrace) {
		if t.curIs(TokenEOF) {
			t.errorf("missing '}' before end of input")
		}
		if t.curIs(TokenConst) || t.curIs(TokenInt) {
			t.decl()
			endsInReturn = false
			continue
		}
		endsInReturn = t.stmt()
	}
	closeLine := t.next().Line
	return endsInReturn, closeLine
}
