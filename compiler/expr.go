package compiler

import "github.com/chazu/sysy/vm"

var (
	mulOps = map[TokenType]vm.BinaryOp{TokenMul: vm.BinaryMul, TokenDiv: vm.BinaryDiv, TokenMod: vm.BinaryMod}
	addOps = map[TokenType]vm.BinaryOp{TokenPlus: vm.BinaryAdd, TokenMinus: vm.BinarySub}
	relOps = map[TokenType]vm.BinaryOp{TokenLss: vm.BinaryLt, TokenLeq: vm.BinaryLe, TokenGre: vm.BinaryGt, TokenGeq: vm.BinaryGe}
	eqOps  = map[TokenType]vm.BinaryOp{TokenEql: vm.BinaryEq, TokenNeq: vm.BinaryNe}

	unaryOps = map[TokenType]vm.UnaryOp{TokenPlus: vm.UnaryPositive, TokenMinus: vm.UnaryNegative, TokenNot: vm.UnaryNot}
)

// expr translates Exp (AddExp). The returned symbol describes the result:
// an integer, known when folded, an array view, or void.
func (t *Translator) expr(mode Mode) *Symbol {
	return t.additive(mode)
}

func (t *Translator) equality(mode Mode) *Symbol {
	return t.binary(mode, eqOps, t.relational)
}

func (t *Translator) relational(mode Mode) *Symbol {
	return t.binary(mode, relOps, t.additive)
}

func (t *Translator) additive(mode Mode) *Symbol {
	return t.binary(mode, addOps, t.multiplicative)
}

func (t *Translator) multiplicative(mode Mode) *Symbol {
	return t.binary(mode, mulOps, t.unary)
}

// binary translates a left-associative chain of operators from ops.
func (t *Translator) binary(mode Mode, ops map[TokenType]vm.BinaryOp, operand func(Mode) *Symbol) *Symbol {
	left := operand(mode)
	for {
		op, ok := ops[t.cur().Type]
		if !ok {
			return left
		}
		line := t.next().Line
		right := operand(mode)
		if mode == ModeEmit {
			t.emit(vm.OpBinaryOp, int(op), line)
		}
		left = fold(mode, left, right, op)
	}
}

// fold combines operand shapes. A non-integer operand gives the result its
// shape; integers fold outside emit mode when both are known.
func fold(mode Mode, x, y *Symbol, op vm.BinaryOp) *Symbol {
	if x.Kind != SymbolInt {
		return x
	}
	if y.Kind != SymbolInt {
		return y
	}
	if mode != ModeEmit && x.Known && y.Known {
		if v, err := op.Apply(x.Value, y.Value); err == nil {
			return intResult(v, true)
		}
	}
	return intResult(0, false)
}

func (t *Translator) startsExpr() bool {
	switch t.cur().Type {
	case TokenIdent, TokenIntConst, TokenLParen, TokenPlus, TokenMinus, TokenNot, TokenGetint:
		return true
	}
	return false
}

// unary translates UnaryExp and PrimaryExp.
func (t *Translator) unary(mode Mode) *Symbol {
	tok := t.cur()
	switch tok.Type {
	case TokenPlus, TokenMinus, TokenNot:
		t.next()
		v := t.unary(mode)
		op := unaryOps[tok.Type]
		if mode == ModeEmit {
			t.emit(vm.OpUnaryOp, int(op), tok.Line)
		}
		if v.Kind != SymbolInt {
			return v
		}
		if mode != ModeEmit && v.Known {
			r, err := op.Apply(v.Value)
			return intResult(r, err == nil)
		}
		return intResult(0, false)

	case TokenIdent:
		if t.peek(1).Type == TokenLParen {
			return t.call(mode)
		}
		return t.lval(mode)

	case TokenGetint:
		t.next()
		t.expect(TokenLParen, "'('")
		t.expectOr(TokenRParen, ErrMissingRParen)
		if mode == ModeEmit {
			t.emit(vm.OpCallGetint, 0, tok.Line)
		}
		return intResult(0, false)

	case TokenLParen:
		t.next()
		v := t.expr(mode)
		t.expectOr(TokenRParen, ErrMissingRParen)
		return v

	case TokenIntConst:
		t.next()
		if mode == ModeEmit {
			t.emitConst(tok.Value, tok.Line)
		}
		return intResult(tok.Value, true)
	}

	t.errorf("unexpected %s in expression", describe(tok))
	return nil
}

// lval translates a name read, with optional subscripts. Constants, and
// globals while still at global scope, fold outside emit mode. In emit
// mode constant scalars are loaded as literals and arrays are loaded by
// name then subscripted one dimension at a time.
func (t *Translator) lval(mode Mode) *Symbol {
	nameTok := t.next()
	line := nameTok.Line

	sym, ok := t.scopes.Lookup(nameTok.Literal)
	if !ok || sym.Kind == SymbolFunc {
		t.report(line, ErrIdentUndefined, nameTok.Literal)
		if mode == ModeEmit {
			t.emitConst(0, line)
		}
		t.skipSubscripts()
		return voidSymbol()
	}

	foldable := sym.Const || (sym.Global && t.fn == nil)

	if sym.Kind == SymbolInt {
		t.skipSubscripts()
		switch {
		case mode == ModeEmit && sym.Const && sym.Known:
			t.emitConst(sym.Value, line)
		case mode == ModeEmit:
			t.emit(vm.OpLoadName, sym.Slot, line)
		case foldable && sym.Known:
			return intResult(sym.Value, true)
		}
		return intResult(0, false)
	}

	if mode == ModeEmit {
		t.emit(vm.OpLoadName, sym.Slot, line)
	}
	view := sym
	known := foldable && sym.Data != nil
	overIndexed := false
	for t.curIs(TokenLBracket) {
		t.next()
		idx := t.expr(mode)
		t.expectOr(TokenRBracket, ErrMissingRBracket)

		if mode == ModeEmit {
			t.emit(vm.OpSubscrArray, 0, line)
		}
		if view.Rank() <= 0 {
			overIndexed = true
			continue
		}
		if known && idx.Kind == SymbolInt && idx.Known && idx.Value >= 0 && idx.Value < view.Dims[view.Deref] {
			view = view.index(idx.Value)
		} else {
			known = false
			view = view.index(0)
		}
	}

	switch {
	case overIndexed:
		return intResult(0, false)
	case view.Rank() == 0:
		if mode != ModeEmit && known && view.Offset < int64(len(view.Data)) {
			return intResult(view.Data[view.Offset], true)
		}
		return intResult(0, false)
	}
	if !known && view != sym {
		view.Data = nil
	}
	return view
}

// skipSubscripts consumes subscripts that cannot apply to the name before
// them.
func (t *Translator) skipSubscripts() {
	for t.curIs(TokenLBracket) {
		t.next()
		t.expr(ModeShape)
		t.expectOr(TokenRBracket, ErrMissingRBracket)
	}
}

// call translates Ident '(' [FuncRParams] ')'. Arguments are checked
// against the formals: each argument's shape must match its formal, and
// a wrong argument count is reported once per call.
func (t *Translator) call(mode Mode) *Symbol {
	nameTok := t.next()
	line := nameTok.Line
	t.next() // '('

	fn, ok := t.scopes.Lookup(nameTok.Literal)
	if !ok || fn.Kind != SymbolFunc {
		t.report(line, ErrIdentUndefined, nameTok.Literal)
		fn = nil
	}

	argMode := ModeEmit
	if mode != ModeEmit {
		argMode = ModeShape
	}

	n := 0
	arityReported := false
	if t.startsExpr() {
		for {
			arg := t.expr(argMode)
			if fn != nil {
				switch {
				case n < len(fn.Params):
					if !argMatches(fn.Params[n], arg) {
						t.report(line, ErrParamTypeMismatch, fn.Params[n].Name)
					}
				case !arityReported:
					t.report(line, ErrParamAmountMismatch, fn.Name)
					arityReported = true
				}
			}
			n++
			if !t.curIs(TokenComma) {
				break
			}
			t.next()
		}
	}
	if fn != nil && n < len(fn.Params) && !arityReported {
		t.report(line, ErrParamAmountMismatch, fn.Name)
	}
	t.expectOr(TokenRParen, ErrMissingRParen)

	if fn == nil {
		if mode == ModeEmit {
			t.emitConst(0, line)
		}
		return voidSymbol()
	}
	if mode == ModeEmit {
		t.emit(vm.OpCallFunction, fn.Index, line)
	}
	if fn.Returns == SymbolVoid {
		return voidSymbol()
	}
	return intResult(0, false)
}

// argMatches reports whether an argument of shape arg may bind to formal.
// Arrays match when their remaining rank equals the formal's rank.
func argMatches(formal, arg *Symbol) bool {
	switch arg.Kind {
	case SymbolInt:
		return formal.Kind == SymbolInt
	case SymbolArray:
		return formal.Kind == SymbolArray && len(formal.Dims) == arg.Rank()
	}
	return false
}
