package compiler

import "github.com/chazu/sysy/vm"

// stmt translates one statement. It reports whether the statement is a
// return.
func (t *Translator) stmt() bool {
	switch t.cur().Type {
	case TokenSemicolon:
		t.next()
	case TokenLBrace:
		t.block(true)
	case TokenIf:
		t.ifStmt()
	case TokenWhile:
		t.whileStmt()
	case TokenBreak, TokenContinue:
		t.jumpStmt()
	case TokenReturn:
		return t.returnStmt()
	case TokenPrintf:
		t.printfStmt()
	case TokenIdent:
		if t.isAssignment() {
			t.assignStmt()
		} else {
			t.exprStmt()
		}
	default:
		t.exprStmt()
	}
	return false
}

// isAssignment reports whether the identifier at the current token starts
// an l-value followed by '='. Subscripts may be unclosed, so an '=' inside
// an open bracket still counts.
func (t *Translator) isAssignment() bool {
	depth := 0
	for i := t.pos + 1; i < len(t.tokens); i++ {
		switch t.tokens[i].Type {
		case TokenAssign:
			return true
		case TokenLBracket:
			depth++
		case TokenRBracket:
			if depth == 0 {
				return false
			}
			depth--
		case TokenSemicolon, TokenLBrace, TokenRBrace, TokenEOF:
			return false
		default:
			if depth == 0 {
				return false
			}
		}
	}
	return false
}

func (t *Translator) exprStmt() {
	line := t.cur().Line
	t.expr(ModeEmit)
	t.emit(vm.OpPopTop, 0, line)
	t.expectOr(TokenSemicolon, ErrMissingSemicolon)
}

// assignStmt translates LVal '=' Exp ';'. For an element target the array
// view and the final index stay on the stack for STORE_SUBSCR.
func (t *Translator) assignStmt() {
	nameTok := t.next()
	line := nameTok.Line

	target, ok := t.scopes.Lookup(nameTok.Literal)
	switch {
	case !ok || target.Kind == SymbolFunc:
		t.report(line, ErrIdentUndefined, nameTok.Literal)
		target = nil
	case target.Const:
		t.report(line, ErrCannotModifyConst, nameTok.Literal)
	}

	subscripted := false
	if target != nil && target.Kind == SymbolArray && t.curIs(TokenLBracket) {
		t.emit(vm.OpLoadName, target.Slot, line)
	}
	for t.curIs(TokenLBracket) {
		t.next()
		t.expr(ModeEmit)
		t.expectOr(TokenRBracket, ErrMissingRBracket)
		subscripted = true
		if t.curIs(TokenLBracket) {
			t.emit(vm.OpSubscrArray, 0, line)
		}
	}

	t.expect(TokenAssign, "'='")
	t.expr(ModeEmit)

	switch {
	case target == nil:
	case subscripted && target.Kind == SymbolArray:
		t.emit(vm.OpStoreSubscr, 0, line)
	default:
		t.emit(vm.OpStoreName, target.Slot, line)
	}
	t.expectOr(TokenSemicolon, ErrMissingSemicolon)
}

// ifStmt translates 'if' '(' Cond ')' Stmt ['else' Stmt].
func (t *Translator) ifStmt() {
	t.next()
	t.expect(TokenLParen, "'('")
	trueJumps, falseJumps := t.cond()
	t.expectOr(TokenRParen, ErrMissingRParen)

	t.prog.PatchJumps(trueJumps, t.prog.Len())
	t.stmt()

	if t.curIs(TokenElse) {
		line := t.next().Line
		skip := t.prog.EmitJump(vm.OpJumpAbsolute, line)
		t.prog.PatchJumps(falseJumps, t.prog.Len())
		t.stmt()
		t.prog.PatchJump(skip, t.prog.Len())
		return
	}
	t.prog.PatchJumps(falseJumps, t.prog.Len())
}

// whileStmt translates 'while' '(' Cond ')' Stmt. The body ends with a
// jump back to the condition; false exits and breaks land after it.
func (t *Translator) whileStmt() {
	line := t.next().Line
	t.expect(TokenLParen, "'('")

	start := t.prog.Len()
	trueJumps, falseJumps := t.cond()
	t.expectOr(TokenRParen, ErrMissingRParen)
	t.prog.PatchJumps(trueJumps, t.prog.Len())

	l := &loop{start: start}
	t.loops = append(t.loops, l)
	t.stmt()
	t.loops = t.loops[:len(t.loops)-1]

	t.emit(vm.OpJumpAbsolute, start, line)
	end := t.prog.Len()
	t.prog.PatchJumps(falseJumps, end)
	t.prog.PatchJumps(l.breaks, end)
}

// jumpStmt translates break and continue. Outside a loop the statement is
// reported and emits nothing.
func (t *Translator) jumpStmt() {
	tok := t.next()
	if len(t.loops) == 0 {
		t.report(tok.Line, ErrBreakContinueOutsideLoop, tok.Literal)
	} else {
		l := t.loops[len(t.loops)-1]
		if tok.Type == TokenBreak {
			l.breaks = append(l.breaks, t.prog.EmitJump(vm.OpJumpAbsolute, tok.Line))
		} else {
			t.emit(vm.OpJumpAbsolute, l.start, tok.Line)
		}
	}
	t.expectOr(TokenSemicolon, ErrMissingSemicolon)
}

// returnStmt translates 'return' [Exp] ';'. A bare return still counts as
// the return at the end of a function body.
func (t *Translator) returnStmt() bool {
	tok := t.next()
	if t.startsExpr() {
		if t.fn != nil && t.fn.Returns == SymbolVoid {
			t.report(tok.Line, ErrReturnTypeMismatch, t.fn.Name)
		}
		t.expr(ModeEmit)
	}
	t.emit(vm.OpReturnValue, 0, tok.Line)
	t.expectOr(TokenSemicolon, ErrMissingSemicolon)
	return true
}

// printfStmt translates 'printf' '(' FormatString {',' Exp} ')' ';'.
func (t *Translator) printfStmt() {
	tok := t.next()
	t.expect(TokenLParen, "'('")
	fmtTok := t.expect(TokenFormatString, "format string")
	if fmtTok.Format.Illegal {
		t.report(fmtTok.Line, ErrIllegalChar, fmtTok.Literal)
	}

	n := 0
	for t.curIs(TokenComma) {
		t.next()
		t.expr(ModeEmit)
		n++
	}
	if n != fmtTok.Format.Placeholders() {
		t.report(tok.Line, ErrFormatArgumentMismatch, fmtTok.Literal)
	}
	t.expectOr(TokenRParen, ErrMissingRParen)
	t.expectOr(TokenSemicolon, ErrMissingSemicolon)

	idx := t.prog.AddFormat(vm.Format{Raw: fmtTok.Literal, Segments: fmtTok.Format.Segments})
	t.emit(vm.OpCallPrintf, idx, tok.Line)
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// cond translates Cond into short-circuit jumps and emits no value. Each
// && group but the last ends with a jump to the true target when its
// last operand holds; every remaining false outcome of the final group
// jumps to the false target. Control falls through to the true target.
// The caller patches both lists.
func (t *Translator) cond() (trueJumps, falseJumps []int) {
	for {
		andJumps := t.andCond()
		if t.curIs(TokenOr) {
			line := t.next().Line
			trueJumps = append(trueJumps, t.prog.EmitJump(vm.OpPopJumpIfTrue, line))
			t.prog.PatchJumps(andJumps, t.prog.Len())
			continue
		}
		falseJumps = append(andJumps, t.prog.EmitJump(vm.OpPopJumpIfFalse, t.prevLine()))
		return trueJumps, falseJumps
	}
}

// andCond translates a chain of && operands. Every operand but the last is
// followed by a jump taken when it is false; the last operand's value is
// left on the stack. It returns those jumps.
func (t *Translator) andCond() []int {
	var falseJumps []int
	for {
		t.equality(ModeEmit)
		if !t.curIs(TokenAnd) {
			return falseJumps
		}
		line := t.next().Line
		falseJumps = append(falseJumps, t.prog.EmitJump(vm.OpPopJumpIfFalse, line))
	}
}
