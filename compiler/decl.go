package compiler

import (
	"math"

	"github.com/chazu/sysy/vm"
)

// maxArraySize bounds the element count of a declared array.
const maxArraySize = math.MaxInt32

// decl translates ConstDecl and VarDecl.
func (t *Translator) decl() {
	isConst := false
	if t.curIs(TokenConst) {
		t.next()
		isConst = true
	}
	t.expect(TokenInt, "'int'")
	for {
		t.def(isConst)
		if !t.curIs(TokenComma) {
			break
		}
		t.next()
	}
	t.expectOr(TokenSemicolon, ErrMissingSemicolon)
}

// def translates one ConstDef or VarDef. The name is bound before its
// initializer is translated. Constants and globals are folded into the
// global object table and emit no code; locals emit their initialization.
func (t *Translator) def(isConst bool) {
	nameTok := t.expect(TokenIdent, "identifier")
	sym := &Symbol{
		Kind:   SymbolInt,
		Name:   nameTok.Literal,
		Line:   nameTok.Line,
		Const:  isConst,
		Global: t.scopes.AtGlobal(),
		Slot:   -1,
	}
	if t.curIs(TokenLBracket) {
		sym.Kind = SymbolArray
	}
	t.declare(sym)

	size := int64(1)
	for t.curIs(TokenLBracket) {
		t.next()
		d := t.constExpr()
		if d < 0 {
			t.errorf("array %s has negative dimension %d", sym.Name, d)
		}
		if d != 0 && size > maxArraySize/d {
			t.errorf("array %s exceeds %d elements", sym.Name, int64(maxArraySize))
		}
		size *= d
		sym.Dims = append(sym.Dims, d)
		t.expectOr(TokenRBracket, ErrMissingRBracket)
	}

	folded := isConst || sym.Global
	sym.Slot = t.prog.AddVariable(vm.Variable{
		Name:   sym.Name,
		Line:   sym.Line,
		Global: folded,
		Const:  isConst,
		Dims:   sym.Dims,
	})

	if folded {
		t.foldedInit(sym)
	} else {
		t.localInit(sym)
	}
}

// constExpr translates an expression that must fold to an integer. A
// non-constant expression is reported once and yields 0.
func (t *Translator) constExpr() int64 {
	line := t.cur().Line
	v := t.expr(ModeConst)
	if v.Kind != SymbolInt || !v.Known {
		t.report(line, ErrNonConstantInitializer, "")
		return 0
	}
	return v.Value
}

func (t *Translator) foldedInit(sym *Symbol) {
	if sym.Kind == SymbolArray {
		sym.Data = make([]int64, sym.Size())
		if t.curIs(TokenAssign) {
			t.next()
			t.initVal(sym.Dims, 0, 0, func(pos int64) {
				v := t.constExpr()
				if pos < int64(len(sym.Data)) {
					sym.Data[pos] = v
				}
			})
		} else if sym.Const {
			t.errorf("constant %s has no initializer", sym.Name)
		}
		sym.Known = true
		t.prog.SetGlobal(vm.Global{Var: sym.Slot, Data: sym.Data})
		return
	}

	if t.curIs(TokenAssign) {
		t.next()
		if t.curIs(TokenLBrace) {
			t.errorf("scalar %s initialized with a list", sym.Name)
		}
		sym.Value = t.constExpr()
	} else if sym.Const {
		t.errorf("constant %s has no initializer", sym.Name)
	}
	sym.Known = true
	t.prog.SetGlobal(vm.Global{Var: sym.Slot, Value: sym.Value})
}

// localInit emits the initialization of a local variable. Arrays are
// built from their element count, filled from the flattened initializer
// with gaps zeroed, then stored.
func (t *Translator) localInit(sym *Symbol) {
	line := sym.Line

	if sym.Kind == SymbolArray {
		for i, d := range sym.Dims {
			t.emitConst(d, line)
			if i > 0 {
				t.emit(vm.OpBinaryOp, int(vm.BinaryMul), line)
			}
		}
		t.emit(vm.OpBuildArray, sym.Slot, line)
		if t.curIs(TokenAssign) {
			t.next()
			var emitted int64
			t.initVal(sym.Dims, 0, 0, func(pos int64) {
				for ; emitted < pos; emitted++ {
					t.emitConst(0, line)
				}
				t.expr(ModeEmit)
				emitted++
			})
			t.emit(vm.OpInitArray, int(emitted), line)
		}
		t.emit(vm.OpStoreName, sym.Slot, line)
		return
	}

	if t.curIs(TokenAssign) {
		t.next()
		if t.curIs(TokenLBrace) {
			t.errorf("scalar %s initialized with a list", sym.Name)
		}
		t.expr(ModeEmit)
	} else {
		t.emitConst(0, line)
	}
	t.emit(vm.OpStoreName, sym.Slot, line)
}

// initVal translates one InitVal of an array shaped dims. The value covers
// the sub-array at nesting depth starting at flattened position pos. elem
// translates each scalar element and is told its position. A nested list
// starts at the next boundary of its own sub-array, and a list is padded
// to its full extent. initVal returns the position after the value.
func (t *Translator) initVal(dims []int64, depth int, pos int64, elem func(pos int64)) int64 {
	if !t.curIs(TokenLBrace) {
		elem(pos)
		return pos + 1
	}
	t.next()

	start := pos
	size := product(dims[min(depth, len(dims)):])
	inner := product(dims[min(depth+1, len(dims)):])

	if !t.curIs(TokenRBrace) {
		for {
			if t.curIs(TokenLBrace) {
				if rem := (pos - start) % max(inner, 1); rem != 0 {
					pos += inner - rem
				}
				pos = t.initVal(dims, depth+1, pos, elem)
			} else {
				elem(pos)
				pos++
			}
			if !t.curIs(TokenComma) {
				break
			}
			t.next()
		}
	}
	t.expect(TokenRBrace, "'}'")
	return start + size
}
