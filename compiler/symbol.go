package compiler

import (
	"fmt"
	"strings"
)

// SymbolKind tags the shape of a symbol or expression result.
type SymbolKind int

const (
	SymbolVoid SymbolKind = iota
	SymbolInt
	SymbolArray
	SymbolFunc
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolVoid:
		return "void"
	case SymbolInt:
		return "int"
	case SymbolArray:
		return "array"
	case SymbolFunc:
		return "function"
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// Symbol is a declared name or the shape of a translated expression.
//
// Declared scalars and arrays own a program variable (Slot). Constants and
// globals read at global scope carry their folded value: Value for scalars,
// Data for arrays. An array expression is a view of a declared array with
// Deref leading dimensions indexed away; when the array is foldable the view
// shares Data and Offset locates its first element.
type Symbol struct {
	Kind   SymbolKind
	Name   string
	Line   int
	Const  bool
	Global bool
	Slot   int

	// Scalars
	Value int64
	Known bool

	// Arrays
	Dims   []int64
	Data   []int64
	Offset int64
	Deref  int

	// Functions
	Returns SymbolKind
	Params  []*Symbol
	Index   int
}

// voidSymbol is the placeholder for undefined names and void results.
func voidSymbol() *Symbol {
	return &Symbol{Kind: SymbolVoid, Slot: -1}
}

// intResult is the shape of an integer expression.
func intResult(v int64, known bool) *Symbol {
	return &Symbol{Kind: SymbolInt, Value: v, Known: known, Slot: -1}
}

// Rank returns the number of unindexed dimensions, 0 for scalars.
func (s *Symbol) Rank() int {
	if s.Kind != SymbolArray {
		return 0
	}
	return len(s.Dims) - s.Deref
}

// Size returns the element count covered by the symbol's unindexed
// dimensions.
func (s *Symbol) Size() int64 {
	return product(s.Dims[s.Deref:])
}

// Stride returns the element count of one step in the leading unindexed
// dimension.
func (s *Symbol) Stride() int64 {
	if s.Deref+1 > len(s.Dims) {
		return 1
	}
	return product(s.Dims[s.Deref+1:])
}

// index returns the view one dimension further in. Data is shared.
func (s *Symbol) index(i int64) *Symbol {
	return &Symbol{
		Kind:   SymbolArray,
		Name:   s.Name,
		Line:   s.Line,
		Const:  s.Const,
		Global: s.Global,
		Slot:   s.Slot,
		Dims:   s.Dims,
		Data:   s.Data,
		Offset: s.Offset + i*s.Stride(),
		Deref:  s.Deref + 1,
	}
}

// Signature renders a function symbol as "int f(int, int[][3])".
func (s *Symbol) Signature() string {
	var sb strings.Builder
	sb.WriteString(s.Returns.String())
	sb.WriteByte(' ')
	sb.WriteString(s.Name)
	sb.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.TypeString())
	}
	sb.WriteByte(')')
	return sb.String()
}

// TypeString renders the declared type, e.g. "const int[2][3]".
func (s *Symbol) TypeString() string {
	if s.Kind == SymbolFunc {
		return s.Signature()
	}
	if s.Kind == SymbolVoid {
		return "void"
	}
	var sb strings.Builder
	if s.Const {
		sb.WriteString("const ")
	}
	sb.WriteString("int")
	for i, d := range s.Dims[s.Deref:] {
		if i == 0 && d == 0 && s.Deref == 0 {
			sb.WriteString("[]")
			continue
		}
		fmt.Fprintf(&sb, "[%d]", d)
	}
	return sb.String()
}

func product(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}
