package vm

import (
	"fmt"
	"strings"
)

// Kind tags a runtime value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindArray:
		return "array"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a runtime object on the operand stack or in a variable slot.
type Value struct {
	Kind  Kind
	Int   int64
	Array *Array
}

// Void is the value produced by functions that return nothing.
var Void = Value{Kind: KindVoid}

// IntValue wraps an integer.
func IntValue(n int64) Value { return Value{Kind: KindInt, Int: n} }

// ArrayValue wraps an array view.
func ArrayValue(a *Array) Value { return Value{Kind: KindArray, Array: a} }

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprint(v.Int)
	case KindArray:
		return v.Array.String()
	}
	return v.Kind.String()
}

// Array is a view into a flat row-major buffer. Deref counts the leading
// dimensions already consumed by indexing; Offset is the position of the
// view's first element in Data. Views made by indexing share Data with the
// array they came from.
type Array struct {
	Data   []int64
	Offset int
	Dims   []int64
	Deref  int
}

// NewArray allocates a zeroed array with the given shape.
func NewArray(dims []int64) *Array {
	d := append([]int64(nil), dims...)
	return &Array{Data: make([]int64, product(d)), Dims: d}
}

// Rank returns the number of dimensions not yet indexed.
func (a *Array) Rank() int {
	return len(a.Dims) - a.Deref
}

// Len returns the number of elements in the view's leading dimension.
func (a *Array) Len() int64 {
	if a.Rank() <= 0 {
		return 0
	}
	return a.Dims[a.Deref]
}

// Size returns the number of scalar elements covered by the view.
func (a *Array) Size() int64 {
	return product(a.Dims[a.Deref:])
}

func (a *Array) stride() int64 {
	return product(a.Dims[a.Deref+1:])
}

// Index returns element i of the leading dimension: an integer when the view
// has rank 1, otherwise a view of rank one less sharing the same buffer.
func (a *Array) Index(i int64) (Value, error) {
	if a.Rank() <= 0 {
		return Void, ErrNotArray
	}
	if i < 0 || i >= a.Len() {
		return Void, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, a.Len())
	}
	pos := a.Offset + int(i*a.stride())
	if a.Rank() == 1 {
		if pos >= len(a.Data) {
			return Void, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, i)
		}
		return IntValue(a.Data[pos]), nil
	}
	return ArrayValue(&Array{Data: a.Data, Offset: pos, Dims: a.Dims, Deref: a.Deref + 1}), nil
}

// Store writes element i of a rank-1 view.
func (a *Array) Store(i int64, v int64) error {
	if a.Rank() != 1 {
		return fmt.Errorf("%w: store into rank %d view", ErrNotArray, a.Rank())
	}
	if i < 0 || i >= a.Len() {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, a.Len())
	}
	pos := a.Offset + int(i)
	if pos >= len(a.Data) {
		return fmt.Errorf("%w: index %d", ErrIndexOutOfRange, i)
	}
	a.Data[pos] = v
	return nil
}

// Clone copies the elements covered by the view into a fresh array of the
// view's shape.
func (a *Array) Clone() *Array {
	dims := append([]int64(nil), a.Dims[a.Deref:]...)
	size := int(product(dims))
	data := make([]int64, size)
	if a.Offset < len(a.Data) {
		copy(data, a.Data[a.Offset:])
	}
	return &Array{Data: data, Dims: dims}
}

// Reshape returns a view of the same elements seen through the shape dims.
// A zero leading dimension is inferred from the view's size, which is how
// array parameters declared as a[][n] take the caller's extent.
func (a *Array) Reshape(dims []int64) *Array {
	d := append([]int64(nil), dims...)
	if len(d) > 0 && d[0] == 0 {
		if rest := product(d[1:]); rest > 0 {
			d[0] = a.Size() / rest
		}
	}
	return &Array{Data: a.Data, Offset: a.Offset, Dims: d}
}

// Elements returns a copy of the elements covered by the view.
func (a *Array) Elements() []int64 {
	return a.Clone().Data
}

func (a *Array) String() string {
	var sb strings.Builder
	sb.WriteString("int")
	for _, d := range a.Dims[a.Deref:] {
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
