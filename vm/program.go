package vm

import (
	"fmt"
	"strings"
)

// Unresolved is the operand of a jump or call that has not been patched yet.
const Unresolved = -1

// Instruction is a single decoded instruction. Line is the source line that
// produced it, zero when unknown.
type Instruction struct {
	Op      Opcode `cbor:"1,keyasint"`
	Operand int    `cbor:"2,keyasint,omitempty"`
	Line    int    `cbor:"3,keyasint,omitempty"`
}

func (in Instruction) String() string {
	if GetOpcodeInfo(in.Op).Operand == OperandNone {
		return in.Op.String()
	}
	return fmt.Sprintf("%s %d", in.Op, in.Operand)
}

// Variable describes a named storage slot referenced by LOAD_NAME,
// STORE_NAME and BUILD_ARRAY.
type Variable struct {
	Name   string  `cbor:"1,keyasint"`
	Line   int     `cbor:"2,keyasint"`
	Global bool    `cbor:"3,keyasint,omitempty"` // lives in the global object table
	Const  bool    `cbor:"4,keyasint,omitempty"`
	Dims   []int64 `cbor:"5,keyasint,omitempty"` // nil for scalars; 0 leading dim for array parameters
}

// IsArray reports whether the variable holds an array.
func (v Variable) IsArray() bool { return len(v.Dims) > 0 }

// Function describes a callable function body.
type Function struct {
	Name   string `cbor:"1,keyasint"`
	Line   int    `cbor:"2,keyasint"`
	Void   bool   `cbor:"3,keyasint,omitempty"`
	Params []int  `cbor:"4,keyasint,omitempty"` // variable indices of the formals
	Entry  int    `cbor:"5,keyasint"`
}

// Format is a decoded printf format string split at each %d.
type Format struct {
	Raw      string   `cbor:"1,keyasint"`
	Segments []string `cbor:"2,keyasint"`
}

// Placeholders returns the number of %d conversions.
func (f Format) Placeholders() int {
	if len(f.Segments) == 0 {
		return 0
	}
	return len(f.Segments) - 1
}

// Global is the initial value of a variable in the global object table.
// Scalars use Value, arrays use Data.
type Global struct {
	Var   int     `cbor:"1,keyasint"`
	Value int64   `cbor:"2,keyasint,omitempty"`
	Data  []int64 `cbor:"3,keyasint,omitempty"`
}

// Program is a translated compilation unit: the instruction vector plus the
// tables its operands index into.
type Program struct {
	Code      []Instruction `cbor:"1,keyasint"`
	Constants []int64       `cbor:"2,keyasint,omitempty"`
	Formats   []Format      `cbor:"3,keyasint,omitempty"`
	Variables []Variable    `cbor:"4,keyasint,omitempty"`
	Functions []Function    `cbor:"5,keyasint,omitempty"`
	Globals   []Global      `cbor:"6,keyasint,omitempty"`

	constIndex map[int64]int
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{constIndex: make(map[int64]int)}
}

// Len returns the index the next emitted instruction will occupy.
func (p *Program) Len() int {
	return len(p.Code)
}

// Emit appends an instruction and returns its index.
func (p *Program) Emit(op Opcode, operand int, line int) int {
	p.Code = append(p.Code, Instruction{Op: op, Operand: operand, Line: line})
	return len(p.Code) - 1
}

// EmitJump appends a jump with an unresolved target and returns its index
// for later patching.
func (p *Program) EmitJump(op Opcode, line int) int {
	return p.Emit(op, Unresolved, line)
}

// PatchJump sets the operand of the instruction at index at.
func (p *Program) PatchJump(at, target int) {
	p.Code[at].Operand = target
}

// PatchJumps resolves every jump in list to target.
func (p *Program) PatchJumps(list []int, target int) {
	for _, at := range list {
		p.Code[at].Operand = target
	}
}

// AddConstant interns an integer constant and returns its index.
func (p *Program) AddConstant(v int64) int {
	if p.constIndex == nil {
		p.constIndex = make(map[int64]int, len(p.Constants))
		for i, c := range p.Constants {
			if _, ok := p.constIndex[c]; !ok {
				p.constIndex[c] = i
			}
		}
	}
	if idx, ok := p.constIndex[v]; ok {
		return idx
	}
	idx := len(p.Constants)
	p.Constants = append(p.Constants, v)
	p.constIndex[v] = idx
	return idx
}

// AddVariable registers a variable and returns its index.
func (p *Program) AddVariable(v Variable) int {
	p.Variables = append(p.Variables, v)
	return len(p.Variables) - 1
}

// AddFunction registers a function and returns its index.
func (p *Program) AddFunction(f Function) int {
	p.Functions = append(p.Functions, f)
	return len(p.Functions) - 1
}

// AddFormat registers a format string and returns its index.
func (p *Program) AddFormat(f Format) int {
	p.Formats = append(p.Formats, f)
	return len(p.Formats) - 1
}

// SetGlobal records the initial value of a global variable.
func (p *Program) SetGlobal(g Global) {
	p.Globals = append(p.Globals, g)
}

// FunctionByName returns the index of the named function, or -1.
func (p *Program) FunctionByName(name string) int {
	for i, f := range p.Functions {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Verify checks that every operand refers to a valid table entry or
// instruction index. A translated program without diagnostics always
// verifies; images read from disk may not.
func (p *Program) Verify() error {
	n := len(p.Code)
	for pc, in := range p.Code {
		if !in.Op.Valid() {
			return &VerifyError{PC: pc, Msg: fmt.Sprintf("unknown opcode %d", uint8(in.Op))}
		}
		var limit int
		switch GetOpcodeInfo(in.Op).Operand {
		case OperandNone:
			continue
		case OperandConstant:
			limit = len(p.Constants)
		case OperandVariable:
			limit = len(p.Variables)
		case OperandFormat:
			limit = len(p.Formats)
		case OperandTarget:
			limit = n
		case OperandFunction:
			limit = len(p.Functions)
		case OperandUnary:
			limit = len(unaryNames)
		case OperandBinary:
			limit = len(binaryNames)
		case OperandCount:
			limit = int(^uint(0) >> 1)
		}
		if in.Operand == Unresolved && (in.Op.IsJump() || in.Op == OpCallFunction) {
			return &VerifyError{PC: pc, Msg: fmt.Sprintf("%s left unresolved", in.Op)}
		}
		if in.Operand < 0 || in.Operand >= limit {
			return &VerifyError{PC: pc, Msg: fmt.Sprintf("%s operand %d out of range", in.Op, in.Operand)}
		}
		if in.Op == OpBuildArray && !p.Variables[in.Operand].IsArray() {
			return &VerifyError{PC: pc, Msg: fmt.Sprintf("BUILD_ARRAY on scalar %s", p.Variables[in.Operand].Name)}
		}
	}
	for i, f := range p.Functions {
		if f.Entry < 0 || f.Entry >= n {
			return &VerifyError{PC: f.Entry, Msg: fmt.Sprintf("function %s entry out of range", f.Name)}
		}
		for _, v := range f.Params {
			if v < 0 || v >= len(p.Variables) {
				return &VerifyError{PC: f.Entry, Msg: fmt.Sprintf("function %d parameter %d out of range", i, v)}
			}
		}
	}
	for _, g := range p.Globals {
		if g.Var < 0 || g.Var >= len(p.Variables) {
			return &VerifyError{PC: -1, Msg: fmt.Sprintf("global %d out of range", g.Var)}
		}
	}
	return nil
}

// describeVariable renders a variable for listings, e.g. "a (int[2][3] global, line 4)".
func (p *Program) describeVariable(idx int) string {
	if idx < 0 || idx >= len(p.Variables) {
		return "?"
	}
	v := p.Variables[idx]
	var sb strings.Builder
	sb.WriteString(v.Name)
	sb.WriteString(" (")
	if v.Const {
		sb.WriteString("const ")
	}
	sb.WriteString("int")
	for i, d := range v.Dims {
		if i == 0 && d == 0 {
			sb.WriteString("[]")
			continue
		}
		fmt.Fprintf(&sb, "[%d]", d)
	}
	if v.Global {
		sb.WriteString(" global")
	} else {
		sb.WriteString(" local")
	}
	fmt.Fprintf(&sb, ", line %d)", v.Line)
	return sb.String()
}
