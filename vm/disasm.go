package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", name)
	}
	fmt.Fprintf(&sb, "; SysY bytecode v%d\n", ImageVersion)
	fmt.Fprintf(&sb, "; %d instructions, %d functions\n\n", len(p.Code), len(p.Functions))

	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range p.Constants {
			fmt.Fprintf(&sb, ";   [%3d] %d\n", i, c)
		}
		sb.WriteString("\n")
	}

	if len(p.Globals) > 0 {
		sb.WriteString("; Globals:\n")
		for _, g := range p.Globals {
			if p.Variables[g.Var].IsArray() {
				fmt.Fprintf(&sb, ";   %s = %s\n", p.describeVariable(g.Var), formatData(g.Data))
			} else {
				fmt.Fprintf(&sb, ";   %s = %d\n", p.describeVariable(g.Var), g.Value)
			}
		}
		sb.WriteString("\n")
	}

	entries := make(map[int][]int)
	for i, f := range p.Functions {
		entries[f.Entry] = append(entries[f.Entry], i)
	}

	sb.WriteString("; Code:\n")
	for pc, in := range p.Code {
		for _, fi := range entries[pc] {
			f := p.Functions[fi]
			ret := "int"
			if f.Void {
				ret = "void"
			}
			fmt.Fprintf(&sb, "\n; %s %s(%d params), line %d\n", ret, f.Name, len(f.Params), f.Line)
		}
		if in.Line > 0 {
			fmt.Fprintf(&sb, "%04d  %-40s ; line %d\n", pc, p.formatInstruction(in), in.Line)
		} else {
			fmt.Fprintf(&sb, "%04d  %s\n", pc, p.formatInstruction(in))
		}
	}

	return sb.String()
}

// formatInstruction renders one instruction with its operand resolved.
func (p *Program) formatInstruction(in Instruction) string {
	info := GetOpcodeInfo(in.Op)
	var operand string

	switch info.Operand {
	case OperandNone:
		return info.Name
	case OperandConstant:
		if in.Operand >= 0 && in.Operand < len(p.Constants) {
			operand = strconv.FormatInt(p.Constants[in.Operand], 10)
		}
	case OperandVariable:
		operand = p.describeVariable(in.Operand)
	case OperandCount:
		operand = strconv.Itoa(in.Operand)
	case OperandFormat:
		if in.Operand >= 0 && in.Operand < len(p.Formats) {
			operand = p.Formats[in.Operand].Raw
		}
	case OperandTarget:
		if in.Operand == Unresolved {
			operand = "-> ????"
		} else {
			operand = fmt.Sprintf("-> %04d", in.Operand)
		}
	case OperandFunction:
		if in.Operand >= 0 && in.Operand < len(p.Functions) {
			f := p.Functions[in.Operand]
			operand = fmt.Sprintf("%s/%d", f.Name, len(f.Params))
		}
	case OperandUnary:
		operand = UnaryOp(in.Operand).String()
	case OperandBinary:
		operand = BinaryOp(in.Operand).String()
	}

	if operand == "" {
		operand = fmt.Sprintf("<bad operand %d>", in.Operand)
	}
	return fmt.Sprintf("%-18s %s", info.Name, operand)
}

func formatData(data []int64) string {
	const limit = 16
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range data {
		if i == limit {
			fmt.Fprintf(&sb, ", ... %d more", len(data)-limit)
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	sb.WriteByte('}')
	return sb.String()
}
