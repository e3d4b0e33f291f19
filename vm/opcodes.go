package vm

import "fmt"

// Opcode identifies a stack machine instruction. Every instruction carries
// at most one integer operand whose meaning depends on the opcode.
type Opcode uint8

const (
	OpNop Opcode = iota // No operation

	// ========================================================================
	// Names and constants
	// ========================================================================

	OpLoadConst // Push constant: LOAD_CONST <constant>
	OpLoadName  // Push variable: LOAD_NAME <variable>
	OpStoreName // Pop and store to variable, copying arrays: STORE_NAME <variable>
	OpPopTop    // Discard top of stack

	// ========================================================================
	// Arrays
	// ========================================================================

	OpBuildArray  // Pop element count, push zeroed array: BUILD_ARRAY <variable>
	OpInitArray   // Pop n values and the array below them, fill, push array: INIT_ARRAY <n>
	OpSubscrArray // Pop index and array, push element or lower-rank view
	OpStoreSubscr // Pop value, index and array view, store element

	// ========================================================================
	// Builtins
	// ========================================================================

	OpCallPrintf // Pop format arguments and print: CALL_PRINTF <format>
	OpCallGetint // Read an integer from input and push it
	OpExitInterp // Stop the interpreter

	// ========================================================================
	// Control flow
	// ========================================================================

	OpJumpAbsolute   // Jump: JUMP_ABSOLUTE <target>
	OpPopJumpIfFalse // Pop, jump if zero: POP_JUMP_IF_FALSE <target>
	OpPopJumpIfTrue  // Pop, jump if non-zero: POP_JUMP_IF_TRUE <target>
	OpCallFunction   // Bind arguments and enter function: CALL_FUNCTION <function>
	OpReturnValue    // Leave function, handing back the top of stack if any

	// ========================================================================
	// Operators
	// ========================================================================

	OpUnaryOp  // Pop one, push result: UNARY_OP <UnaryOp>
	OpBinaryOp // Pop two, push result (a op b where b is TOS): BINARY_OP <BinaryOp>
)

// OperandKind describes what an instruction operand refers to.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandConstant
	OperandVariable
	OperandCount
	OperandFormat
	OperandTarget
	OperandFunction
	OperandUnary
	OperandBinary
)

// OpcodeInfo provides metadata about each opcode for disassembly and verification.
type OpcodeInfo struct {
	Name      string      // Mnemonic
	StackPop  int         // Values popped (-1 = depends on operand)
	StackPush int         // Values pushed
	Operand   OperandKind // What the operand indexes
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:            {"NOP", 0, 0, OperandNone},
	OpLoadConst:      {"LOAD_CONST", 0, 1, OperandConstant},
	OpLoadName:       {"LOAD_NAME", 0, 1, OperandVariable},
	OpStoreName:      {"STORE_NAME", 1, 0, OperandVariable},
	OpPopTop:         {"POP_TOP", 1, 0, OperandNone},
	OpBuildArray:     {"BUILD_ARRAY", 1, 1, OperandVariable},
	OpInitArray:      {"INIT_ARRAY", -1, 1, OperandCount},
	OpSubscrArray:    {"SUBSCR_ARRAY", 2, 1, OperandNone},
	OpStoreSubscr:    {"STORE_SUBSCR", 3, 0, OperandNone},
	OpCallPrintf:     {"CALL_PRINTF", -1, 0, OperandFormat},
	OpCallGetint:     {"CALL_GETINT", 0, 1, OperandNone},
	OpExitInterp:     {"EXIT_INTERP", 0, 0, OperandNone},
	OpJumpAbsolute:   {"JUMP_ABSOLUTE", 0, 0, OperandTarget},
	OpPopJumpIfFalse: {"POP_JUMP_IF_FALSE", 1, 0, OperandTarget},
	OpPopJumpIfTrue:  {"POP_JUMP_IF_TRUE", 1, 0, OperandTarget},
	OpCallFunction:   {"CALL_FUNCTION", -1, 1, OperandFunction},
	OpReturnValue:    {"RETURN_VALUE", -1, 0, OperandNone},
	OpUnaryOp:        {"UNARY_OP", 1, 1, OperandUnary},
	OpBinaryOp:       {"BINARY_OP", 2, 1, OperandBinary},
}

// GetOpcodeInfo returns metadata for an opcode.
// Unknown opcodes get the name "UNKNOWN(n)".
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", uint8(op))}
}

func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump reports whether the operand is an instruction index.
func (op Opcode) IsJump() bool {
	return op == OpJumpAbsolute || op == OpPopJumpIfFalse || op == OpPopJumpIfTrue
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// UnaryOp selects the operation performed by UNARY_OP.
type UnaryOp int

const (
	UnaryPositive UnaryOp = iota
	UnaryNegative
	UnaryNot
)

var unaryNames = [...]string{"POSITIVE", "NEGATIVE", "NOT"}

func (u UnaryOp) String() string {
	if u < 0 || int(u) >= len(unaryNames) {
		return fmt.Sprintf("UnaryOp(%d)", int(u))
	}
	return unaryNames[u]
}

// Apply evaluates the operator on a 32-bit integer operand.
func (u UnaryOp) Apply(v int64) (int64, error) {
	switch u {
	case UnaryPositive:
		return wrap(v), nil
	case UnaryNegative:
		return wrap(-v), nil
	case UnaryNot:
		return boolInt(v == 0), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrBadOperand, u)
}

// BinaryOp selects the operation performed by BINARY_OP.
type BinaryOp int

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMod
	BinaryEq
	BinaryNe
	BinaryLt
	BinaryLe
	BinaryGt
	BinaryGe
	BinaryLogicalAnd
	BinaryLogicalOr
)

var binaryNames = [...]string{
	"ADD", "SUB", "MUL", "DIV", "MOD",
	"EQ", "NE", "LT", "LE", "GT", "GE",
	"LOGICAL_AND", "LOGICAL_OR",
}

func (b BinaryOp) String() string {
	if b < 0 || int(b) >= len(binaryNames) {
		return fmt.Sprintf("BinaryOp(%d)", int(b))
	}
	return binaryNames[b]
}

// Apply evaluates a op b with 32-bit wraparound. Division and modulo
// truncate toward zero; a zero divisor yields ErrDivisionByZero.
func (b BinaryOp) Apply(x, y int64) (int64, error) {
	switch b {
	case BinaryAdd:
		return wrap(x + y), nil
	case BinarySub:
		return wrap(x - y), nil
	case BinaryMul:
		return wrap(x * y), nil
	case BinaryDiv:
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return wrap(int64(int32(x) / int32(y))), nil
	case BinaryMod:
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return wrap(int64(int32(x) % int32(y))), nil
	case BinaryEq:
		return boolInt(x == y), nil
	case BinaryNe:
		return boolInt(x != y), nil
	case BinaryLt:
		return boolInt(x < y), nil
	case BinaryLe:
		return boolInt(x <= y), nil
	case BinaryGt:
		return boolInt(x > y), nil
	case BinaryGe:
		return boolInt(x >= y), nil
	case BinaryLogicalAnd:
		return boolInt(x != 0 && y != 0), nil
	case BinaryLogicalOr:
		return boolInt(x != 0 || y != 0), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrBadOperand, b)
}

func wrap(v int64) int64 { return int64(int32(v)) }

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
