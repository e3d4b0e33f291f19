package vm

import (
	"errors"
	"fmt"
)

var (
	ErrDivisionByZero  = errors.New("division by zero")
	ErrIndexOutOfRange = errors.New("array index out of range")
	ErrNotInteger      = errors.New("operand is not an integer")
	ErrNotArray        = errors.New("operand is not an array")
	ErrStackUnderflow  = errors.New("operand stack underflow")
	ErrBadOperand      = errors.New("bad instruction operand")
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrCallDepth       = errors.New("call depth limit exceeded")
	ErrInput           = errors.New("cannot read integer input")
)

// RuntimeError reports a failure while executing an instruction.
type RuntimeError struct {
	PC   int
	Op   Opcode
	Line int
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("runtime error at %04d %s (line %d): %v", e.PC, e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("runtime error at %04d %s: %v", e.PC, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// VerifyError reports a malformed program.
type VerifyError struct {
	PC  int
	Msg string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("invalid instruction %04d: %s", e.PC, e.Msg)
}
