package compiler

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// ErrorKind classifies a recoverable semantic or syntax error. Each kind
// has a one-letter code used in the line-oriented error report.
type ErrorKind int

const (
	ErrIllegalChar              ErrorKind = iota // a: bad character in a format string
	ErrIdentRedefined                            // b
	ErrIdentUndefined                            // c
	ErrParamAmountMismatch                       // d
	ErrParamTypeMismatch                         // e
	ErrReturnTypeMismatch                        // f: void function returns a value
	ErrMissingReturn                             // g
	ErrCannotModifyConst                         // h
	ErrMissingSemicolon                          // i
	ErrMissingRParen                             // j
	ErrMissingRBracket                           // k
	ErrFormatArgumentMismatch                    // l
	ErrBreakContinueOutsideLoop                  // m
	ErrNonConstantInitializer                    // n
)

var errorKindNames = [...]string{
	"ILLEGAL_CHAR",
	"IDENT_REDEFINED",
	"IDENT_UNDEFINED",
	"PARAM_AMOUNT_MISMATCH",
	"PARAM_TYPE_MISMATCH",
	"RETURN_TYPE_MISMATCH",
	"MISSING_RETURN",
	"CANNOT_MODIFY_CONST",
	"MISSING_SEMICN",
	"MISSING_RPAREN",
	"MISSING_RBRACK",
	"FORMAT_STRING_ARGUMENT_MISMATCH",
	"BREAK_CONTINUE_NOT_IN_LOOP",
	"NON_CONSTANT_INITIALIZER",
}

var errorKindMessages = [...]string{
	"illegal character in format string",
	"identifier redefined",
	"undefined identifier",
	"wrong number of arguments",
	"argument type mismatch",
	"void function returns a value",
	"missing return at end of function",
	"cannot assign to constant",
	"missing ';'",
	"missing ')'",
	"missing ']'",
	"format string does not match argument count",
	"break or continue outside loop",
	"initializer is not constant",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindNames[k]
}

// Code returns the one-letter code of the kind, 'a' for ErrIllegalChar.
func (k ErrorKind) Code() byte {
	return 'a' + byte(k)
}

// Message returns a short human-readable description.
func (k ErrorKind) Message() string {
	if k < 0 || int(k) >= len(errorKindMessages) {
		return k.String()
	}
	return errorKindMessages[k]
}

// Diagnostic is one recoverable error found during translation.
type Diagnostic struct {
	Line   int
	Kind   ErrorKind
	Detail string // offending identifier or token, may be empty
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d %c", d.Line, d.Kind.Code())
}

// Message returns the description with its detail, for editors and logs.
func (d Diagnostic) Message() string {
	if d.Detail == "" {
		return d.Kind.Message()
	}
	return fmt.Sprintf("%s: %s", d.Kind.Message(), d.Detail)
}

// SortDiagnostics orders diagnostics by line, then by code. Diagnostics
// with equal keys keep their discovery order.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Kind < diags[j].Kind
	})
}

// WriteDiagnostics writes one "line code" pair per line.
func WriteDiagnostics(w io.Writer, diags []Diagnostic) error {
	bw := bufio.NewWriter(w)
	for _, d := range diags {
		fmt.Fprintln(bw, d.String())
	}
	return bw.Flush()
}

// SyntaxError is a structural error that stops translation.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}
