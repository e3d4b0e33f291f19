package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sysy.vm")

// Frame is the activation record of one function call.
type Frame struct {
	Function int // index into Program.Functions, -1 for the root frame
	ReturnPC int

	locals map[int]Value
	stack  []Value
}

func newFrame(fn, returnPC int) *Frame {
	return &Frame{Function: fn, ReturnPC: returnPC, locals: make(map[int]Value)}
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.stack)
	if n == 0 {
		panic(ErrStackUnderflow)
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v
}

func (f *Frame) popInt() int64 {
	v := f.pop()
	if v.Kind != KindInt {
		panic(fmt.Errorf("%w: got %s", ErrNotInteger, v.Kind))
	}
	return v.Int
}

func (f *Frame) popArray() *Array {
	v := f.pop()
	if v.Kind != KindArray {
		panic(fmt.Errorf("%w: got %s", ErrNotArray, v.Kind))
	}
	return v.Array
}

// popN removes the top n values, returning them bottom first.
func (f *Frame) popN(n int) []Value {
	if n < 0 || n > len(f.stack) {
		panic(ErrStackUnderflow)
	}
	vals := make([]Value, n)
	copy(vals, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vals
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithInput sets the reader consumed by getint. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(it *Interpreter) { it.in = bufio.NewReader(r) }
}

// WithOutput sets the writer printf writes to. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(it *Interpreter) { it.out = w }
}

// WithMaxSteps bounds the number of executed instructions. Zero means no limit.
func WithMaxSteps(n int) Option {
	return func(it *Interpreter) { it.maxSteps = n }
}

// WithMaxCallDepth bounds the number of nested calls. Zero means no limit.
func WithMaxCallDepth(n int) Option {
	return func(it *Interpreter) { it.maxDepth = n }
}

// WithTrace writes one line per executed instruction to w.
func WithTrace(w io.Writer) Option {
	return func(it *Interpreter) { it.trace = w }
}

// Interpreter executes a Program. It is single-threaded; use one
// Interpreter per run.
type Interpreter struct {
	program *Program

	in       *bufio.Reader
	out      io.Writer
	trace    io.Writer
	maxSteps int
	maxDepth int

	globals map[int]Value
	frames  []*Frame
	pc      int
	steps   int
	exit    Value
}

// NewInterpreter prepares p for execution. The program's global table is
// copied so the same Program can be run any number of times.
func NewInterpreter(p *Program, opts ...Option) *Interpreter {
	it := &Interpreter{
		program: p,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(it)
	}
	it.reset()
	return it
}

func (it *Interpreter) reset() {
	it.globals = make(map[int]Value, len(it.program.Globals))
	for _, g := range it.program.Globals {
		v := it.program.Variables[g.Var]
		if v.IsArray() {
			a := NewArray(v.Dims)
			copy(a.Data, g.Data)
			it.globals[g.Var] = ArrayValue(a)
		} else {
			it.globals[g.Var] = IntValue(g.Value)
		}
	}
	it.frames = []*Frame{newFrame(-1, len(it.program.Code))}
	it.pc = 0
	it.steps = 0
	it.exit = Void
}

// Steps returns the number of instructions executed so far.
func (it *Interpreter) Steps() int {
	return it.steps
}

// Global returns the current value of a global variable by name.
func (it *Interpreter) Global(name string) (Value, bool) {
	for i, v := range it.program.Variables {
		if v.Name == name && v.Global {
			val, ok := it.globals[i]
			return val, ok
		}
	}
	return Void, false
}

// Run executes the program from instruction 0 until EXIT_INTERP or the end
// of the instruction vector. It returns the value main handed back, or 0
// when there is none. Output is flushed before returning, even on error.
func (it *Interpreter) Run() (exit int64, err error) {
	w := bufio.NewWriter(it.out)
	defer func() {
		if ferr := w.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok {
				rerr = fmt.Errorf("%v", r)
			}
			err = it.fault(rerr)
		}
	}()

	code := it.program.Code
	for it.pc >= 0 && it.pc < len(code) {
		if it.maxSteps > 0 && it.steps >= it.maxSteps {
			return 0, it.fault(ErrStepLimit)
		}
		it.steps++
		in := code[it.pc]
		if it.trace != nil {
			it.traceInstruction(in)
		}
		if halt := it.step(in, w); halt {
			break
		}
	}
	if it.exit.Kind == KindInt {
		exit = it.exit.Int
	}
	log.Debugf("run finished after %d steps, exit %d", it.steps, exit)
	return exit, nil
}

func (it *Interpreter) fault(err error) *RuntimeError {
	re := &RuntimeError{PC: it.pc, Err: err}
	if it.pc >= 0 && it.pc < len(it.program.Code) {
		re.Op = it.program.Code[it.pc].Op
		re.Line = it.program.Code[it.pc].Line
	}
	return re
}

func (it *Interpreter) frame() *Frame {
	return it.frames[len(it.frames)-1]
}

func (it *Interpreter) load(v int) Value {
	if it.program.Variables[v].Global {
		return it.globals[v]
	}
	return it.frame().locals[v]
}

func (it *Interpreter) store(v int, val Value) {
	if val.Kind == KindArray {
		val = ArrayValue(val.Array.Clone())
	}
	if it.program.Variables[v].Global {
		it.globals[v] = val
		return
	}
	it.frame().locals[v] = val
}

// step executes one instruction and reports whether the program halted.
func (it *Interpreter) step(in Instruction, w *bufio.Writer) bool {
	f := it.frame()
	next := it.pc + 1

	switch in.Op {
	case OpNop:

	case OpLoadConst:
		f.push(IntValue(it.program.Constants[in.Operand]))

	case OpLoadName:
		f.push(it.load(in.Operand))

	case OpStoreName:
		it.store(in.Operand, f.pop())

	case OpPopTop:
		f.pop()

	case OpBuildArray:
		count := f.popInt()
		a := NewArray(it.program.Variables[in.Operand].Dims)
		if int64(len(a.Data)) != count {
			a.Data = make([]int64, count)
		}
		f.push(ArrayValue(a))

	case OpInitArray:
		vals := f.popN(in.Operand)
		a := f.popArray()
		for i, v := range vals {
			if v.Kind != KindInt {
				panic(fmt.Errorf("%w: initializer element %d", ErrNotInteger, i))
			}
			if pos := a.Offset + i; pos < len(a.Data) {
				a.Data[pos] = v.Int
			}
		}
		f.push(ArrayValue(a))

	case OpSubscrArray:
		idx := f.popInt()
		a := f.popArray()
		v, err := a.Index(idx)
		if err != nil {
			panic(err)
		}
		f.push(v)

	case OpStoreSubscr:
		val := f.popInt()
		idx := f.popInt()
		a := f.popArray()
		if err := a.Store(idx, val); err != nil {
			panic(err)
		}

	case OpCallPrintf:
		format := it.program.Formats[in.Operand]
		args := f.popN(format.Placeholders())
		for i, seg := range format.Segments {
			w.WriteString(seg)
			if i < len(args) {
				if args[i].Kind != KindInt {
					panic(fmt.Errorf("%w: printf argument %d", ErrNotInteger, i+1))
				}
				fmt.Fprint(w, args[i].Int)
			}
		}

	case OpCallGetint:
		// Flush so interactive prompts appear before blocking on input.
		w.Flush()
		var n int64
		if _, err := fmt.Fscan(it.in, &n); err != nil {
			panic(fmt.Errorf("%w: %v", ErrInput, err))
		}
		f.push(IntValue(wrap(n)))

	case OpExitInterp:
		if len(f.stack) > 0 {
			it.exit = f.pop()
		}
		return true

	case OpJumpAbsolute:
		next = in.Operand

	case OpPopJumpIfFalse:
		if f.popInt() == 0 {
			next = in.Operand
		}

	case OpPopJumpIfTrue:
		if f.popInt() != 0 {
			next = in.Operand
		}

	case OpCallFunction:
		next = it.call(in.Operand, next)

	case OpReturnValue:
		ret := Void
		if len(f.stack) > 0 {
			ret = f.pop()
		}
		if len(it.frames) == 1 {
			it.exit = ret
			return true
		}
		if it.trace != nil {
			log.Debugf("pop frame %s at depth %d", it.program.Functions[f.Function].Name, len(it.frames))
		}
		it.frames = it.frames[:len(it.frames)-1]
		it.frame().push(ret)
		next = f.ReturnPC

	case OpUnaryOp:
		r, err := UnaryOp(in.Operand).Apply(f.popInt())
		if err != nil {
			panic(err)
		}
		f.push(IntValue(r))

	case OpBinaryOp:
		y := f.popInt()
		x := f.popInt()
		r, err := BinaryOp(in.Operand).Apply(x, y)
		if err != nil {
			panic(err)
		}
		f.push(IntValue(r))

	default:
		panic(fmt.Errorf("%w: unknown opcode %d", ErrBadOperand, uint8(in.Op)))
	}

	it.pc = next
	return false
}

// call binds the arguments on the caller's stack to a fresh frame and
// returns the callee's entry point. Scalars are copied; arrays are passed
// as views over the caller's buffer, reshaped to the formal's dimensions.
func (it *Interpreter) call(fn int, returnPC int) int {
	if fn < 0 || fn >= len(it.program.Functions) {
		panic(fmt.Errorf("%w: function %d", ErrBadOperand, fn))
	}
	if it.maxDepth > 0 && len(it.frames) > it.maxDepth {
		panic(ErrCallDepth)
	}
	callee := it.program.Functions[fn]
	caller := it.frame()
	args := caller.popN(len(callee.Params))

	fr := newFrame(fn, returnPC)
	for i, slot := range callee.Params {
		formal := it.program.Variables[slot]
		arg := args[i]
		switch {
		case formal.IsArray():
			if arg.Kind != KindArray {
				panic(fmt.Errorf("%w: argument %d of %s", ErrNotArray, i+1, callee.Name))
			}
			fr.locals[slot] = ArrayValue(arg.Array.Reshape(formal.Dims))
		case arg.Kind == KindInt:
			fr.locals[slot] = arg
		default:
			panic(fmt.Errorf("%w: argument %d of %s", ErrNotInteger, i+1, callee.Name))
		}
	}
	it.frames = append(it.frames, fr)
	if it.trace != nil {
		log.Debugf("push frame %s at depth %d", callee.Name, len(it.frames))
	}
	return callee.Entry
}

func (it *Interpreter) traceInstruction(in Instruction) {
	f := it.frame()
	var sb strings.Builder
	for i, v := range f.stack {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.String())
	}
	fmt.Fprintf(it.trace, "%04d  %-32s [%s]\n", it.pc, it.program.formatInstruction(in), sb.String())
}
