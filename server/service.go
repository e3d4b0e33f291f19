package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/sysy/compiler"
	"github.com/chazu/sysy/store"
	"github.com/chazu/sysy/vm"
)

// Procedure names served by CompilerService.
const (
	CompilerServiceName    = "sysy.v1.CompilerService"
	CompileProcedure       = "/" + CompilerServiceName + "/Compile"
	RunProcedure           = "/" + CompilerServiceName + "/Run"
	DisassembleProcedure   = "/" + CompilerServiceName + "/Disassemble"
	defaultServerMaxSteps  = 50_000_000
	defaultServerCallDepth = 10_000
)

// CompilerService implements the Compile, Run and Disassemble procedures.
// Requests and responses are google.protobuf.Struct messages so the
// service works over the Connect JSON protocol and plain gRPC alike.
type CompilerService struct {
	worker       *Worker
	store        *store.Store
	maxSteps     int
	maxCallDepth int
}

// NewCompilerService creates a CompilerService. st may be nil, in which
// case nothing is cached or recorded.
func NewCompilerService(worker *Worker, st *store.Store) *CompilerService {
	return &CompilerService{
		worker:       worker,
		store:        st,
		maxSteps:     defaultServerMaxSteps,
		maxCallDepth: defaultServerCallDepth,
	}
}

// compilation is the outcome of translating one source text.
type compilation struct {
	program     *vm.Program
	diagnostics []compiler.Diagnostic
	syntax      error
	hash        string
	cached      bool
}

func (c *compilation) fields() map[string]any {
	diags := make([]any, 0, len(c.diagnostics))
	for _, d := range c.diagnostics {
		diags = append(diags, map[string]any{
			"line":    d.Line,
			"code":    string(d.Kind.Code()),
			"message": d.Message(),
		})
	}
	f := map[string]any{
		"ok":          c.program != nil,
		"hash":        c.hash,
		"cached":      c.cached,
		"diagnostics": diags,
	}
	if c.syntax != nil {
		f["error"] = c.syntax.Error()
	}
	return f
}

// compile runs on the worker goroutine.
func (s *CompilerService) compile(source string) (*compilation, error) {
	c := &compilation{hash: store.Hash(source)}
	translate := func(src string) (*vm.Program, error) {
		res, err := compiler.Compile(src)
		if err != nil {
			return nil, err
		}
		c.diagnostics = res.Diagnostics
		if !res.OK() {
			return nil, nil
		}
		return res.Program, nil
	}

	var err error
	if s.store != nil {
		c.program, c.cached, err = s.store.Compiled(source, translate)
	} else {
		c.program, err = translate(source)
	}

	var serr *compiler.SyntaxError
	if errors.As(err, &serr) {
		c.syntax = serr
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Compile translates the "source" field and reports its diagnostics.
func (s *CompilerService) Compile(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source, err := requiredString(req.Msg, "source")
	if err != nil {
		return nil, err
	}

	c, err := s.doCompile(source)
	if err != nil {
		return nil, err
	}
	return respond(c.fields())
}

// Disassemble translates the "source" field and returns the listing of
// the resulting program in "listing".
func (s *CompilerService) Disassemble(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source, err := requiredString(req.Msg, "source")
	if err != nil {
		return nil, err
	}
	name := stringField(req.Msg, "name")

	c, err := s.doCompile(source)
	if err != nil {
		return nil, err
	}
	fields := c.fields()
	if c.program != nil {
		fields["listing"] = c.program.DisassembleWithName(name)
	}
	return respond(fields)
}

// Run translates the "source" field and executes it with "input" as
// standard input. The response carries "exit", "output", "steps" and
// "runId"; a runtime failure is reported in "error".
func (s *CompilerService) Run(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source, err := requiredString(req.Msg, "source")
	if err != nil {
		return nil, err
	}
	input := stringField(req.Msg, "input")

	v, err := s.worker.Do(func() (any, error) {
		c, err := s.compile(source)
		if err != nil {
			return nil, err
		}
		fields := c.fields()
		if c.program == nil {
			return fields, nil
		}
		if err := s.execute(c, input, fields); err != nil {
			return nil, err
		}
		return fields, nil
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(v.(map[string]any))
}

// execute runs a compiled program and fills in the run fields.
func (s *CompilerService) execute(c *compilation, input string, fields map[string]any) error {
	var out bytes.Buffer
	it := vm.NewInterpreter(c.program,
		vm.WithInput(strings.NewReader(input)),
		vm.WithOutput(&out),
		vm.WithMaxSteps(s.maxSteps),
		vm.WithMaxCallDepth(s.maxCallDepth),
	)

	started := time.Now()
	exit, runErr := it.Run()
	run := &store.Run{
		Hash:     c.hash,
		Exit:     exit,
		Output:   out.String(),
		Steps:    it.Steps(),
		Started:  started,
		Duration: time.Since(started),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if s.store != nil {
		if err := s.store.RecordRun(run); err != nil {
			return err
		}
	} else {
		run.ID = uuid.New().String()
	}
	log.Infof("run %s: exit %d after %d steps", run.ID, run.Exit, run.Steps)
	if errors.Is(runErr, vm.ErrStepLimit) || errors.Is(runErr, vm.ErrCallDepth) {
		return connect.NewError(connect.CodeResourceExhausted, runErr)
	}

	fields["runId"] = run.ID
	fields["exit"] = run.Exit
	fields["output"] = run.Output
	fields["steps"] = run.Steps
	if runErr != nil {
		fields["ok"] = false
		fields["error"] = run.Error
	}
	return nil
}

func (s *CompilerService) doCompile(source string) (*compilation, error) {
	v, err := s.worker.Do(func() (any, error) {
		return s.compile(source)
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return v.(*compilation), nil
}

func requiredString(msg *structpb.Struct, key string) (string, error) {
	s := stringField(msg, key)
	if s == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s is required", key))
	}
	return s, nil
}

func stringField(msg *structpb.Struct, key string) string {
	return msg.GetFields()[key].GetStringValue()
}

func respond(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func toConnectError(err error) error {
	var cerr *connect.Error
	switch {
	case errors.As(err, &cerr):
		return cerr
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
