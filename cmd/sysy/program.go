package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/sysy/compiler"
	"github.com/chazu/sysy/store"
	"github.com/chazu/sysy/vm"
)

// diagnosticsError reports a translation that produced diagnostics.
type diagnosticsError struct {
	diags []compiler.Diagnostic
}

func (e *diagnosticsError) Error() string {
	return fmt.Sprintf("%d compile errors", len(e.diags))
}

// openCache opens the compile cache. A cache is used when one is named
// explicitly or when the command runs inside a project.
func (e *env) openCache(path string, disabled bool) *store.Store {
	if disabled {
		return nil
	}
	if path == "" && e.m.Dir != "" {
		path = e.m.CachePath()
	}
	if path == "" {
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		log.Warningf("compile cache disabled: %s", err)
		return nil
	}
	return st
}

// loadProgram reads a .syc image or compiles a source file.
func loadProgram(path string, st *store.Store) (*vm.Program, string, error) {
	if strings.HasSuffix(path, ".syc") {
		p, err := vm.ReadImageFile(path)
		return p, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read source: %w", err)
	}
	source := string(data)

	var diags []compiler.Diagnostic
	translate := func(src string) (*vm.Program, error) {
		res, err := compiler.Compile(src)
		if err != nil {
			return nil, err
		}
		if !res.OK() {
			diags = res.Diagnostics
			return nil, nil
		}
		return res.Program, nil
	}

	var p *vm.Program
	if st != nil {
		var hit bool
		p, hit, err = st.Compiled(source, translate)
		if hit {
			log.Debugf("using cached image for %s", path)
		}
	} else {
		p, err = translate(source)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	if diags != nil {
		return nil, "", &diagnosticsError{diags: diags}
	}
	return p, store.Hash(source), nil
}

// reportLoadError prints a load failure; diagnostics use the
// "line code" form.
func (e *env) reportLoadError(err error) int {
	var derr *diagnosticsError
	if errors.As(err, &derr) {
		compiler.WriteDiagnostics(e.stderr, derr.diags)
		return 1
	}
	return e.fail("%v", err)
}

// handleRun processes the `sysy run` subcommand.
func (e *env) handleRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	input := fs.String("i", e.m.Resolve(e.m.Run.Input), "Read program input from file (default stdin)")
	maxSteps := fs.Int("max-steps", e.m.Run.MaxSteps, "Abort after this many instructions (0 = unlimited)")
	maxDepth := fs.Int("max-call-depth", e.m.Run.MaxCallDepth, "Abort beyond this call depth (0 = unlimited)")
	trace := fs.Bool("trace", e.m.Run.Trace, "Trace executed instructions to stderr")
	cachePath := fs.String("cache", "", "Compile cache database")
	noCache := fs.Bool("no-cache", false, "Do not use the compile cache")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path, ok := e.sourceArg(fs)
	if !ok {
		return e.fail("run requires one source or image file")
	}

	st := e.openCache(*cachePath, *noCache)
	if st != nil {
		defer st.Close()
	}
	p, hash, err := loadProgram(path, st)
	if err != nil {
		return e.reportLoadError(err)
	}

	var in io.Reader = e.stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			return e.fail("%v", err)
		}
		defer f.Close()
		in = f
	}

	opts := []vm.Option{
		vm.WithInput(in),
		vm.WithOutput(e.stdout),
		vm.WithMaxSteps(*maxSteps),
		vm.WithMaxCallDepth(*maxDepth),
	}
	if *trace {
		opts = append(opts, vm.WithTrace(e.stderr))
	}
	it := vm.NewInterpreter(p, opts...)

	started := time.Now()
	exit, runErr := it.Run()
	if st != nil && hash != "" {
		rec := &store.Run{
			Hash:     hash,
			Exit:     exit,
			Steps:    it.Steps(),
			Started:  started,
			Duration: time.Since(started),
		}
		if runErr != nil {
			rec.Error = runErr.Error()
		}
		if err := st.RecordRun(rec); err != nil {
			log.Warningf("recording run: %s", err)
		}
	}
	if runErr != nil {
		return e.fail("%v", runErr)
	}
	return int(exit & 0xff)
}

// handleBuild processes the `sysy build` subcommand.
func (e *env) handleBuild(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	output := fs.String("o", "", "Output image (default: source name with .syc)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path, ok := e.sourceArg(fs)
	if !ok {
		return e.fail("build requires one source file")
	}

	p, _, err := loadProgram(path, nil)
	if err != nil {
		return e.reportLoadError(err)
	}
	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".syc"
	}
	if err := vm.WriteImageFile(out, p); err != nil {
		return e.fail("%v", err)
	}
	log.Infof("wrote %s (%d instructions)", out, p.Len())
	return 0
}

// handleDisasm processes the `sysy disasm` subcommand.
func (e *env) handleDisasm(args []string) int {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path, ok := e.sourceArg(fs)
	if !ok {
		return e.fail("disasm requires one source or image file")
	}

	p, _, err := loadProgram(path, nil)
	if err != nil {
		return e.reportLoadError(err)
	}
	fmt.Fprint(e.stdout, p.DisassembleWithName(filepath.Base(path)))
	return 0
}

// handleCheck processes the `sysy check` subcommand. Diagnostics go to
// stdout so the listing can be compared directly.
func (e *env) handleCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path, ok := e.sourceArg(fs)
	if !ok {
		return e.fail("check requires one source file")
	}

	res, err := compiler.CompileFile(path)
	if err != nil {
		return e.fail("%v", err)
	}
	if err := compiler.WriteDiagnostics(e.stdout, res.Diagnostics); err != nil {
		return e.fail("%v", err)
	}
	if !res.OK() {
		return 1
	}
	return 0
}
