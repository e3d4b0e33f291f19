// sysy - compile SysY programs to stack-machine bytecode and run them
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/sysy/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("sysy.cli")

// env carries the process streams and project configuration into the
// subcommand handlers.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	m      *manifest.Manifest
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: sysy [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run [file.sy|file.syc]   Compile (if needed) and run a program\n")
	fmt.Fprintf(w, "  build [-o out.syc] file  Compile a program to a bytecode image\n")
	fmt.Fprintf(w, "  disasm file              Print the bytecode listing\n")
	fmt.Fprintf(w, "  check file               Print diagnostics as \"line code\" pairs\n")
	fmt.Fprintf(w, "  serve [-addr host:port]  Start the compiler server (Connect + gRPC)\n")
	fmt.Fprintf(w, "  lsp                      Start the language server on stdio\n")
	fmt.Fprintf(w, "  remote -addr host:port   Run a program on a remote compiler server\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nWithout a file argument, run/build/disasm/check use [source] entry from sysy.toml.\n")
}

// run dispatches a command line and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sysy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbosity := fs.Int("v", -1, "Log verbosity 0-5 (overrides [log] verbosity)")
	logFile := fs.String("log", "", "Log file (overrides [log] file; default stderr)")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default()
	}
	configureLogging(m, *verbosity, *logFile)

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	e := &env{stdin: stdin, stdout: stdout, stderr: stderr, m: m}
	switch rest[0] {
	case "run":
		return e.handleRun(rest[1:])
	case "build":
		return e.handleBuild(rest[1:])
	case "disasm":
		return e.handleDisasm(rest[1:])
	case "check":
		return e.handleCheck(rest[1:])
	case "serve":
		return e.handleServe(rest[1:])
	case "lsp":
		return e.handleLSP(rest[1:])
	case "remote":
		return e.handleRemote(rest[1:])
	case "help":
		usage(stdout, fs)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", rest[0])
		fs.Usage()
		return 2
	}
}

// configureLogging applies the manifest [log] section, letting flags win.
func configureLogging(m *manifest.Manifest, verbosity int, file string) {
	if verbosity < 0 {
		verbosity = m.Log.Verbosity
	}
	if file == "" {
		file = m.Resolve(m.Log.File)
	}
	var path *string
	if file != "" {
		path = &file
	}
	commonlog.Configure(verbosity, path)
}

func (e *env) fail(format string, args ...any) int {
	fmt.Fprintf(e.stderr, "Error: "+format+"\n", args...)
	return 1
}

// sourceArg returns the single file argument, or the manifest entry.
func (e *env) sourceArg(fs *flag.FlagSet) (string, bool) {
	switch fs.NArg() {
	case 0:
		if e.m.Dir == "" {
			return "", false
		}
		return e.m.EntryPath(), true
	case 1:
		return fs.Arg(0), true
	default:
		return "", false
	}
}
