package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/sysy/server"
)

// handleServe processes the `sysy serve` subcommand.
func (e *env) handleServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	addr := fs.String("addr", e.m.Server.Address, "Listen address (host:port)")
	maxSteps := fs.Int("max-steps", e.m.Run.MaxSteps, "Instruction limit per run (0 = server default)")
	cachePath := fs.String("cache", "", "Compile cache database")
	noCache := fs.Bool("no-cache", false, "Do not cache images or record runs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := []server.Option{server.WithMaxCallDepth(e.m.Run.MaxCallDepth)}
	if *maxSteps > 0 {
		opts = append(opts, server.WithMaxSteps(*maxSteps))
	}
	if st := e.openCache(*cachePath, *noCache); st != nil {
		defer st.Close()
		opts = append(opts, server.WithStore(st))
	}

	srv := server.New(opts...)
	defer srv.Stop()
	if err := srv.ListenAndServe(*addr); err != nil {
		return e.fail("server: %v", err)
	}
	return 0
}

// handleLSP processes the `sysy lsp` subcommand.
func (e *env) handleLSP(args []string) int {
	if len(args) > 0 {
		return e.fail("lsp takes no arguments")
	}
	if err := server.NewLSP().Run(); err != nil {
		return e.fail("lsp: %v", err)
	}
	return 0
}

// handleRemote processes the `sysy remote` subcommand: the source is
// compiled and run by a compiler server and the output relayed locally.
func (e *env) handleRemote(args []string) int {
	fs := flag.NewFlagSet("remote", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	addr := fs.String("addr", e.m.Server.Address, "Server address (host:port)")
	input := fs.String("i", e.m.Resolve(e.m.Run.Input), "Read program input from file (default stdin)")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	disasm := fs.Bool("disasm", false, "Print the remote listing instead of running")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path, ok := e.sourceArg(fs)
	if !ok {
		return e.fail("remote requires one source file")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return e.fail("%v", err)
	}

	var in []byte
	if !*disasm {
		if *input != "" {
			in, err = os.ReadFile(*input)
		} else {
			in, err = io.ReadAll(e.stdin)
		}
		if err != nil {
			return e.fail("read input: %v", err)
		}
	}

	c, err := server.Dial(*addr)
	if err != nil {
		return e.fail("%v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var resp *structpb.Struct
	if *disasm {
		resp, err = c.Disassemble(ctx, string(src))
	} else {
		resp, err = c.Run(ctx, string(src), string(in))
	}
	if err != nil {
		return e.fail("remote: %v", err)
	}
	return e.relay(resp)
}

// relay prints a CompilerService response the way a local run would.
func (e *env) relay(resp *structpb.Struct) int {
	fields := resp.GetFields()
	for _, d := range fields["diagnostics"].GetListValue().GetValues() {
		df := d.GetStructValue().GetFields()
		fmt.Fprintf(e.stderr, "%d %s\n", int(df["line"].GetNumberValue()), df["code"].GetStringValue())
	}
	if listing, ok := fields["listing"]; ok {
		fmt.Fprint(e.stdout, listing.GetStringValue())
	}
	fmt.Fprint(e.stdout, fields["output"].GetStringValue())
	if msg := fields["error"].GetStringValue(); msg != "" {
		return e.fail("%s", msg)
	}
	if !fields["ok"].GetBoolValue() {
		return 1
	}
	return int(int64(fields["exit"].GetNumberValue()) & 0xff)
}
