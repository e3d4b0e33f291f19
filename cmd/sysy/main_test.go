package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/sysy/server"
	"github.com/chazu/sysy/store"
)

const echoSum = `int main() {
  int n = getint(), s = 0;
  while (n > 0) {
    s = s + getint();
    n = n - 1;
  }
  printf("sum %d\n", s);
  return s;
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errb)
	return cliResult{code: code, stdout: out.String(), stderr: errb.String()}
}

func TestRunSource(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "sum.sy", echoSum)
	in := writeFile(t, dir, "sum.in", "3\n100 150 50\n")

	r := runCLI(t, "", "run", "-i", in, src)
	if r.stdout != "sum 300\n" {
		t.Errorf("stdout = %q, want %q (stderr %q)", r.stdout, "sum 300\n", r.stderr)
	}
	if r.code != 300&0xff {
		t.Errorf("exit code = %d, want %d", r.code, 300&0xff)
	}
}

func TestRunReadsStdin(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "sum.sy", echoSum)

	r := runCLI(t, "2 4 5", "run", src)
	if r.stdout != "sum 9\n" || r.code != 9 {
		t.Errorf("run = %+v, want sum 9 and exit 9", r)
	}
}

func TestBuildThenRunImage(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "sum.sy", echoSum)

	if r := runCLI(t, "", "build", src); r.code != 0 {
		t.Fatalf("build failed: %+v", r)
	}
	image := filepath.Join(dir, "sum.syc")
	if _, err := os.Stat(image); err != nil {
		t.Fatalf("image not written: %v", err)
	}

	r := runCLI(t, "1 7", "run", image)
	if r.stdout != "sum 7\n" || r.code != 7 {
		t.Errorf("run image = %+v", r)
	}

	custom := filepath.Join(dir, "out", "x.syc")
	os.MkdirAll(filepath.Dir(custom), 0755)
	if r := runCLI(t, "", "build", "-o", custom, src); r.code != 0 {
		t.Fatalf("build -o failed: %+v", r)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Errorf("custom image not written: %v", err)
	}
}

func TestCheckPrintsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.sy", "int main() {\n  int a\n  return b;\n}")

	r := runCLI(t, "", "check", src)
	if r.code != 1 {
		t.Errorf("exit code = %d, want 1", r.code)
	}
	if r.stdout != "2 i\n3 c\n" {
		t.Errorf("stdout = %q, want %q", r.stdout, "2 i\n3 c\n")
	}

	clean := writeFile(t, dir, "ok.sy", "int main() {\n  return 0;\n}")
	if r := runCLI(t, "", "check", clean); r.code != 0 || r.stdout != "" {
		t.Errorf("check clean = %+v", r)
	}
}

func TestRunReportsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.sy", "int main() {\n  return b;\n}")

	r := runCLI(t, "", "run", src)
	if r.code != 1 || r.stderr != "2 c\n" {
		t.Errorf("run = %+v, want exit 1 and diagnostics on stderr", r)
	}
}

func TestRunRuntimeError(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "div.sy", "int main() {\n  return 1 / getint();\n}")

	r := runCLI(t, "0", "run", src)
	if r.code != 1 {
		t.Errorf("exit code = %d, want 1", r.code)
	}
	if !strings.Contains(r.stderr, "division by zero") || !strings.Contains(r.stderr, "line 2") {
		t.Errorf("stderr = %q", r.stderr)
	}
}

func TestRunStepLimit(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "loop.sy", "int main() {\n  while (1) {}\n  return 0;\n}")

	r := runCLI(t, "", "run", "-max-steps", "500", src)
	if r.code != 1 || !strings.Contains(r.stderr, "step limit") {
		t.Errorf("run = %+v, want step limit failure", r)
	}
}

func TestRunTrace(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "t.sy", "int main() {\n  return 3;\n}")

	r := runCLI(t, "", "run", "-trace", src)
	if r.code != 3 {
		t.Errorf("exit code = %d, want 3", r.code)
	}
	if !strings.Contains(r.stderr, "RETURN_VALUE") {
		t.Errorf("trace missing RETURN_VALUE:\n%s", r.stderr)
	}
	if r.stdout != "" {
		t.Errorf("trace leaked to stdout: %q", r.stdout)
	}
}

func TestRunUsesCache(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "sum.sy", echoSum)
	db := filepath.Join(dir, ".sysy", "cache.db")

	for i := 0; i < 2; i++ {
		if r := runCLI(t, "1 5", "run", "-cache", db, src); r.code != 5 {
			t.Fatalf("run %d = %+v", i, r)
		}
	}

	st, err := store.Open(db)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	runs, err := st.Runs(store.Hash(echoSum), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("recorded %d runs, want 2", len(runs))
	}
	if _, err := st.Image(store.Hash(echoSum)); err != nil {
		t.Errorf("image not cached: %v", err)
	}
}

func TestDisasm(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "sum.sy", echoSum)

	r := runCLI(t, "", "disasm", src)
	if r.code != 0 {
		t.Fatalf("disasm failed: %+v", r)
	}
	for _, want := range []string{"sum.sy", "CALL_GETINT", "POP_JUMP_IF_FALSE", "JUMP_ABSOLUTE"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("listing missing %q", want)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	if r := runCLI(t, ""); r.code != 2 {
		t.Errorf("no command: code = %d, want 2", r.code)
	}
	if r := runCLI(t, "", "frobnicate"); r.code != 2 || !strings.Contains(r.stderr, "unknown command") {
		t.Errorf("unknown command = %+v", r)
	}
	if r := runCLI(t, "", "run", "a.sy", "b.sy"); r.code != 1 {
		t.Errorf("two files: code = %d, want 1", r.code)
	}
	if r := runCLI(t, "", "run", "-no-such-flag"); r.code != 2 {
		t.Errorf("bad flag: code = %d, want 2", r.code)
	}
}

func TestRemoteRun(t *testing.T) {
	srv := server.New()
	ts := httptest.NewServer(srv.Handler())
	defer func() {
		ts.Close()
		srv.Stop()
	}()

	dir := t.TempDir()
	src := writeFile(t, dir, "sum.sy", echoSum)
	addr := ts.Listener.Addr().String()

	r := runCLI(t, "2 20 22", "remote", "-addr", addr, src)
	if r.stdout != "sum 42\n" || r.code != 42 {
		t.Errorf("remote run = %+v", r)
	}

	bad := writeFile(t, dir, "bad.sy", "int main() {\n  return q;\n}")
	r = runCLI(t, "", "remote", "-addr", addr, bad)
	if r.code != 1 || r.stderr != "2 c\n" {
		t.Errorf("remote diagnostics = %+v", r)
	}

	r = runCLI(t, "", "remote", "-addr", addr, "-disasm", src)
	if r.code != 0 || !strings.Contains(r.stdout, "CALL_PRINTF") {
		t.Errorf("remote disasm = %+v", r)
	}
}
