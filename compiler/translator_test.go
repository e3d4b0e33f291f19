package compiler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/sysy/vm"
)

func compileOK(t *testing.T, src string) *Result {
	t.Helper()
	res, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK() {
		t.Fatalf("unexpected diagnostics:\n%s", renderDiagnostics(res.Diagnostics))
	}
	return res
}

func renderDiagnostics(diags []Diagnostic) string {
	var buf bytes.Buffer
	WriteDiagnostics(&buf, diags)
	return strings.TrimSpace(buf.String())
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "redefinition",
			src: `int main() {
  int a;
  int a;
  return 0;
}`,
			want: "3 b",
		},
		{
			name: "undefined",
			src: `int main() {
  b = 1;
  return c;
}`,
			want: "2 c\n3 c",
		},
		{
			name: "argument count",
			src: `int f(int x) {
  return x;
}
int main() {
  f(1, 2, 3);
  f();
  return 0;
}`,
			want: "5 d\n6 d",
		},
		{
			name: "argument shape",
			src: `int f(int a[]) { return a[0]; }
int main() {
  int b[2][3];
  int c;
  f(c);
  f(b);
  f(b[1]);
  return 0;
}`,
			want: "5 e\n6 e",
		},
		{
			name: "every mismatched argument",
			src: `int f(int a[], int b, int c[][2]) { return b; }
int main() {
  int x[2];
  return f(1, x, x);
}`,
			want: "4 e\n4 e\n4 e",
		},
		{
			name: "sorted by line across detection order",
			src: `int f(int a, int b) {
  return a + b;
}
int main() {
  f(
    zz);
  return 0;
}`,
			want: "5 d\n5 e\n6 c",
		},
		{
			name: "void returns value",
			src: `void f() {
  return 1;
}
int main() {
  f();
  return 0;
}`,
			want: "2 f",
		},
		{
			name: "missing return",
			src: `int f() {
  int a = 1;
}
int main() {
  if (1) return 0;
}`,
			want: "3 g\n6 g",
		},
		{
			name: "bare return ends an int function",
			src: `int f() {
  return;
}
int main() {
  f();
  return 0;
}`,
			want: "",
		},
		{
			name: "assign to constant",
			src: `const int N = 3;
int main() {
  N = 4;
  return 0;
}`,
			want: "3 h",
		},
		{
			name: "missing semicolon",
			src: `int main() {
  int a = 1
  a = 2;
  return a
}`,
			want: "2 i\n4 i",
		},
		{
			name: "missing semicolon before assignment",
			src: `int f() { return 1; }
int main() {
  int a;
  f()
  a = 1;
  return a;
}`,
			want: "4 i",
		},
		{
			name: "missing bracket and paren",
			src: `int main() {
  int a[3];
  a[1 = 2;
  printf("%d", a[1]
  ;
  return 0;
}`,
			want: "3 k\n4 j",
		},
		{
			name: "format strings",
			src: `int main() {
  printf("%d %d\n", 1);
  printf("bad#\n");
  return 0;
}`,
			want: "2 l\n3 a",
		},
		{
			name: "break outside loop",
			src: `int main() {
  break;
  while (1) {
    continue;
  }
  continue;
  return 0;
}`,
			want: "2 m\n6 m",
		},
		{
			name: "non-constant initializer",
			src: `int g = 1;
int h = g + 1;
int main() {
  int x = 2;
  const int c = x;
  int arr[x];
  return h;
}`,
			want: "5 n\n6 n",
		},
		{
			name: "sorted by code within a line",
			src: `const int N = 1;
int main() {
  N = undefined;
  return 0;
}`,
			want: "3 c\n3 h",
		},
		{
			name: "call of non-function",
			src: `int main() {
  int v = 1;
  return v(2);
}`,
			want: "3 c",
		},
		{
			name: "parameter redefined in body",
			src: `int f(int p) {
  int p;
  return 0;
}
int main() {
  return f(1);
}`,
			want: "2 b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(tt.src)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := renderDiagnostics(res.Diagnostics); got != tt.want {
				t.Errorf("diagnostics:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"no main", "int a;\n", 2},
		{"trailing declaration", "int main() { return 0; }\nint x;", 2},
		{"missing brace", "int main() {\n  return 0;\n", 3},
		{"const without value", "const int a;\nint main() { return 0; }", 1},
		{"garbage expression", "int main() {\n  return ];\n}", 2},
		{"array size overflows int64", "int a[2147483647][2147483647][3];\nint main() {\n  return 0;\n}", 1},
		{"array size wraps to zero", "int main() {\n  int a[65536][65536][65536][65536];\n  return 0;\n}", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			var serr *SyntaxError
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v, want *SyntaxError", err)
			}
			if serr.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", serr.Line, tt.line, serr)
			}
		})
	}
}

func TestConstantArraysFoldWithoutCode(t *testing.T) {
	res := compileOK(t, `const int a[2] = {1 + 2, 3 * 4};
const int b[a[1]] = {a[0]};
int main() {
  return b[0];
}`)

	a := res.Globals["a"]
	if a == nil || len(a.Data) != 2 || a.Data[0] != 3 || a.Data[1] != 12 {
		t.Fatalf("a = %+v, want data [3 12]", a)
	}
	b := res.Globals["b"]
	if b == nil || len(b.Dims) != 1 || b.Dims[0] != 12 || b.Data[0] != 3 {
		t.Fatalf("b = %+v, want dims [12] with b[0] = 3", b)
	}
	for pc, in := range res.Program.Code {
		if in.Op == vm.OpBuildArray || in.Op == vm.OpInitArray {
			t.Errorf("%04d: constant array initializer emitted %s", pc, in.Op)
		}
	}
}

func TestNestedInitializerPadding(t *testing.T) {
	res := compileOK(t, `int g[3][2] = {{1}, 2, 3, {4}};
int main() { return 0; }`)
	want := []int64{1, 0, 2, 3, 4, 0}
	got := res.Globals["g"].Data
	if len(got) != len(want) {
		t.Fatalf("data = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("data = %v, want %v", got, want)
		}
	}
}

func TestProgramPrologue(t *testing.T) {
	res := compileOK(t, `int helper() { return 1; }
int main() { return helper(); }`)
	code := res.Program.Code
	if code[0].Op != vm.OpCallFunction || code[1].Op != vm.OpExitInterp {
		t.Fatalf("prologue = %v %v", code[0], code[1])
	}
	mainFn := res.Program.Functions[code[0].Operand]
	if mainFn.Name != "main" {
		t.Errorf("prologue calls %s, want main", mainFn.Name)
	}
	if got := res.Program.FunctionByName("main"); got != code[0].Operand {
		t.Errorf("FunctionByName(main) = %d, want %d", got, code[0].Operand)
	}
	if got := res.Program.FunctionByName("missing"); got != -1 {
		t.Errorf("FunctionByName(missing) = %d, want -1", got)
	}
	for _, f := range res.Program.Functions {
		if f.Entry <= 1 {
			t.Errorf("function %s entry %d overlaps the prologue", f.Name, f.Entry)
		}
	}
}

func TestShortCircuitUsesJumps(t *testing.T) {
	res := compileOK(t, `int main() {
  int a = 1;
  if (a || a && a) { a = 2; }
  return a;
}`)
	counts := make(map[vm.Opcode]int)
	for _, in := range res.Program.Code {
		counts[in.Op]++
		if in.Op == vm.OpBinaryOp {
			op := vm.BinaryOp(in.Operand)
			if op == vm.BinaryLogicalAnd || op == vm.BinaryLogicalOr {
				t.Errorf("condition materialized %s", op)
			}
		}
	}
	if counts[vm.OpPopJumpIfTrue] != 1 {
		t.Errorf("POP_JUMP_IF_TRUE count = %d, want 1", counts[vm.OpPopJumpIfTrue])
	}
	if counts[vm.OpPopJumpIfFalse] != 2 {
		t.Errorf("POP_JUMP_IF_FALSE count = %d, want 2", counts[vm.OpPopJumpIfFalse])
	}
}

func TestEveryJumpResolved(t *testing.T) {
	res := compileOK(t, `int main() {
  int i = 0;
  while (1) {
    if (i > 3 && i < 100 || i == 50) break;
    i = i + 1;
    if (i == 2) continue; else i = i + 0;
  }
  return i;
}`)
	for pc, in := range res.Program.Code {
		if in.Op.IsJump() && (in.Operand < 0 || in.Operand >= res.Program.Len()) {
			t.Errorf("%04d: %s target %d", pc, in.Op, in.Operand)
		}
	}
}

func TestGlobalScopeRetained(t *testing.T) {
	res := compileOK(t, `int counter = 5;
void tick() { counter = counter + 1; }
int main() { tick(); return counter; }`)
	for _, name := range []string{"counter", "tick", "main"} {
		if _, ok := res.Globals[name]; !ok {
			t.Errorf("global scope missing %s", name)
		}
	}
	if got := res.Globals["tick"].Signature(); got != "void tick()" {
		t.Errorf("Signature = %q", got)
	}
}
