package compiler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/sysy/vm"
)

func runSource(t *testing.T, src, input string) (string, int64, error) {
	t.Helper()
	res := compileOK(t, src)
	var out bytes.Buffer
	it := vm.NewInterpreter(res.Program,
		vm.WithInput(strings.NewReader(input)),
		vm.WithOutput(&out),
		vm.WithMaxSteps(1_000_000),
	)
	exit, err := it.Run()
	return out.String(), exit, err
}

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		input string
		out   string
		exit  int64
	}{
		{
			name: "getint and printf",
			src: `int main() {
  int a, b;
  a = getint();
  b = getint();
  printf("sum=%d\n", a + b);
  return a * b;
}`,
			input: "3 4",
			out:   "sum=7\n",
			exit:  12,
		},
		{
			name: "recursion",
			src: `int fact(int n) {
  if (n <= 1) return 1;
  return n * fact(n - 1);
}
int main() {
  printf("%d\n", fact(10));
  return 0;
}`,
			out: "3628800\n",
		},
		{
			name: "short-circuit evaluation",
			src: `int cnt;
int t() { cnt = cnt + 1; return 1; }
int f() { cnt = cnt + 10; return 0; }
int main() {
  if (f() && t()) printf("wrong\n");
  if (t() || f()) printf("ok\n");
  if (f() || f() && t() || t()) printf("ok2\n");
  printf("%d\n", cnt);
  return 0;
}`,
			out: "ok\nok2\n32\n",
		},
		{
			name: "break and continue",
			src: `int main() {
  int i = 0, s = 0;
  while (i < 10) {
    i = i + 1;
    if (i % 2 == 0) continue;
    if (i > 7) break;
    s = s + i;
  }
  printf("%d %d\n", i, s);
  return 0;
}`,
			out: "9 16\n",
		},
		{
			name: "nested loops",
			src: `int main() {
  int i = 0, j, n = 0;
  while (i < 4) {
    j = 0;
    while (1) {
      if (j >= i) break;
      n = n + 1;
      j = j + 1;
    }
    i = i + 1;
  }
  return n;
}`,
			exit: 6,
		},
		{
			name: "array views and parameters",
			src: `int sum(int a[][3], int n) {
  int i = 0, j, s = 0;
  while (i < n) {
    j = 0;
    while (j < 3) {
      s = s + a[i][j];
      j = j + 1;
    }
    i = i + 1;
  }
  return s;
}
void bump(int r[]) {
  r[0] = r[0] + 100;
}
int main() {
  int m[2][3] = {{1, 2}, {4, 5, 6}};
  bump(m[1]);
  printf("%d %d %d\n", m[0][2], m[1][0], sum(m, 2));
  return 0;
}`,
			out: "0 104 118\n",
		},
		{
			name: "global arrays sized by constants",
			src: `const int N = 4;
int fib[N + 1] = {0, 1};
int main() {
  int i = 2;
  while (i <= N) {
    fib[i] = fib[i - 1] + fib[i - 2];
    i = i + 1;
  }
  return fib[N];
}`,
			exit: 3,
		},
		{
			name: "constant array indexed at run time",
			src: `const int t[3] = {5, 6, 7};
int main() {
  int i = 2;
  return t[i] + t[0];
}`,
			exit: 12,
		},
		{
			name: "local constants",
			src: `int main() {
  const int k = 3;
  int a[k] = {1, 2, 3};
  return a[k - 1];
}`,
			exit: 3,
		},
		{
			name: "shadowing",
			src: `int x = 1;
int main() {
  int x = 2;
  {
    int x = 3;
    printf("%d ", x);
  }
  printf("%d\n", x);
  return x;
}`,
			out:  "3 2\n",
			exit: 2,
		},
		{
			name: "integer semantics",
			src: `int main() {
  printf("%d %d %d %d\n", -7 / 2, -7 % 2, 2147483647 + 1, !0 + !5);
  return 0;
}`,
			out: "-3 -1 -2147483648 1\n",
		},
		{
			name: "else branches",
			src: `int classify(int v) {
  int r = 1;
  if (v < 0) r = -1;
  else if (v == 0) r = 0;
  return r;
}
int main() {
  printf("%d%d%d\n", classify(-5), classify(0), classify(9));
  return 0;
}`,
			out: "-101\n",
		},
		{
			name: "void function as statement",
			src: `int g;
void set(int v) { g = v; }
int main() {
  set(41);
  g = g + 1;
  return g;
}`,
			exit: 42,
		},
		{
			name: "local array reinitialized per call",
			src: `int f(int v) {
  int a[2] = {v};
  a[1] = a[1] + 1;
  return a[0] + a[1];
}
int main() {
  return f(10) + f(20);
}`,
			exit: 32,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, exit, err := runSource(t, tt.src, tt.input)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out != tt.out {
				t.Errorf("output = %q, want %q", out, tt.out)
			}
			if exit != tt.exit {
				t.Errorf("exit = %d, want %d", exit, tt.exit)
			}
		})
	}
}

func TestRunDivisionByZero(t *testing.T) {
	_, _, err := runSource(t, `int main() {
  int d = getint();
  return 10 / d;
}`, "0")
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *vm.RuntimeError", err)
	}
	if rerr.Line != 3 {
		t.Errorf("Line = %d, want 3", rerr.Line)
	}
	if !errors.Is(err, vm.ErrDivisionByZero) {
		t.Errorf("err = %v, want ErrDivisionByZero", err)
	}
}

func TestRunProgramTwice(t *testing.T) {
	res := compileOK(t, `int n = 1;
int main() {
  n = n * 2;
  return n;
}`)
	for i := 0; i < 2; i++ {
		exit, err := vm.NewInterpreter(res.Program, vm.WithOutput(&bytes.Buffer{})).Run()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if exit != 2 {
			t.Errorf("run %d: exit = %d, want 2", i, exit)
		}
	}
}
