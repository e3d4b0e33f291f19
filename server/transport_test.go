package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestHTTPServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	s := New(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return ts
}

func TestConnectJSON_Run(t *testing.T) {
	ts := newTestHTTPServer(t)

	body, _ := json.Marshal(map[string]string{"source": product, "input": "4 5"})
	resp, err := http.Post(ts.URL+RunProcedure, "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["output"] != "20\n" {
		t.Errorf("output = %v, want %q", out["output"], "20\n")
	}
	if out["exit"] != float64(9) {
		t.Errorf("exit = %v, want 9", out["exit"])
	}
}

func TestConnectJSON_MissingSource(t *testing.T) {
	ts := newTestHTTPServer(t)

	resp, err := http.Post(ts.URL+CompileProcedure, "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConnectClient_Compile(t *testing.T) {
	ts := newTestHTTPServer(t)
	client := connect.NewClient[structpb.Struct, structpb.Struct](ts.Client(), ts.URL+CompileProcedure)

	resp, err := client.CallUnary(bg(), structReq(t, map[string]any{"source": product}))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if !field(resp.Msg, "ok").GetBoolValue() {
		t.Errorf("Compile not ok: %v", resp.Msg)
	}
}

func TestGRPCClient_RunAndDisassemble(t *testing.T) {
	ts := newTestHTTPServer(t, WithMaxSteps(10_000))

	c, err := Dial(ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := contextWithTimeout(5 * time.Second)
	defer cancel()

	run, err := c.Run(ctx, product, "3 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := field(run, "output").GetStringValue(); got != "9\n" {
		t.Errorf("output = %q, want %q", got, "9\n")
	}

	dis, err := c.Disassemble(ctx, product)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(field(dis, "listing").GetStringValue(), "EXIT_INTERP") {
		t.Errorf("listing missing EXIT_INTERP")
	}

	comp, err := c.Compile(ctx, "int main() {\n  return y;\n}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if field(comp, "ok").GetBoolValue() {
		t.Error("Compile ok with an undefined name")
	}
}
