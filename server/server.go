// Package server exposes the compiler and interpreter over Connect/gRPC
// and the Language Server Protocol.
package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/chazu/sysy/store"
)

var log = commonlog.GetLogger("sysy.server")

// Server serves CompilerService over Connect (HTTP/JSON), the Connect
// binary protocol and gRPC on the same port.
type Server struct {
	worker  *Worker
	service *CompilerService
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*config)

type config struct {
	store        *store.Store
	maxSteps     int
	maxCallDepth int
}

// WithStore caches compiled images and records runs in st.
func WithStore(st *store.Store) Option {
	return func(c *config) { c.store = st }
}

// WithMaxSteps bounds the instructions executed per Run request.
func WithMaxSteps(n int) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithMaxCallDepth bounds the call depth per Run request.
func WithMaxCallDepth(n int) Option {
	return func(c *config) { c.maxCallDepth = n }
}

// New creates a Server and starts its worker.
func New(opts ...Option) *Server {
	cfg := &config{
		maxSteps:     defaultServerMaxSteps,
		maxCallDepth: defaultServerCallDepth,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker()
	svc := NewCompilerService(worker, cfg.store)
	svc.maxSteps = cfg.maxSteps
	svc.maxCallDepth = cfg.maxCallDepth

	s := &Server{
		worker:  worker,
		service: svc,
		mux:     http.NewServeMux(),
	}
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, svc.Compile))
	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble))
	return s
}

// Handler returns the HTTP handler, accepting HTTP/2 without TLS so gRPC
// clients can connect directly.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.mux, &http2.Server{})
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Noticef("SysY compiler server listening on %s", addr)
	log.Infof("Connect (HTTP/JSON): http://%s%s", addr, RunProcedure)
	log.Infof("gRPC (binary):       grpc://%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Stop shuts down the worker.
func (s *Server) Stop() {
	s.worker.Stop()
}
