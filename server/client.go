package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote CompilerService over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a server at addr ("host:port") without TLS.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, procedure string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, procedure, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Compile translates source remotely.
func (c *Client) Compile(ctx context.Context, source string) (*structpb.Struct, error) {
	return c.invoke(ctx, CompileProcedure, map[string]any{"source": source})
}

// Run translates and executes source remotely with input as standard input.
func (c *Client) Run(ctx context.Context, source, input string) (*structpb.Struct, error) {
	return c.invoke(ctx, RunProcedure, map[string]any{"source": source, "input": input})
}

// Disassemble returns the remote listing of source.
func (c *Client) Disassemble(ctx context.Context, source string) (*structpb.Struct, error) {
	return c.invoke(ctx, DisassembleProcedure, map[string]any{"source": source})
}
