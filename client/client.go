// Package client talks to a running psyclone daemon over gRPC.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/agent"
	"github.com/JamesWemyss/psyclone/server"
)

const (
	// DefaultAddress is the daemon's default gRPC address.
	DefaultAddress = "localhost:50051"

	// DefaultSource tags writes made from the command line.
	DefaultSource = "cli"
)

// Client wraps a connection to the daemon.
type Client struct {
	conn   *grpc.ClientConn
	source string
}

// Connect connects to the daemon.
// The address can be:
//   - A Unix socket path (e.g., "/tmp/psyclone.sock")
//   - A TCP address (e.g., "localhost:50051")
//
// If the address starts with "unix://", it will be treated as a Unix socket.
// Otherwise, if it contains ":" it will be treated as TCP, else Unix socket.
func Connect(address string) (*Client, error) {
	var target string
	switch {
	case strings.HasPrefix(address, "unix://"):
		target = address
	case strings.Contains(address, ":") && !strings.HasPrefix(address, "/"):
		target = address
	default:
		target = "unix://" + address
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w", address, err)
	}
	return New(conn), nil
}

// New wraps an existing connection.
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, source: DefaultSource}
}

// WithSource sets the surface name sent with every call and returns c.
func (c *Client) WithSource(source string) *Client {
	c.source = source
	return c
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ask classifies message and saves or searches.
func (c *Client) Ask(ctx context.Context, message string) (agent.AskResponse, error) {
	var out agent.AskResponse
	err := c.invoke(ctx, server.MethodAsk, message, &out)
	return out, err
}

// Chat routes message to a single command.
func (c *Client) Chat(ctx context.Context, message string) (agent.ChatResponse, error) {
	var out agent.ChatResponse
	err := c.invoke(ctx, server.MethodChat, message, &out)
	return out, err
}

// Assistant runs one tool-calling turn.
func (c *Client) Assistant(ctx context.Context, message string) (agent.TurnResult, error) {
	var out agent.TurnResult
	err := c.invoke(ctx, server.MethodAssistant, message, &out)
	return out, err
}

// Lists returns goals and both ranked task lists.
func (c *Client) Lists(ctx context.Context) (actions.Lists, error) {
	var out actions.Lists
	err := c.invoke(ctx, server.MethodLists, "", &out)
	return out, err
}

// Healthy reports whether the daemon's service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) invoke(ctx context.Context, method, message string, out any) error {
	fields := map[string]interface{}{}
	if message != "" {
		fields["message"] = message
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, server.SourceMetadataKey, c.source)

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	raw, err := resp.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
