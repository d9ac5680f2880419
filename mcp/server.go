// Package mcp serves the action tools over the Model Context Protocol so
// other assistants can read and write the same memory store.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/llm"
)

// ServerName identifies psyclone to MCP clients.
const ServerName = "psyclone"

// Source tags writes made through MCP.
const Source = "mcp"

// ToolSource lists and runs tools. *tools.Registry implements it.
type ToolSource interface {
	Specs() []llm.ToolSpec
	Handle(ctx context.Context, name string, args []byte) (any, error)
}

// Server exposes a ToolSource as MCP tools.
type Server struct {
	mcp    *server.MCPServer
	tools  ToolSource
	logger zerolog.Logger
}

// NewServer registers every tool of src.
func NewServer(src ToolSource, version string, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		tools:  src,
		logger: logger.With().Str("component", "mcp-server").Logger(),
	}
	for _, spec := range src.Specs() {
		schema, err := json.Marshal(schemaMap(spec.Schema))
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", spec.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema), s.handler(spec.Name))
	}
	s.logger.Info().Int("tools", len(src.Specs())).Msg("MCP tools registered")
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over in/out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info().Msg("Serving MCP on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func schemaMap(sch llm.ToolSchema) map[string]interface{} {
	m := map[string]interface{}{
		"type":       sch.Type,
		"properties": sch.Properties,
	}
	if m["type"] == "" {
		m["type"] = "object"
	}
	if sch.Properties == nil {
		m["properties"] = map[string]interface{}{}
	}
	if len(sch.Required) > 0 {
		m["required"] = sch.Required
	}
	return m
}

// handler runs one tool. Tool failures are returned as error results so the
// calling model can see them.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("malformed arguments: %v", err)), nil
		}
		result, err := s.tools.Handle(ctxpkg.WithSource(ctx, Source), name, args)
		if err != nil {
			s.logger.Warn().Str("tool", name).Err(err).Msg("MCP tool failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
