package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/vetter/internal/vetting"
)

// Config holds MCP server configuration.
type Config struct {
	Service *vetting.Service
	// Remote is the default for the remote flag of vetter_verify.
	Remote  bool
	Version string
}

// Server wraps the MCP SDK server around a verification service.
type Server struct {
	mcpServer *mcpsdk.Server
	svc       *vetting.Service
	remote    bool
}

// New creates an MCP server with the vetter tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("mcp: service is required")
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{svc: cfg.Service, remote: cfg.Remote}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "vetter",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all vetter tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "vetter_verify",
		Description: "Verify an account by username. Returns VERIFIED, FLAGGED or DISMISSED with every triggered rule in evaluation order.",
	}, s.handleVerify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "vetter_reference",
		Description: "Show the loaded reference data: list sizes, thresholds, rule order and file hash.",
	}, s.handleReference)
}
