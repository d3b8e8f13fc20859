// Package mcp provides an MCP (Model Context Protocol) server that lets a
// driving process push graph snapshots into livegraph and read the layout
// back.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/livegraph/internal/logging"
	"github.com/nvandessel/livegraph/internal/loop"
	"github.com/nvandessel/livegraph/internal/ratelimit"
)

// Server wraps the MCP SDK server around a frame loop.
type Server struct {
	server *sdk.Server
	loop   *loop.Loop
	limits ratelimit.Limits
	audit  *AuditLogger
	logger *slog.Logger

	width, height int
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "livegraph")
	Version string // Server version

	// Loop owns the layouts the tools operate on. Required.
	Loop *loop.Loop

	// Limits throttles tool calls. Nil means unlimited.
	Limits ratelimit.Limits

	// Audit journals tool calls. Nil disables the journal.
	Audit *AuditLogger

	// SurfaceWidth and SurfaceHeight size SVG renders. Default: 800x600.
	SurfaceWidth  int
	SurfaceHeight int

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the livegraph tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Loop == nil {
		return nil, errors.New("mcp server needs a loop")
	}
	width, height := cfg.SurfaceWidth, cfg.SurfaceHeight
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}

	logger := logging.OrDiscard(cfg.Logger)
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server: mcpServer,
		loop:   cfg.Loop,
		limits: cfg.Limits,
		audit:  cfg.Audit,
		logger: logger,
		width:  width,
		height: height,
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &sdk.StdioTransport{})
}

// RunTransport serves over the given transport.
func (s *Server) RunTransport(ctx context.Context, t sdk.Transport) error {
	err := s.server.Run(ctx, t)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.audit.Close()
}
