// Package server wires the engine services into an MCP server.
//
// This is the composition root: it creates the platform client and the
// concrete services, registers every tool, and owns the transport loop.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mdmgate/mdmgate/engine/activity"
	"github.com/mdmgate/mdmgate/engine/entity"
	"github.com/mdmgate/mdmgate/engine/match"
	"github.com/mdmgate/mdmgate/engine/mdm"
	"github.com/mdmgate/mdmgate/engine/relation"
	"github.com/mdmgate/mdmgate/engine/workflow"
	"github.com/mdmgate/mdmgate/pkg/config"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

const serverName = "mdmgate"

// Server hosts the MCP tool surface over stdio or SSE.
type Server struct {
	cfg *config.Config
	mcp *mcpserver.MCPServer
}

// New builds the server: platform client, services, tool registry and the
// compatibility aliases.
func New(cfg *config.Config) *Server {
	client := mdm.NewClient(cfg)
	entities := entity.NewService(client)

	h := &handlers{
		entities:   entities,
		matches:    match.NewService(client, entities),
		relations:  relation.NewService(client),
		workflows:  workflow.NewService(client),
		activities: activity.NewService(client),
	}

	s := mcpserver.NewMCPServer(
		serverName,
		Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions),
	)
	h.register(s)
	registerCompat(s, h)

	return &Server{cfg: cfg, mcp: s}
}

// MCP exposes the underlying MCP server, mainly for tests.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// Run serves MCP over the configured transport until ctx is cancelled or
// the transport fails.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	switch s.cfg.Server.Transport {
	case "sse":
		addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
		sse := mcpserver.NewSSEServer(s.mcp,
			mcpserver.WithBaseURL("http://"+addr),
		)
		go func() {
			<-ctx.Done()
			if err := sse.Shutdown(context.Background()); err != nil {
				log.Error("sse shutdown failed", "error", err)
			}
		}()
		log.Info("serving MCP over SSE", "addr", addr)
		if err := sse.Start(addr); err != nil && ctx.Err() == nil {
			return fmt.Errorf("sse server: %w", err)
		}
		return nil
	default:
		log.Info("serving MCP over stdio")
		if err := mcpserver.ServeStdio(s.mcp); err != nil && ctx.Err() == nil {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}
}

const serverInstructions = `mdmgate exposes a master data management platform as MCP tools:
potential match discovery and statistics, entity unmerge, relationship
management, workflow task lifecycle and activity queries. Every tool accepts
a tenant_id; when omitted, the configured default tenant is used. Results
are rendered as YAML documents.`
