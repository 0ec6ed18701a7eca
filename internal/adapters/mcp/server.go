package mcpadapter

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/qonfido/fundrag/internal/core/ports"
)

const (
	serverName    = "fundrag-mcp"
	serverVersion = "1.0.0"
)

// Server exposes the retrieval engine over the Model Context Protocol so
// agent hosts can call it as a tool provider on stdio.
type Server struct {
	mcp    *server.MCPServer
	query  ports.QueryService
	funds  ports.FundCatalog
	admin  ports.IndexAdmin
	logger *slog.Logger
}

func NewServer(query ports.QueryService, funds ports.FundCatalog, admin ports.IndexAdmin, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:    server.NewMCPServer(serverName, serverVersion),
		query:  query,
		funds:  funds,
		admin:  admin,
		logger: logger,
	}
	s.mcp.AddTool(queryFundsTool(), s.handleQueryFunds)
	s.mcp.AddTool(searchFundsTool(), s.handleSearchFunds)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
	return s
}

// Serve runs the stdio transport and blocks until the host disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
