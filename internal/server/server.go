// Package server exposes an engine over MCP (mark3labs/mcp-go) and a JSON
// HTTP API (go-chi/chi).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/mj1618/voxnav/internal/engine"
	"go.uber.org/zap"
)

// Transports accepted by ServeMCP.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"
)

// Server serves one engine.
type Server struct {
	eng     *engine.Engine
	log     *zap.Logger
	version string
	mcp     *mcpserver.MCPServer
}

// New creates a Server and registers its MCP tools.
func New(eng *engine.Engine, log *zap.Logger, version string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		eng:     eng,
		log:     log.Named("server"),
		version: version,
	}
	s.mcp = mcpserver.NewMCPServer("voxnav", version, mcpserver.WithToolCapabilities(false))
	s.registerTools()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// ServeMCP serves the MCP tools on transport until ctx is canceled or the
// transport stops. addr is only used by the streamable-http transport.
func (s *Server) ServeMCP(ctx context.Context, transport, addr string) error {
	switch transport {
	case TransportStdio:
		stdio := mcpserver.NewStdioServer(s.mcp)
		stdio.SetErrorLogger(zap.NewStdLog(s.log))
		err := stdio.Listen(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case TransportHTTP:
		httpSrv := mcpserver.NewStreamableHTTPServer(s.mcp)
		s.log.Info("mcp listening", zap.String("addr", addr))
		return serveUntilDone(ctx, httpSrv.Start, httpSrv.Shutdown, addr)
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", transport)
	}
}

// ListenAndServe serves the HTTP API on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http listening", zap.String("addr", addr))
	return serveUntilDone(ctx, func(string) error { return srv.ListenAndServe() }, srv.Shutdown, addr)
}

// serveUntilDone runs start and shuts it down when ctx is canceled.
func serveUntilDone(ctx context.Context, start func(string) error, shutdown func(context.Context) error, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
