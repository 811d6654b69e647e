// Package mcpserver exposes the tool registry over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/metrics"
	"secopsmcp/internal/tool"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Name is the server name announced during MCP initialization.
const Name = "secopsmcp"

// Server bridges MCP tool calls onto a tool.Registry.
type Server struct {
	reg    *tool.Registry
	mcp    *server.MCPServer
	logger *slog.Logger
}

// New registers every tool currently in reg. Tools added to reg afterwards
// are not exposed.
func New(reg *tool.Registry, version string, logger *slog.Logger) (*Server, error) {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		metrics.MCPSessions.Inc()
		logger.Info("mcp session opened", "session", session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		metrics.MCPSessions.Dec()
		logger.Info("mcp session closed", "session", session.SessionID())
	})

	s := &Server{
		reg: reg,
		mcp: server.NewMCPServer(Name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithHooks(hooks),
		),
		logger: logger,
	}

	for _, def := range reg.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode schema of %s: %w", def.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.call)
	}
	logger.Debug("mcp tools registered", "count", reg.Len())
	return s, nil
}

// call runs one tool and returns its envelope as JSON text. Tool failures
// are results with IsError set, never protocol errors.
func (s *Server) call(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.Params.Name
	env := s.reg.Execute(ctx, name, req.GetArguments())
	text, err := encode(env)
	if err != nil {
		s.logger.Error("encode envelope", "tool", name, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s Failed: %s: %v", name, domain.Unexpected.Code(), err)), nil
	}
	res := mcp.NewToolResultText(text)
	res.IsError = env.IsError
	return res, nil
}

func encode(env domain.Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ServeStdio speaks MCP over in/out until ctx is cancelled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	s.logger.Info("serving MCP over stdio", "tools", s.reg.Len())
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// HTTPOptions configures the SSE transport.
type HTTPOptions struct {
	Addr    string
	BaseURL string
	// MetricsPath serves the Prometheus collector when non-empty.
	MetricsPath string
}

// Handler returns the SSE endpoints (/sse, /message) plus /healthz and,
// when configured, the metrics endpoint.
func (s *Server) Handler(opts HTTPOptions) http.Handler {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "http://" + opts.Addr
	}
	sse := server.NewSSEServer(s.mcp, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sse.SSEHandler())
	mux.Handle("/message", sse.MessageHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "tools": s.reg.Len()})
	})
	if opts.MetricsPath != "" {
		mux.Handle("GET "+opts.MetricsPath, metrics.Collector.Handler())
	}
	return mux
}

// ServeSSE listens on opts.Addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, opts HTTPOptions) error {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(opts),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving MCP over SSE", "addr", opts.Addr, "tools", s.reg.Len(), "metrics", opts.MetricsPath)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
