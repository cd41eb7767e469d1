// Package mcpserver exposes pipeline execution as a Model Context Protocol
// tool served over stdio.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marcelocantos/subby/internal/audit"
	"github.com/marcelocantos/subby/pipeline"
)

// ToolName is the name under which pipelines are exposed.
const ToolName = "run_pipeline"

// Result is the JSON body of a successful tool call.
type Result struct {
	ID        string   `json:"id"`
	Command   string   `json:"command"`
	Output    string   `json:"output"`
	Stderr    []string `json:"stderr"`
	ExitCodes []int    `json:"exit_codes"`
	State     string   `json:"state"`
	OK        bool     `json:"ok"`
	Encoding  string   `json:"encoding,omitempty"` // "base64" when raw
}

// Server runs pipelines on behalf of an MCP client.
type Server struct {
	mcp   *server.MCPServer
	base  pipeline.Config
	audit *audit.Logger
	log   *slog.Logger
}

// New builds a server whose pipelines start from base. auditLog may be nil.
func New(version string, base pipeline.Config, auditLog *audit.Logger, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp:   server.NewMCPServer("subby", version, server.WithToolCapabilities(false)),
		base:  base,
		audit: auditLog,
		log:   log,
	}
	s.mcp.AddTool(mcp.NewTool(ToolName,
		mcp.WithDescription("Run a pipeline of external commands (stages separated by |) and return its output, per-stage stderr and exit codes. No shell is involved: quoting follows shell word rules but nothing is expanded."),
		mcp.WithString("command", mcp.Required(), mcp.Description(`Pipeline, e.g. "grep -c foo | sort"`)),
		mcp.WithString("stdin", mcp.Description("Text fed to the first stage")),
		mcp.WithNumber("timeout_sec", mcp.Description("Kill the pipeline after this many seconds (0 = no limit)")),
		mcp.WithArray("allowed_return_codes", mcp.Description("Exit codes treated as success (default [0])"), mcp.Items(map[string]any{"type": "integer"})),
		mcp.WithBoolean("raw", mcp.Description("Return output and stderr base64-encoded instead of as text")),
	), s.handleRun)
	return s
}

// Serve speaks MCP over in/out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg, err := s.configFor(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	p, err := pipeline.RunConfig(ctx, pipeline.Line(command), cfg)
	elapsed := time.Since(start)
	if p != nil && !p.Closed() {
		p.Close()
	}
	s.record(command, p, err, elapsed)
	if err != nil {
		s.log.Debug("run_pipeline failed", "command", command, "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := resultOf(p, cfg.Mode)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidEncoding) {
			return mcp.NewToolResultError("output is not valid UTF-8; retry with raw=true"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) configFor(req mcp.CallToolRequest) (pipeline.Config, error) {
	cfg := s.base
	cfg.Block = true
	cfg.RaiseOnError = false
	cfg.CaptureStderr = true
	cfg.Stdin, cfg.Stdout, cfg.Stderr = nil, nil, nil
	cfg.Logger = s.log

	args := req.GetArguments()
	if _, ok := args["stdin"]; ok {
		cfg.Stdin = pipeline.Text(req.GetString("stdin", ""))
	}
	if req.GetBool("raw", false) {
		cfg.Mode = pipeline.ModeRaw
	} else {
		cfg.Mode = pipeline.ModeText
	}
	if secs := req.GetFloat("timeout_sec", 0); secs < 0 {
		return cfg, fmt.Errorf("%w: negative timeout_sec", pipeline.ErrInvalidOption)
	} else if secs > 0 {
		cfg.Timeout = time.Duration(secs * float64(time.Second))
	}
	if v, ok := args["allowed_return_codes"]; ok {
		codes, err := intsOf(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: allowed_return_codes: %v", pipeline.ErrInvalidOption, err)
		}
		cfg.AllowedReturnCodes = codes
	}
	return cfg, nil
}

func (s *Server) record(command string, p *pipeline.Processes, runErr error, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(audit.RecordOf("mcp", command, p, runErr, elapsed)); err != nil {
		s.log.Warn("audit", "err", err)
	}
}

func resultOf(p *pipeline.Processes, mode pipeline.Mode) (*Result, error) {
	encode := func(b []byte) string { return string(b) }
	res := &Result{
		ID:      p.ID(),
		Command: p.String(),
		State:   p.Poll().String(),
		OK:      p.OK(),
	}
	if mode == pipeline.ModeRaw {
		encode = base64.StdEncoding.EncodeToString
		res.Encoding = "base64"
	}

	out, err := p.Output()
	if err != nil {
		return nil, err
	}
	res.Output = encode(out)

	all, err := p.AllStderr()
	if err != nil {
		return nil, err
	}
	res.Stderr = make([]string, len(all))
	for i, b := range all {
		res.Stderr[i] = encode(b)
	}
	res.ExitCodes, _ = p.ExitCodes()
	return res, nil
}

// intsOf accepts a decoded JSON array of whole numbers.
func intsOf(v any) ([]int, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	codes := make([]int, 0, len(items))
	for _, item := range items {
		switch n := item.(type) {
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			codes = append(codes, int(n))
		case int:
			codes = append(codes, n)
		default:
			return nil, fmt.Errorf("%v is not an integer", item)
		}
	}
	return codes, nil
}
