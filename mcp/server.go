// Package mcp implements a Model Context Protocol server exposing the
// redaction tools over JSON-RPC 2.0 on stdio.
//
// Messages are newline-delimited JSON objects. The server implements the
// initialize handshake, ping, tools/list and tools/call.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/wudi/pdfredact/observability"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "pdfredact"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Server handles JSON-RPC 2.0 messages read from input.
type Server struct {
	version string
	tools   map[string]Tool
	input   io.Reader
	output  io.Writer
	log     observability.Logger
	mu      sync.Mutex
}

// Tool is a callable tool. InputSchema is a JSON schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     ToolHandler    `json:"-"`
}

// ToolHandler executes a tool. A returned error becomes a result with
// isError set, not a protocol error.
type ToolHandler func(ctx context.Context, args json.RawMessage) (ToolResult, error)

type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextResult wraps text in a single content block.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// JSONResult renders v as an indented JSON text block.
func JSONResult(v any) (ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ToolResult{}, err
	}
	return TextResult(string(data)), nil
}

type request struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

type response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Result  any              `json:"result,omitempty"`
	Error   *rpcError        `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewServer(in io.Reader, out io.Writer, version string, log observability.Logger) *Server {
	return &Server{
		version: version,
		tools:   make(map[string]Tool),
		input:   in,
		output:  out,
		log:     observability.OrNop(log),
	}
}

func (s *Server) AddTool(t Tool) {
	s.tools[t.Name] = t
}

// Run processes messages until EOF or until ctx ends. Requests are handled
// one at a time in arrival order.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.input)
	// Base64 documents make long lines.
	scanner.Buffer(make([]byte, 0, 1<<20), 256<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(nil, codeParseError, "Parse error", err.Error())
			continue
		}
		s.handle(ctx, req)
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req request) {
	switch req.Method {
	case "initialize":
		s.sendResult(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": ServerName, "version": s.version},
		})
	case "notifications/initialized", "initialized":
	case "ping":
		s.sendResult(req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		if req.ID == nil {
			// Unknown notification.
			return
		}
		s.sendError(req.ID, codeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) handleToolsList(req request) {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, s.tools[name])
	}
	s.sendResult(req.ID, map[string]any{"tools": tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req request) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	tool, ok := s.tools[params.Name]
	if !ok {
		s.sendError(req.ID, codeInvalidParams, "Unknown tool", params.Name)
		return
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	s.log.Debug("tool call", observability.String("tool", params.Name))
	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		s.log.Warn("tool failed", observability.String("tool", params.Name), observability.Error("error", err))
		result = TextResult(fmt.Sprintf("Error: %v", err))
		result.IsError = true
	}
	s.sendResult(req.ID, result)
}

func (s *Server) sendResult(id *json.RawMessage, result any) {
	s.send(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id *json.RawMessage, code int, message string, data any) {
	s.send(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}

func (s *Server) send(resp response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encode response", observability.Error("error", err))
		return
	}
	if _, err := s.output.Write(append(data, '\n')); err != nil {
		s.log.Error("write response", observability.Error("error", err))
	}
}
