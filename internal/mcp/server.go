package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shibukawa/authrelay/internal/config"
)

// MCPServer exposes relay tooling over the Model Context Protocol.
type MCPServer struct {
	configPath string
	tools      map[string]Tool
	resources  map[string]Resource
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(configPath string) *MCPServer {
	server := &MCPServer{
		configPath: configPath,
		tools:      make(map[string]Tool),
		resources:  make(map[string]Resource),
	}
	server.registerTools()
	server.registerResources()
	return server
}

// Tool represents an MCP tool
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Resource represents an MCP resource
type Resource interface {
	URI() string
	Name() string
	Description() string
	MimeType() string
	Content(ctx context.Context) ([]byte, error)
}

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

const protocolVersion = "2024-11-05"

var errorMessages = map[int]string{
	ParseError:     "Parse error",
	InvalidRequest: "Invalid request",
	MethodNotFound: "Method not found",
	InvalidParams:  "Invalid params",
	InternalError:  "Internal error",
}

func resultResponse(id, result any) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, data any) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: errorMessages[code], Data: data},
	}
}

// ServeStdio serves newline-delimited JSON-RPC on in and out until in is
// exhausted or ctx is cancelled.
func (s *MCPServer) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var request JSONRPCRequest
		if err := decoder.Decode(&request); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				// The decoder cannot resynchronize after malformed input
				return encoder.Encode(errorResponse(nil, ParseError, err.Error()))
			}
			if err := encoder.Encode(errorResponse(nil, ParseError, err.Error())); err != nil {
				slog.Error("failed to encode response", "error", err)
			}
			continue
		}

		if err := encoder.Encode(s.handleRequest(ctx, &request)); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}
}

// ServeStdioProcess serves on the process's stdin and stdout
func (s *MCPServer) ServeStdioProcess(ctx context.Context) error {
	return s.ServeStdio(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP starts the MCP server using HTTP
func (s *MCPServer) ServeHTTP(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTPRequest)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHTTPRequest handles HTTP requests
func (s *MCPServer) handleHTTPRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var response JSONRPCResponse
	var request JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response = errorResponse(nil, ParseError, err.Error())
	} else {
		response = s.handleRequest(r.Context(), &request)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRequest processes a JSON-RPC request
func (s *MCPServer) handleRequest(ctx context.Context, request *JSONRPCRequest) JSONRPCResponse {
	if request.JSONRPC != "2.0" {
		return errorResponse(request.ID, InvalidRequest, "jsonrpc must be '2.0'")
	}

	switch request.Method {
	case "initialize":
		return resultResponse(request.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "authrelay",
				"version": "1.0.0",
			},
		})
	case "tools/list":
		return s.handleToolsList(request)
	case "tools/call":
		return s.handleToolsCall(ctx, request)
	case "resources/list":
		return s.handleResourcesList(request)
	case "resources/read":
		return s.handleResourcesRead(ctx, request)
	default:
		return errorResponse(request.ID, MethodNotFound, fmt.Sprintf("Unknown method: %s", request.Method))
	}
}

// handleToolsList lists tools sorted by name
func (s *MCPServer) handleToolsList(request *JSONRPCRequest) JSONRPCResponse {
	tools := make([]map[string]any, 0, len(s.tools))
	for _, name := range slices.Sorted(maps.Keys(s.tools)) {
		tool := s.tools[name]
		tools = append(tools, map[string]any{
			"name":        tool.Name(),
			"description": tool.Description(),
			"inputSchema": tool.InputSchema(),
		})
	}
	return resultResponse(request.ID, map[string]any{"tools": tools})
}

// handleToolsCall runs a tool and returns its result as JSON text content
func (s *MCPServer) handleToolsCall(ctx context.Context, request *JSONRPCRequest) JSONRPCResponse {
	name, ok := request.Params["name"].(string)
	if !ok {
		return errorResponse(request.ID, InvalidParams, "name parameter is required and must be a string")
	}

	tool, exists := s.tools[name]
	if !exists {
		return errorResponse(request.ID, InvalidParams, fmt.Sprintf("Unknown tool: %s", name))
	}

	args, ok := request.Params["arguments"].(map[string]any)
	if !ok {
		args = make(map[string]any)
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return errorResponse(request.ID, InternalError, err.Error())
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResponse(request.ID, InternalError, err.Error())
	}

	return resultResponse(request.ID, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(text)},
		},
	})
}

// handleResourcesList lists resources sorted by URI
func (s *MCPServer) handleResourcesList(request *JSONRPCRequest) JSONRPCResponse {
	resources := make([]map[string]any, 0, len(s.resources))
	for _, uri := range slices.Sorted(maps.Keys(s.resources)) {
		resource := s.resources[uri]
		resources = append(resources, map[string]any{
			"uri":         resource.URI(),
			"name":        resource.Name(),
			"description": resource.Description(),
			"mimeType":    resource.MimeType(),
		})
	}
	return resultResponse(request.ID, map[string]any{"resources": resources})
}

// handleResourcesRead handles the resources/read request
func (s *MCPServer) handleResourcesRead(ctx context.Context, request *JSONRPCRequest) JSONRPCResponse {
	uri, ok := request.Params["uri"].(string)
	if !ok {
		return errorResponse(request.ID, InvalidParams, "uri parameter is required and must be a string")
	}

	resource, exists := s.resources[uri]
	if !exists {
		return errorResponse(request.ID, InvalidParams, fmt.Sprintf("Unknown resource: %s", uri))
	}

	content, err := resource.Content(ctx)
	if err != nil {
		return errorResponse(request.ID, InternalError, err.Error())
	}

	return resultResponse(request.ID, map[string]any{
		"contents": []map[string]any{
			{
				"uri":      resource.URI(),
				"mimeType": resource.MimeType(),
				"text":     string(content),
			},
		},
	})
}

// loadConfig loads the configuration file. A missing file yields defaults.
func (s *MCPServer) loadConfig() (*config.Config, error) {
	if s.configPath == "" {
		return nil, ErrConfigPathNotSet
	}

	absPath, err := filepath.Abs(s.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return config.LoadConfig(absPath, false)
}

// useConfigPath switches the server to configPath when one is given
func (s *MCPServer) useConfigPath(args map[string]any) {
	if configPath, ok := args["config_path"].(string); ok && configPath != "" {
		s.configPath = configPath
	}
}
