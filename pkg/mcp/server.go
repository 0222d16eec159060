package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ToolHandler executes one tool call.
type ToolHandler func(ctx context.Context, call ToolCall) (ToolResult, error)

// Server holds the MCP tool registry shared by all transports
type Server struct {
	name    string
	version string
	tools   []Tool
}

// NewServer creates a new MCP server
func NewServer(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
	}
}

// RegisterTool adds a tool to the registry
func (s *Server) RegisterTool(tool Tool) {
	s.tools = append(s.tools, tool)
}

// Tools returns the registered tools
func (s *Server) Tools() []Tool {
	return s.tools
}

// Start runs the stdio transport: newline-delimited JSON-RPC on stdin/stdout.
// It returns when stdin closes.
func (s *Server) Start(handler ToolHandler) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var request map[string]interface{}
		if err := json.Unmarshal(line, &request); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid JSON-RPC message: %v\n", err)
			continue
		}

		response := s.dispatch(context.Background(), request, handler)
		if response == nil {
			// Notification, no reply expected.
			continue
		}
		if err := encoder.Encode(response); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, request map[string]interface{}, handler ToolHandler) map[string]interface{} {
	method, _ := request["method"].(string)
	id, hasID := request["id"]

	var response map[string]interface{}
	switch method {
	case "initialize":
		response = s.initializeResult()
	case "tools/list":
		response = map[string]interface{}{
			"result": map[string]interface{}{"tools": s.tools},
		}
	case "tools/call":
		response = s.callTool(ctx, request, handler)
	default:
		if !hasID {
			return nil
		}
		response = map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32601,
				"message": fmt.Sprintf("Method not found: %s", method),
			},
		}
	}

	response["jsonrpc"] = "2.0"
	if hasID {
		response["id"] = id
	}
	return response
}

func (s *Server) initializeResult() map[string]interface{} {
	return map[string]interface{}{
		"result": map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    s.name,
				"version": s.version,
			},
		},
	}
}

func (s *Server) callTool(ctx context.Context, request map[string]interface{}, handler ToolHandler) map[string]interface{} {
	params, ok := request["params"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "Invalid params",
			},
		}
	}

	name, _ := params["name"].(string)
	arguments, _ := params["arguments"].(map[string]interface{})

	result, err := handler(ctx, ToolCall{Name: name, Arguments: arguments})
	if err != nil {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32000,
				"message": err.Error(),
			},
		}
	}

	return map[string]interface{}{
		"result": result,
	}
}
