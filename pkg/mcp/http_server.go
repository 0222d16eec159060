package mcp

import (
	"encoding/json"
	"net/http"
)

// HTTPServer exposes the tool registry over plain HTTP endpoints
type HTTPServer struct {
	server  *Server
	handler ToolHandler
}

// NewHTTPServer creates a new HTTP transport
func NewHTTPServer(server *Server, handler ToolHandler) *HTTPServer {
	return &HTTPServer{
		server:  server,
		handler: handler,
	}
}

// Routes registers the HTTP endpoints on a mux so the caller can wrap them
// with middleware.
func (h *HTTPServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/tools", h.handleListTools)
	mux.HandleFunc("/tools/call", h.handleToolCall)
}

func (h *HTTPServer) handleListTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tools": h.server.tools,
	})
}

func (h *HTTPServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.handler(r.Context(), ToolCall{
		Name:      req.Name,
		Arguments: req.Arguments,
	})
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
