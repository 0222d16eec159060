package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SSEServer implements MCP protocol over Server-Sent Events
type SSEServer struct {
	server  *Server
	handler ToolHandler
}

// NewSSEServer creates a new SSE-based MCP transport
func NewSSEServer(server *Server, handler ToolHandler) *SSEServer {
	return &SSEServer{
		server:  server,
		handler: handler,
	}
}

// Routes registers the SSE endpoints on a mux
func (s *SSEServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/message", s.handleMessage)
}

func (s *SSEServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Send initial connection message
	fmt.Fprintf(w, "event: endpoint\ndata: /message\n\n")
	flusher.Flush()

	// Keep connection alive
	<-r.Context().Done()
}

func (s *SSEServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var request map[string]interface{}
	if err := json.Unmarshal(body, &request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := s.server.dispatch(r.Context(), request, s.handler)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
