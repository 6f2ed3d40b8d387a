package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ironsheep/pupil-tools-mcp/internal/config"
	"github.com/ironsheep/pupil-tools-mcp/internal/hough"
	"github.com/ironsheep/pupil-tools-mcp/internal/imaging"
	"github.com/ironsheep/pupil-tools-mcp/internal/probe"
)

// Version is reported in the initialize handshake.
const Version = "0.1.0"

// Locator is anything that finds a pupil in a frame. A frame without a pupil
// yields an estimate with Valid == false and a nil error.
type Locator interface {
	Detect(f *imaging.Frame) (probe.Ellipse, error)
}

// Server handles MCP protocol communication
type Server struct {
	cfg      *config.Config
	cache    *imaging.ImageCache
	detector *probe.Detector
	hough    *hough.Detector
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a server with one probe detector and one Hough detector built
// from cfg. A nil cfg uses config.DefaultConfig. When cfg names a table file
// that exists, the learned tables are loaded from it.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := cfg.NewDetector()
	if err != nil {
		return nil, err
	}
	hd, err := cfg.NewHough()
	if err != nil {
		return nil, err
	}

	if p := cfg.Tables.Path; p != "" {
		if _, err := os.Stat(p); err == nil {
			if err := det.Load(p); err != nil {
				return nil, err
			}
			log.Printf("Loaded probe tables from %s", p)
		}
	}

	return &Server{
		cfg:      cfg,
		cache:    imaging.NewImageCache(),
		detector: det,
		hough:    hd,
	}, nil
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve processes newline-delimited JSON-RPC requests from r until EOF,
// writing responses to w.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("Failed to parse request: %v", err)
			if err := encoder.Encode(s.errorResponse(nil, -32700, "Parse error", err.Error())); err != nil {
				log.Printf("Failed to encode response: %v", err)
			}
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				log.Printf("Failed to encode response: %v", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "pupil-tools-mcp",
				"version": Version,
			},
		},
	}
}

// locator picks the detector for a tool's "algorithm" argument.
func (s *Server) locator(algorithm string) (Locator, error) {
	switch algorithm {
	case "", "probe":
		return s.detector, nil
	case "hough":
		return s.hough, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q (want probe or hough)", algorithm)
	}
}
