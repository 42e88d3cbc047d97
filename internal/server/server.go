package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-history-mcp/internal/capture"
	"github.com/ironsheep/image-history-mcp/internal/config"
	"github.com/ironsheep/image-history-mcp/internal/history"
	"github.com/ironsheep/image-history-mcp/internal/imaging"
	"github.com/ironsheep/image-history-mcp/internal/ocr"
	"github.com/ironsheep/image-history-mcp/internal/transform"
)

// Server handles MCP protocol communication for one editing session.
type Server struct {
	engine  *history.Engine
	cache   *imaging.ImageCache
	tracker *imaging.Tracker
	cfg     *config.Config
	logger  logrus.FieldLogger
	version string

	// Frame sources are swappable for tests.
	grabFrame  func(device string, tracker *imaging.Tracker) (*imaging.Buffer, error)
	extractOCR func(b *imaging.Buffer, language string) (*ocr.Result, error)
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

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the configuration. The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets the logger for the server and its history engine.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a new MCP server instance with an empty history.
func New(opts ...Option) *Server {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	s := &Server{
		cache:      imaging.NewImageCache(),
		tracker:    imaging.NewTracker(),
		cfg:        config.Default(),
		logger:     quiet,
		version:    "dev",
		grabFrame:  capture.Frame,
		extractOCR: ocr.Extract,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = history.New(transform.New(), history.WithLogger(s.logger.WithField("component", "history")))
	return s
}

// Run serves MCP on stdin and stdout until stdin closes.
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to w.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// base64 images make requests large
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.WithError(err).Error("failed to parse request")
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.WithError(err).Error("failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// Close releases every image buffer held by the session.
func (s *Server) Close() error {
	err := s.engine.Close()
	s.cache.Clear()
	if live := s.tracker.Live(); live != 0 {
		s.logger.WithField("live", live).Warn("image buffers still alive at shutdown")
	}
	return err
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	s.logger.WithFields(logrus.Fields{"method": req.Method, "id": req.ID}).Debug("request")

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
				"name":    "image-history-mcp",
				"version": s.version,
			},
		},
	}
}
