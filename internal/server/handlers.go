package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-history-mcp/internal/history"
	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "history_undo").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.WithError(err).WithField("tool", params.Name).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Input
	case "image_load":
		return s.handleImageLoad(args)
	case "image_capture_webcam":
		return s.handleCaptureWebcam(args)

	// Edits
	case "image_apply_color":
		return s.handleApplyColor(args)
	case "image_apply_geometric":
		return s.handleApplyGeometric(args)

	// History navigation
	case "history_undo":
		return s.handleUndo()
	case "history_redo":
		return s.handleRedo()
	case "history_jump":
		return s.handleJump(args)
	case "history_delete_operation":
		return s.handleDeleteOperation(args)
	case "history_reset":
		return s.handleReset()
	case "history_state":
		return s.engine.State(), nil

	// Output
	case "image_current":
		return s.handleImageCurrent(args)
	case "image_original":
		return s.handleImageOriginal(args)
	case "image_export":
		return s.handleImageExport(args)

	// Inspection
	case "image_sample_color":
		return s.handleSampleColor(args)
	case "image_dominant_colors":
		return s.handleDominantColors(args)
	case "image_ocr":
		return s.handleOCR(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments; absent arguments decode as zero.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Input Handlers ===

type imageLoadArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

type loadResult struct {
	Source   string        `json:"source"`
	Format   string        `json:"format"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Channels int           `json:"channels"`
	State    history.State `json:"state"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var (
		buf    *imaging.Buffer
		format string
		source string
		err    error
	)
	switch {
	case a.Path != "" && a.ImageBase64 != "":
		return nil, errors.New("provide either path or image_base64, not both")
	case a.Path != "":
		info, infoErr := imaging.LoadImageInfo(s.cache, a.Path)
		if infoErr != nil {
			return nil, infoErr
		}
		buf, err = s.cache.LoadBuffer(a.Path, s.tracker)
		format, source = info.Format, a.Path
	case a.ImageBase64 != "":
		buf, format, err = imaging.DecodeBase64Buffer(a.ImageBase64, s.tracker)
		source = "base64"
	default:
		return nil, errors.New("path or image_base64 is required")
	}
	if err != nil {
		return nil, err
	}

	return s.loadBuffer(buf, source, format)
}

// loadBuffer hands buf to the engine and describes the new session.
func (s *Server) loadBuffer(buf *imaging.Buffer, source, format string) (*loadResult, error) {
	info := buf.Info()
	if err := s.engine.LoadImage(buf); err != nil {
		buf.Release()
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"source": source,
		"width":  info.Width,
		"height": info.Height,
	}).Info("image loaded")

	return &loadResult{
		Source:   source,
		Format:   format,
		Width:    info.Width,
		Height:   info.Height,
		Channels: info.Channels,
		State:    s.engine.State(),
	}, nil
}

type captureWebcamArgs struct {
	Device string `json:"device"`
}

func (s *Server) handleCaptureWebcam(args json.RawMessage) (interface{}, error) {
	var a captureWebcamArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Device == "" {
		a.Device = s.cfg.WebcamDevice
	}

	buf, err := s.grabFrame(a.Device, s.tracker)
	if err != nil {
		return nil, err
	}
	return s.loadBuffer(buf, "webcam:"+a.Device, "raw")
}

// === Edit Handlers ===

type applyColorArgs struct {
	Mode      string `json:"mode"`
	Threshold *int   `json:"threshold,omitempty"`
}

type applyResult struct {
	Operation history.Operation `json:"operation"`
	State     history.State     `json:"state"`
}

func (s *Server) handleApplyColor(args json.RawMessage) (interface{}, error) {
	var a applyColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	mode, err := parseColorMode(a.Mode)
	if err != nil {
		return nil, err
	}

	var params history.Params
	if a.Threshold != nil {
		if mode != history.ColorBinary {
			return nil, fmt.Errorf("%w: threshold only applies to binary", history.ErrInvalidParameter)
		}
		params = history.BinaryParams{Threshold: *a.Threshold}
	}

	op, err := s.engine.ApplyColor(mode, params)
	if err != nil {
		return nil, err
	}
	return &applyResult{Operation: op, State: s.engine.State()}, nil
}

type applyGeometricArgs struct {
	Operation string `json:"operation"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
}

func (s *Server) handleApplyGeometric(args json.RawMessage) (interface{}, error) {
	var a applyGeometricArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	op, err := parseGeometricOp(a.Operation)
	if err != nil {
		return nil, err
	}

	var params history.Params
	if a.Width != nil || a.Height != nil {
		if op != history.GeometricResize {
			return nil, fmt.Errorf("%w: width and height only apply to resize", history.ErrInvalidParameter)
		}
		p := history.ResizeParams{}
		if a.Width != nil {
			p.Width = *a.Width
		}
		if a.Height != nil {
			p.Height = *a.Height
		}
		params = p
	}

	operation, err := s.engine.ApplyGeometric(op, params)
	if err != nil {
		return nil, err
	}
	return &applyResult{Operation: operation, State: s.engine.State()}, nil
}

// parseColorMode accepts mode names case-insensitively.
func parseColorMode(name string) (history.ColorMode, error) {
	mode := history.ColorMode(strings.ToLower(strings.TrimSpace(name)))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: unknown color mode %q (use original, grayscale, hsv or binary)", history.ErrInvalidParameter, name)
	}
	return mode, nil
}

var geometricAliases = map[string]history.GeometricOp{
	"fliphorizontal": history.GeometricFlipHorizontal,
	"flip_h":         history.GeometricFlipHorizontal,
	"flipvertical":   history.GeometricFlipVertical,
	"flip_v":         history.GeometricFlipVertical,
	"crop":           history.GeometricCropCenter,
	"cropcenter":     history.GeometricCropCenter,
}

// parseGeometricOp accepts operation names case-insensitively, plus the
// camelCase spellings (flipHorizontal, crop) used by web clients.
func parseGeometricOp(name string) (history.GeometricOp, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if op, ok := geometricAliases[key]; ok {
		return op, nil
	}
	op := history.GeometricOp(key)
	if !op.Valid() {
		return "", fmt.Errorf("%w: unknown geometric operation %q", history.ErrInvalidParameter, name)
	}
	return op, nil
}

// === History Handlers ===

type navigationResult struct {
	Moved bool          `json:"moved"`
	State history.State `json:"state"`
}

func (s *Server) handleUndo() (interface{}, error) {
	if !s.engine.Loaded() {
		return nil, history.ErrInvalidState
	}
	moved := s.engine.Undo()
	return &navigationResult{Moved: moved, State: s.engine.State()}, nil
}

func (s *Server) handleRedo() (interface{}, error) {
	if !s.engine.Loaded() {
		return nil, history.ErrInvalidState
	}
	moved := s.engine.Redo()
	return &navigationResult{Moved: moved, State: s.engine.State()}, nil
}

type indexArgs struct {
	Index *int `json:"index"`
}

func (a indexArgs) value() (int, error) {
	if a.Index == nil {
		return 0, fmt.Errorf("%w: index is required", history.ErrInvalidParameter)
	}
	return *a.Index, nil
}

func (s *Server) handleJump(args json.RawMessage) (interface{}, error) {
	var a indexArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	index, err := a.value()
	if err != nil {
		return nil, err
	}
	if err := s.engine.JumpTo(index); err != nil {
		return nil, err
	}
	return s.engine.State(), nil
}

func (s *Server) handleDeleteOperation(args json.RawMessage) (interface{}, error) {
	var a indexArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	index, err := a.value()
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeleteOperation(index); err != nil {
		return nil, err
	}
	return s.engine.State(), nil
}

func (s *Server) handleReset() (interface{}, error) {
	s.engine.Reset()
	return s.engine.State(), nil
}

// === Output Handlers ===

type imageViewArgs struct {
	Scale  float64 `json:"scale"`
	Region string  `json:"region"`
}

// encodeView renders a named region of b, or all of it, as PNG.
func encodeView(b *imaging.Buffer, region string, scale float64) (*imaging.EncodedImage, error) {
	if region == "" {
		return imaging.EncodePNG(b, scale)
	}
	rect, err := imaging.NamedRegion(region, b.Width(), b.Height())
	if err != nil {
		return nil, err
	}
	return imaging.EncodeRegion(b, rect, scale)
}

type imageView struct {
	*imaging.EncodedImage
	Cursor    int               `json:"cursor"`
	ColorMode history.ColorMode `json:"color_mode"`
}

func (s *Server) handleImageCurrent(args json.RawMessage) (interface{}, error) {
	var a imageViewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	var view imageView
	err := s.engine.WithCurrent(func(b *imaging.Buffer) error {
		enc, err := encodeView(b, a.Region, a.Scale)
		if err != nil {
			return err
		}
		view.EncodedImage = enc
		return nil
	})
	if err != nil {
		return nil, err
	}
	view.Cursor = s.engine.Cursor()
	view.ColorMode = s.engine.CurrentColorMode()
	return &view, nil
}

func (s *Server) handleImageOriginal(args json.RawMessage) (interface{}, error) {
	var a imageViewArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	var enc *imaging.EncodedImage
	err := s.engine.WithBase(func(b *imaging.Buffer) error {
		var err error
		enc, err = encodeView(b, a.Region, a.Scale)
		return err
	})
	if err != nil {
		return nil, err
	}
	return enc, nil
}

type imageExportArgs struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}

func (s *Server) handleImageExport(args json.RawMessage) (interface{}, error) {
	var a imageExportArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		ops := s.engine.CurrentOperations()
		names := make([]string, len(ops))
		for i, op := range ops {
			names[i] = op.Name
		}
		a.Path = imaging.ExportPath(s.cfg.ExportDir, imaging.ExportFileName(names))
	}

	var res *imaging.ExportResult
	err := s.engine.WithCurrent(func(b *imaging.Buffer) error {
		var err error
		res, err = imaging.Export(b, a.Path, a.Format)
		return err
	})
	if err != nil {
		return nil, err
	}
	// A later image_load of the same path must decode the new file.
	s.cache.Evict(a.Path)
	s.cache.Evict(res.Path)
	s.logger.WithField("path", res.Path).Info("image exported")
	return res, nil
}

// === Inspection Handlers ===

type sampleColorArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Server) handleSampleColor(args json.RawMessage) (interface{}, error) {
	var a sampleColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var res *imaging.ColorResult
	err := s.engine.WithCurrent(func(b *imaging.Buffer) error {
		var err error
		res, err = imaging.SampleColor(b, a.X, a.Y)
		return err
	})
	return res, err
}

type dominantColorsArgs struct {
	Count int `json:"count"`
}

func (s *Server) handleDominantColors(args json.RawMessage) (interface{}, error) {
	var a dominantColorsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Count == 0 {
		a.Count = 5
	}

	var res *imaging.DominantColorsResult
	err := s.engine.WithCurrent(func(b *imaging.Buffer) error {
		var err error
		res, err = imaging.DominantColors(b, a.Count)
		return err
	})
	return res, err
}

type ocrArgs struct {
	Language string `json:"language"`
}

func (s *Server) handleOCR(args json.RawMessage) (interface{}, error) {
	var a ocrArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Language == "" {
		a.Language = s.cfg.OCRLanguage
	}

	var res interface{}
	err := s.engine.WithCurrent(func(b *imaging.Buffer) error {
		r, err := s.extractOCR(b, a.Language)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}
