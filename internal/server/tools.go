package server

import (
	"github.com/ironsheep/image-history-mcp/internal/history"
	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func viewSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"region": map[string]interface{}{
				"type":        "string",
				"enum":        imaging.Regions,
				"description": "Optional named region to zoom into. Default full",
			},
			"scale": map[string]interface{}{
				"type":        "number",
				"description": "Optional scale factor for the returned PNG (e.g., 0.5 for half size). Default 1.0",
				"default":     1.0,
			},
		},
	}
}

func indexSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"minimum":     0,
				"description": description,
			},
		},
		"required": []string{"index"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	colorModes := make([]string, len(history.ColorModes))
	for i, m := range history.ColorModes {
		colorModes[i] = string(m)
	}
	geometricOps := make([]string, len(history.GeometricOps))
	for i, op := range history.GeometricOps {
		geometricOps[i] = string(op)
	}

	return []Tool{
		// Input
		{
			Name:        "image_load",
			Description: "Load an image as the new base image. Discards the current edit history and all derived images.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"image_base64": map[string]interface{}{
						"type":        "string",
						"description": "Base64-encoded image data (PNG, JPEG, GIF, BMP, TIFF or WebP). A data: URL prefix is accepted.",
					},
				},
			},
		},
		{
			Name:        "image_capture_webcam",
			Description: "Grab one frame from a camera and load it as the new base image. Requires a build with camera support.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"device": map[string]interface{}{
						"type":        "string",
						"description": "Camera index (\"0\") or video file/stream URI. Defaults to the configured device.",
					},
				},
			},
		},

		// Edits
		{
			Name:        "image_apply_color",
			Description: "Apply a color-space conversion. Color conversions are always computed from the original image, so they replace any earlier color mode while discarding geometric edits from the displayed result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"mode": map[string]interface{}{
						"type":        "string",
						"enum":        colorModes,
						"description": "Color mode to convert to",
					},
					"threshold": map[string]interface{}{
						"type":        "integer",
						"minimum":     0,
						"maximum":     255,
						"description": "Binary threshold; pixels brighter than this become white. Default 120",
						"default":     history.DefaultBinaryThreshold,
					},
				},
				"required": []string{"mode"},
			},
		},
		{
			Name:        "image_apply_geometric",
			Description: "Apply a geometric transform to the currently displayed image. Geometric edits accumulate and keep the current color mode.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"operation": map[string]interface{}{
						"type":        "string",
						"enum":        geometricOps,
						"description": "Geometric operation. rotate90 turns clockwise; crop_center keeps a centered square of 70% of the shorter side.",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"description": "Resize width in pixels. Default 300",
						"default":     history.DefaultResizeWidth,
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"description": "Resize height in pixels. Default 300",
						"default":     history.DefaultResizeHeight,
					},
				},
				"required": []string{"operation"},
			},
		},

		// History
		{
			Name:        "history_undo",
			Description: "Step back one entry in the history. Reports moved=false at the original image.",
			InputSchema: noArgs(),
		},
		{
			Name:        "history_redo",
			Description: "Step forward one entry in the history. Reports moved=false when there is nothing to redo.",
			InputSchema: noArgs(),
		},
		{
			Name:        "history_jump",
			Description: "Display a specific history entry. Entry 0 is the original image and entry k the result of the first k operations.",
			InputSchema: indexSchema("History entry index"),
		},
		{
			Name:        "history_delete_operation",
			Description: "Remove one operation from the log and recompute every entry from the original image. The display moves to the newest entry.",
			InputSchema: indexSchema("Operation index (0-based) in the operation log"),
		},
		{
			Name:        "history_reset",
			Description: "Discard the loaded image and its whole history.",
			InputSchema: noArgs(),
		},
		{
			Name:        "history_state",
			Description: "Return the operation log, history entries, cursor and undo/redo availability.",
			InputSchema: noArgs(),
		},

		// Output
		{
			Name:        "image_current",
			Description: "Return the currently displayed image, or a named region of it, as base64-encoded PNG. Viewing never changes the history.",
			InputSchema: viewSchema(),
		},
		{
			Name:        "image_original",
			Description: "Return the original loaded image, or a named region of it, as base64-encoded PNG.",
			InputSchema: viewSchema(),
		},
		{
			Name:        "image_export",
			Description: "Write the currently displayed image to disk. Without a path the file is named after the applied operations, e.g. processed_Grayscale_Rotate_90.png.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Destination file path. Defaults to the configured export directory",
					},
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"png", "jpeg", "bmp"},
						"description": "Output format. Defaults to the path extension, then png",
					},
				},
			},
		},

		// Inspection
		{
			Name:        "image_sample_color",
			Description: "Get the exact channel values at a pixel of the currently displayed image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate (0-based, from top)",
					},
				},
				"required": []string{"x", "y"},
			},
		},
		{
			Name:        "image_dominant_colors",
			Description: "Extract the most common colors of the currently displayed image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"count": map[string]interface{}{
						"type":        "integer",
						"minimum":     1,
						"maximum":     20,
						"description": "Number of colors to return. Default 5",
						"default":     5,
					},
				},
			},
		},
		{
			Name:        "image_ocr",
			Description: "Extract text and word bounding boxes from the currently displayed image. Requires a build with Tesseract support.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Tesseract language code. Defaults to the configured language",
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
