//go:build !tesseract

package ocr

import "github.com/ironsheep/image-history-mcp/internal/imaging"

const available = false

func extract(*imaging.Buffer, string) (*Result, error) {
	return nil, ErrUnavailable
}
