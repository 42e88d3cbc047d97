// Package ocr extracts text from image buffers with Tesseract.
//
// Tesseract support is compiled in with the "tesseract" build tag, which
// needs cgo and the Tesseract/Leptonica development libraries:
//
//	go build -tags tesseract ./...
//
// Without the tag every call returns ErrUnavailable, so the rest of the
// server builds as pure Go.
//
// Language data must be installed for each language requested
// ("eng", "deu", "fra", ...).
package ocr

import (
	"errors"

	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

// ErrUnavailable is returned when the binary was built without Tesseract.
var ErrUnavailable = errors.New("ocr: built without tesseract support (rebuild with -tags tesseract)")

// DefaultLanguage is used when no language is given.
const DefaultLanguage = "eng"

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion is one recognized word with its location.
type TextRegion struct {
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	Bounds Bounds `json:"bounds"`
}

// Result contains the text recognized in a buffer.
type Result struct {
	// FullText is all recognized text with the engine's spacing and newlines.
	FullText string `json:"full_text"`

	Language string `json:"language"`

	// Regions holds word-level boxes. It may be empty when box extraction
	// fails; FullText is still filled in.
	Regions []TextRegion `json:"regions"`
}

// Extract recognizes text in b. The buffer is only borrowed: it is encoded
// to PNG before the call returns. Binary and grayscale buffers usually
// recognize best.
func Extract(b *imaging.Buffer, language string) (*Result, error) {
	if language == "" {
		language = DefaultLanguage
	}
	return extract(b, language)
}

// Available reports whether Tesseract support is compiled in.
func Available() bool {
	return available
}
