//go:build tesseract

package ocr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

const available = true

func extract(b *imaging.Buffer, language string) (*Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	result := &Result{
		FullText: text,
		Language: language,
		Regions:  []TextRegion{},
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// text is still useful without boxes
		return result, nil
	}
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		result.Regions = append(result.Regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
	}
	return result, nil
}
