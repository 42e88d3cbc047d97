package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
)

// EncodedImage contains a buffer rendered as base64-encoded PNG.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Channels    int    `json:"channels"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG renders the buffer as a base64 PNG. A scale other than 1 (and
// greater than 0) resizes the rendered copy with a Lanczos filter; the buffer
// itself is only borrowed and never modified.
func EncodePNG(b *Buffer, scale float64) (*EncodedImage, error) {
	return encodeImage(b.Image(), b.Channels(), scale)
}

func encodeImage(img image.Image, channels int, scale float64) (*EncodedImage, error) {
	if scale != 1.0 && scale > 0 {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		newWidth := int(float64(w) * scale)
		newHeight := int(float64(h) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("scale %.3f collapses a %dx%d image", scale, w, h)
		}
		img = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		Channels:    channels,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// ExportResult describes a buffer written to disk.
type ExportResult struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Export writes the buffer to path. The encoder is chosen from format
// ("png", "jpeg", "bmp"); an empty format is inferred from the path's
// extension and defaults to PNG.
func Export(b *Buffer, path, format string) (*ExportResult, error) {
	if format == "" {
		format = formatFromExt(path)
	}

	var enc imgio.Encoder
	switch format {
	case "png", "unknown":
		format = "png"
		enc = imgio.PNGEncoder()
	case "jpeg", "jpg":
		format = "jpeg"
		enc = imgio.JPEGEncoder(95)
	case "bmp":
		enc = imgio.BMPEncoder()
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}

	if err := imgio.Save(path, b.Image(), enc); err != nil {
		return nil, fmt.Errorf("failed to export image: %w", err)
	}

	return &ExportResult{
		Path:   path,
		Format: format,
		Width:  b.Width(),
		Height: b.Height(),
	}, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportFileName builds the default download name for a processed image from
// the display names of the applied operations, e.g.
// "processed_Grayscale_Rotate_90.png". With no operations it returns
// "processed_image.png".
func ExportFileName(names []string) string {
	if len(names) == 0 {
		return "processed_image.png"
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		s := strings.Trim(unsafeNameChars.ReplaceAllString(n, "_"), "_")
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "processed_image.png"
	}
	return "processed_" + strings.Join(parts, "_") + ".png"
}

// ExportPath joins dir and name, keeping name when dir is empty.
func ExportPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
