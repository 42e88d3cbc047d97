package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-history-mcp/internal/history"
	pixbuf "github.com/ironsheep/image-history-mcp/internal/imaging"
)

// Library is the buffer transform library used by the history engine. It is
// stateless and safe for concurrent use.
type Library struct{}

var _ history.Transformer = (*Library)(nil)

// New returns a transform library.
func New() *Library {
	return &Library{}
}

// ApplyColor converts src to the given color mode and returns a new buffer
// that inherits src's tracker. src is only read.
//
// Output channel counts:
//   - Original: same as src (exact copy)
//   - Grayscale: 1 (a copy when src is already single-channel)
//   - HSV: 3, H in [0,180), S and V in [0,255]
//   - Binary: 1, 255 where gray > threshold and 0 elsewhere
func (l *Library) ApplyColor(src *pixbuf.Buffer, mode history.ColorMode, params history.Params) (*pixbuf.Buffer, error) {
	switch mode {
	case history.ColorOriginal:
		return src.Clone(), nil
	case history.ColorGrayscale:
		return Grayscale(src)
	case history.ColorHSV:
		return HSV(src)
	case history.ColorBinary:
		threshold := history.DefaultBinaryThreshold
		if p, ok := params.(history.BinaryParams); ok {
			threshold = p.Threshold
		}
		return Binary(src, threshold)
	default:
		return nil, fmt.Errorf("unsupported color mode: %s", mode)
	}
}

// ApplyGeometric applies op to src and returns a new buffer with the same
// channel count and tracker. src is only read.
func (l *Library) ApplyGeometric(src *pixbuf.Buffer, op history.GeometricOp, params history.Params) (*pixbuf.Buffer, error) {
	img := src.NRGBA()

	var out *image.NRGBA
	switch op {
	case history.GeometricRotate90:
		// imaging rotates counter-clockwise
		out = imaging.Rotate270(img)
	case history.GeometricRotate180:
		out = imaging.Rotate180(img)
	case history.GeometricFlipHorizontal:
		out = imaging.FlipH(img)
	case history.GeometricFlipVertical:
		out = imaging.FlipV(img)
	case history.GeometricCropCenter:
		out = imaging.Crop(img, CenterSquare(src.Width(), src.Height()))
	case history.GeometricResize:
		width, height := history.DefaultResizeWidth, history.DefaultResizeHeight
		if p, ok := params.(history.ResizeParams); ok {
			width, height = p.Width, p.Height
		}
		if width <= 0 || height <= 0 {
			return nil, fmt.Errorf("resize dimensions must be positive, got %dx%d", width, height)
		}
		out = imaging.Resize(img, width, height, imaging.Linear)
	default:
		return nil, fmt.Errorf("unsupported geometric operation: %s", op)
	}

	return pixbuf.FromNRGBA(out, src.Channels(), src.Tracker())
}

// CenterSquare returns the centered square covering 70% of the shorter side
// of a width x height image. The side is at least one pixel.
func CenterSquare(width, height int) image.Rectangle {
	side := min(width, height) * 7 / 10
	if side < 1 {
		side = 1
	}
	x0 := (width - side) / 2
	y0 := (height - side) / 2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// Grayscale returns the luminance of src as a single-channel buffer. A
// single-channel src is copied unchanged.
func Grayscale(src *pixbuf.Buffer) (*pixbuf.Buffer, error) {
	if src.Channels() == 1 {
		return src.Clone(), nil
	}
	return pixbuf.FromNRGBA(imaging.Grayscale(src.NRGBA()), 1, src.Tracker())
}

// HSV converts src to a 3-channel buffer holding 8-bit H, S and V. Hue is
// halved to fit a byte, so it ranges over [0,180). Single-channel sources are
// widened to RGB first; alpha is dropped.
func HSV(src *pixbuf.Buffer) (*pixbuf.Buffer, error) {
	rgba := src.NRGBA()
	pix := make([]uint8, src.Width()*src.Height()*3)

	for i, j := 0, 0; i < len(rgba.Pix); i, j = i+4, j+3 {
		c := colorful.Color{
			R: float64(rgba.Pix[i]) / 255.0,
			G: float64(rgba.Pix[i+1]) / 255.0,
			B: float64(rgba.Pix[i+2]) / 255.0,
		}
		h, s, v := c.Hsv()
		pix[j] = uint8(int(math.Round(h/2)) % 180)
		pix[j+1] = uint8(math.Round(s * 255))
		pix[j+2] = uint8(math.Round(v * 255))
	}

	return src.Derive(pix, src.Width(), src.Height(), 3)
}

// Binary thresholds the luminance of src: pixels strictly greater than
// threshold become 255, all others 0. The result is single-channel.
func Binary(src *pixbuf.Buffer, threshold int) (*pixbuf.Buffer, error) {
	if threshold < 0 || threshold > 255 {
		return nil, fmt.Errorf("threshold %d outside [0,255]", threshold)
	}

	gray, err := Grayscale(src)
	if err != nil {
		return nil, err
	}
	defer gray.Release()

	in := gray.Pix()
	pix := make([]uint8, len(in))
	for i, v := range in {
		if int(v) > threshold {
			pix[i] = 255
		}
	}
	return src.Derive(pix, src.Width(), src.Height(), 1)
}
