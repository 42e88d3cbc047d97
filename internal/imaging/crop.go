package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Regions lists the names accepted by NamedRegion.
var Regions = []string{
	"full", "top-left", "top-right", "bottom-left", "bottom-right",
	"top-half", "bottom-half", "left-half", "right-half", "center",
}

// NamedRegion returns the rectangle of a width x height image that a region
// name refers to. "center" is the middle 50% in each direction; an empty
// name means the full image.
func NamedRegion(region string, width, height int) (image.Rectangle, error) {
	midX := width / 2
	midY := height / 2

	var x1, y1, x2, y2 int
	switch region {
	case "", "full":
		x1, y1, x2, y2 = 0, 0, width, height
	case "top-left":
		x1, y1, x2, y2 = 0, 0, midX, midY
	case "top-right":
		x1, y1, x2, y2 = midX, 0, width, midY
	case "bottom-left":
		x1, y1, x2, y2 = 0, midY, midX, height
	case "bottom-right":
		x1, y1, x2, y2 = midX, midY, width, height
	case "top-half":
		x1, y1, x2, y2 = 0, 0, width, midY
	case "bottom-half":
		x1, y1, x2, y2 = 0, midY, width, height
	case "left-half":
		x1, y1, x2, y2 = 0, 0, midX, height
	case "right-half":
		x1, y1, x2, y2 = midX, 0, width, height
	case "center":
		qW := width / 4
		qH := height / 4
		x1, y1, x2, y2 = qW, qH, width-qW, height-qH
	default:
		return image.Rectangle{}, fmt.Errorf("unknown region: %s", region)
	}

	r := image.Rect(x1, y1, x2, y2)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("region %s of a %dx%d image is empty", region, width, height)
	}
	return r, nil
}

// EncodeRegion renders rect of the buffer as a base64 PNG, scaled like
// EncodePNG. It is a view only: the buffer is borrowed and no new buffer is
// created.
func EncodeRegion(b *Buffer, rect image.Rectangle, scale float64) (*EncodedImage, error) {
	if !rect.In(b.Bounds()) || rect.Empty() {
		return nil, fmt.Errorf("region (%d,%d)-(%d,%d) outside image bounds %dx%d",
			rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y, b.Width(), b.Height())
	}
	var img image.Image = b.Image()
	if rect != b.Bounds() {
		img = imaging.Crop(img, rect)
	}
	return encodeImage(img, b.Channels(), scale)
}
