package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// FromImage decodes any image.Image into a new 4-channel RGBA buffer.
//
// The pixel data is converted to non-premultiplied RGBA and re-anchored at the
// origin, whatever the source bounds were. The returned buffer is owned by the
// caller.
func FromImage(img image.Image, tracker *Tracker) (*Buffer, error) {
	return FromNRGBA(imaging.Clone(img), 4, tracker)
}

// FromNRGBA packs an NRGBA image into a buffer with the requested channel
// count:
//   - 1: the R component of each pixel (callers pass gray images whose R, G
//     and B are equal)
//   - 3: R, G and B, alpha dropped
//   - 4: R, G, B and A
//
// The source is not modified or retained.
func FromNRGBA(src *image.NRGBA, channels int, tracker *Tracker) (*Buffer, error) {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if err := validateShape(width, height, channels); err != nil {
		return nil, err
	}

	pix := make([]uint8, width*height*channels)
	for y := 0; y < height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+width*4]
		out := pix[y*width*channels : (y+1)*width*channels]
		switch channels {
		case 4:
			copy(out, row)
		case 3:
			for x := 0; x < width; x++ {
				out[x*3] = row[x*4]
				out[x*3+1] = row[x*4+1]
				out[x*3+2] = row[x*4+2]
			}
		case 1:
			for x := 0; x < width; x++ {
				out[x] = row[x*4]
			}
		}
	}
	return newBuffer(pix, width, height, channels, tracker), nil
}

// NRGBA expands the buffer into a new NRGBA image. Single-channel values are
// replicated into R, G and B; 3-channel pixels become opaque. The returned
// image does not alias the buffer and stays valid after Release.
func (b *Buffer) NRGBA() *image.NRGBA {
	b.mustLive()
	dst := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	switch b.channels {
	case 4:
		copy(dst.Pix, b.pix)
	case 3:
		for i, j := 0, 0; i < len(b.pix); i, j = i+3, j+4 {
			dst.Pix[j] = b.pix[i]
			dst.Pix[j+1] = b.pix[i+1]
			dst.Pix[j+2] = b.pix[i+2]
			dst.Pix[j+3] = 0xff
		}
	case 1:
		for i, j := 0, 0; i < len(b.pix); i, j = i+1, j+4 {
			v := b.pix[i]
			dst.Pix[j] = v
			dst.Pix[j+1] = v
			dst.Pix[j+2] = v
			dst.Pix[j+3] = 0xff
		}
	}
	return dst
}

// Image returns a standalone copy of the buffer as an image.Image suitable for
// encoding or display: *image.Gray for single-channel buffers, *image.NRGBA
// otherwise.
func (b *Buffer) Image() image.Image {
	b.mustLive()
	if b.channels == 1 {
		g := image.NewGray(image.Rect(0, 0, b.width, b.height))
		copy(g.Pix, b.pix)
		return g
	}
	return b.NRGBA()
}
