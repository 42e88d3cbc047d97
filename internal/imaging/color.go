package imaging

import (
	"fmt"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// RGBAColor represents an RGBA color with 8-bit components including alpha.
type RGBAColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"` // 0 = fully transparent, 255 = fully opaque
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent
	L int `json:"l"` // Lightness: 0-100 percent
}

// ColorResult contains a pixel value in multiple representations.
//
// Channels carries the raw channel bytes of the buffer at that pixel, which
// matters for buffers whose components are not RGB (an HSV-converted buffer
// stores H, S and V in its three channels). The other fields interpret the
// pixel as RGB(A).
type ColorResult struct {
	Channels []int     `json:"channels"`
	Hex      string    `json:"hex"`  // Hex format "#RRGGBB" (no alpha)
	RGB      RGBColor  `json:"rgb"`  // RGB components
	RGBA     RGBAColor `json:"rgba"` // RGBA components with alpha
	HSL      HSLColor  `json:"hsl"`  // HSL representation
}

// SampleColor reads the pixel at (x, y) of a buffer.
//
// Coordinates are 0-based with origin at top-left:
//   - Valid X range: 0 to width-1
//   - Valid Y range: 0 to height-1
//
// Single-channel pixels are reported as gray (R=G=B). The buffer is borrowed.
func SampleColor(b *Buffer, x, y int) (*ColorResult, error) {
	if x < 0 || x >= b.Width() || y < 0 || y >= b.Height() {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	r, g, bl, a := b.At(x, y)
	i := (y*b.Width() + x) * b.Channels()
	raw := make([]int, b.Channels())
	for c := range raw {
		raw[c] = int(b.Pix()[i+c])
	}

	return &ColorResult{
		Channels: raw,
		Hex:      fmt.Sprintf("#%02X%02X%02X", r, g, bl),
		RGB:      RGBColor{R: r, G: g, B: bl},
		RGBA:     RGBAColor{R: r, G: g, B: bl, A: a},
		HSL:      rgbToHSL(r, g, bl),
	}, nil
}

// ColorFrequency represents a color and its occurrence frequency.
type ColorFrequency struct {
	Hex        string   `json:"hex"`        // Hex color "#RRGGBB" (quantized)
	Percentage float64  `json:"percentage"` // Percentage of pixels with this color (0-100)
	RGB        RGBColor `json:"rgb"`        // RGB components (quantized)
}

// DominantColorsResult contains the most frequent colors sorted by frequency
// in descending order.
type DominantColorsResult struct {
	Colors []ColorFrequency `json:"colors"`
}

// DominantColors returns up to count of the most common colors in a buffer.
//
// Components are quantized to multiples of 16 before counting so that
// near-identical colors group together:
//
//	quantized = (original / 16) * 16
//
// Ties are broken by hex value so results are deterministic.
func DominantColors(b *Buffer, count int) (*DominantColorsResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	type rgb struct{ r, g, b uint8 }
	counts := make(map[rgb]int)
	total := 0
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			r, g, bl, _ := b.At(x, y)
			counts[rgb{r / 16 * 16, g / 16 * 16, bl / 16 * 16}]++
			total++
		}
	}

	colors := make([]ColorFrequency, 0, len(counts))
	for c, n := range counts {
		colors = append(colors, ColorFrequency{
			Hex:        fmt.Sprintf("#%02X%02X%02X", c.r, c.g, c.b),
			Percentage: math.Round(float64(n)/float64(total)*10000) / 100,
			RGB:        RGBColor{R: c.r, G: c.g, B: c.b},
		})
	}

	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})

	if len(colors) > count {
		colors = colors[:count]
	}
	return &DominantColorsResult{Colors: colors}, nil
}

// rgbToHSL converts 8-bit RGB values to HSL with integer degrees and
// percentages.
func rgbToHSL(r, g, b uint8) HSLColor {
	c := colorful.Color{R: float64(r) / 255.0, G: float64(g) / 255.0, B: float64(b) / 255.0}
	h, s, l := c.Hsl()
	return HSLColor{
		H: int(h),
		S: int(s * 100),
		L: int(l * 100),
	}
}
