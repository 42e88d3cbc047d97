package history

import (
	"fmt"
	"time"
)

// ColorMode selects a color transformation. Color operations are always
// computed from the base image.
type ColorMode string

const (
	ColorOriginal  ColorMode = "original"
	ColorGrayscale ColorMode = "grayscale"
	ColorHSV       ColorMode = "hsv"
	ColorBinary    ColorMode = "binary"
)

// ColorModes lists every supported color mode in display order.
var ColorModes = []ColorMode{ColorOriginal, ColorGrayscale, ColorHSV, ColorBinary}

// Valid reports whether m is a known color mode.
func (m ColorMode) Valid() bool {
	switch m {
	case ColorOriginal, ColorGrayscale, ColorHSV, ColorBinary:
		return true
	}
	return false
}

// DisplayName returns the label shown for an operation in this mode.
func (m ColorMode) DisplayName() string {
	switch m {
	case ColorOriginal:
		return "Original"
	case ColorGrayscale:
		return "Grayscale"
	case ColorHSV:
		return "HSV"
	case ColorBinary:
		return "Binary"
	}
	return string(m)
}

// GeometricOp selects a geometric transformation. Geometric operations are
// computed from the buffer at the cursor, so they accumulate.
type GeometricOp string

const (
	GeometricRotate90       GeometricOp = "rotate90"
	GeometricRotate180      GeometricOp = "rotate180"
	GeometricFlipHorizontal GeometricOp = "flip_horizontal"
	GeometricFlipVertical   GeometricOp = "flip_vertical"
	GeometricCropCenter     GeometricOp = "crop_center"
	GeometricResize         GeometricOp = "resize"
)

// GeometricOps lists every supported geometric operation in display order.
var GeometricOps = []GeometricOp{
	GeometricRotate90,
	GeometricRotate180,
	GeometricFlipHorizontal,
	GeometricFlipVertical,
	GeometricCropCenter,
	GeometricResize,
}

// Valid reports whether op is a known geometric operation.
func (op GeometricOp) Valid() bool {
	switch op {
	case GeometricRotate90, GeometricRotate180, GeometricFlipHorizontal,
		GeometricFlipVertical, GeometricCropCenter, GeometricResize:
		return true
	}
	return false
}

func (op GeometricOp) displayName(params Params) string {
	switch op {
	case GeometricRotate90:
		return "Rotate 90°"
	case GeometricRotate180:
		return "Rotate 180°"
	case GeometricFlipHorizontal:
		return "Flip H"
	case GeometricFlipVertical:
		return "Flip V"
	case GeometricCropCenter:
		return "Crop Center"
	case GeometricResize:
		if p, ok := params.(ResizeParams); ok {
			return fmt.Sprintf("Resize %dx%d", p.Width, p.Height)
		}
		return "Resize"
	}
	return string(op)
}

// Kind distinguishes color operations from geometric ones.
type Kind string

const (
	KindColor     Kind = "color"
	KindGeometric Kind = "geometric"
)

// Params carries the options of a single operation. The concrete type is
// BinaryParams or ResizeParams; operations without options carry nil.
type Params interface {
	Validate() error
	params()
}

const (
	// DefaultBinaryThreshold is used when Binary is applied without a threshold.
	DefaultBinaryThreshold = 120

	// DefaultResizeWidth and DefaultResizeHeight are used when Resize is
	// applied without dimensions.
	DefaultResizeWidth  = 300
	DefaultResizeHeight = 300
)

// BinaryParams configures the Binary color mode. Pixels brighter than
// Threshold become white, the rest black.
type BinaryParams struct {
	Threshold int `json:"threshold"`
}

func (BinaryParams) params() {}

// Validate checks that the threshold lies in [0,255].
func (p BinaryParams) Validate() error {
	if p.Threshold < 0 || p.Threshold > 255 {
		return fmt.Errorf("%w: binary threshold %d outside [0,255]", ErrInvalidParameter, p.Threshold)
	}
	return nil
}

// ResizeParams configures the Resize geometric operation.
type ResizeParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (ResizeParams) params() {}

// Validate checks that both dimensions are positive.
func (p ResizeParams) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: resize dimensions must be positive, got %dx%d", ErrInvalidParameter, p.Width, p.Height)
	}
	return nil
}

// Operation is one immutable step of the edit log.
//
// Exactly one of ColorMode and GeometricOp is set, matching Kind. Params is
// normalized when the operation is created: Binary always carries a
// BinaryParams and Resize always carries a ResizeParams, so replaying the log
// reproduces exactly what was applied.
type Operation struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Name        string      `json:"name"`
	CreatedAt   time.Time   `json:"created_at"`
	ColorMode   ColorMode   `json:"color_mode,omitempty"`
	GeometricOp GeometricOp `json:"geometric_op,omitempty"`
	Params      Params      `json:"params,omitempty"`
}

// normalizeColor validates the options for mode and fills in defaults.
func normalizeColor(mode ColorMode, params Params) (Params, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown color mode %q", ErrInvalidParameter, mode)
	}
	if mode != ColorBinary {
		if params != nil {
			return nil, fmt.Errorf("%w: color mode %s takes no options", ErrInvalidParameter, mode)
		}
		return nil, nil
	}

	switch p := params.(type) {
	case nil:
		return BinaryParams{Threshold: DefaultBinaryThreshold}, nil
	case BinaryParams:
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case *BinaryParams:
		if p == nil {
			return BinaryParams{Threshold: DefaultBinaryThreshold}, nil
		}
		return normalizeColor(mode, *p)
	default:
		return nil, fmt.Errorf("%w: binary expects BinaryParams, got %T", ErrInvalidParameter, params)
	}
}

// normalizeGeometric validates the options for op and fills in defaults.
func normalizeGeometric(op GeometricOp, params Params) (Params, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown geometric operation %q", ErrInvalidParameter, op)
	}
	if op != GeometricResize {
		if params != nil {
			return nil, fmt.Errorf("%w: %s takes no options", ErrInvalidParameter, op)
		}
		return nil, nil
	}

	switch p := params.(type) {
	case nil:
		return ResizeParams{Width: DefaultResizeWidth, Height: DefaultResizeHeight}, nil
	case ResizeParams:
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case *ResizeParams:
		if p == nil {
			return ResizeParams{Width: DefaultResizeWidth, Height: DefaultResizeHeight}, nil
		}
		return normalizeGeometric(op, *p)
	default:
		return nil, fmt.Errorf("%w: resize expects ResizeParams, got %T", ErrInvalidParameter, params)
	}
}
