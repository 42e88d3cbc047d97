// Package transform implements the pixel kernels applied by the edit history:
// the color modes Original, Grayscale, HSV and Binary, and the geometric
// operations Rotate90 (clockwise), Rotate180, FlipHorizontal, FlipVertical,
// CropCenter and Resize.
//
// Every function borrows its source buffer and returns a new buffer owned by
// the caller, attached to the same Tracker as the source.
package transform
