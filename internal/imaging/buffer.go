package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
)

// Common errors for buffer construction.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("imaging: invalid dimensions")

	// ErrUnsupportedChannels is returned for channel counts other than 1, 3 or 4.
	ErrUnsupportedChannels = errors.New("imaging: unsupported channel count")

	// ErrPixelDataSize is returned when the pixel slice length does not match
	// width*height*channels.
	ErrPixelDataSize = errors.New("imaging: pixel data does not match dimensions")
)

// Tracker counts buffer allocations and releases.
//
// Every Buffer created with a Tracker (directly, by Clone, or by Derive)
// increments Allocated; every first Release increments Released. A second
// Release of the same buffer is a caller bug: it is not applied again but is
// counted in DoubleReleases so tests can assert it never happens.
//
// Tracker is safe for concurrent use. A nil *Tracker is valid and counts
// nothing.
type Tracker struct {
	allocated      atomic.Int64
	released       atomic.Int64
	doubleReleases atomic.Int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Allocated returns the number of buffers created against this tracker.
func (t *Tracker) Allocated() int64 {
	if t == nil {
		return 0
	}
	return t.allocated.Load()
}

// Released returns the number of buffers released exactly once.
func (t *Tracker) Released() int64 {
	if t == nil {
		return 0
	}
	return t.released.Load()
}

// Live returns the number of buffers allocated and not yet released.
func (t *Tracker) Live() int64 {
	if t == nil {
		return 0
	}
	return t.allocated.Load() - t.released.Load()
}

// DoubleReleases returns how many times Release was called on a buffer that
// had already been released.
func (t *Tracker) DoubleReleases() int64 {
	if t == nil {
		return 0
	}
	return t.doubleReleases.Load()
}

func (t *Tracker) onAlloc() {
	if t != nil {
		t.allocated.Add(1)
	}
}

func (t *Tracker) onRelease(already bool) {
	if t == nil {
		return
	}
	if already {
		t.doubleReleases.Add(1)
		return
	}
	t.released.Add(1)
}

// Buffer is an owned block of interleaved 8-bit pixel data.
//
// A Buffer has exactly one logical owner. Other holders only borrow it for the
// duration of a call. The only way to obtain a second independent owner is
// Clone, which deep-copies the pixels. The owner ends the buffer's life with
// Release; any later access other than Release/Released panics.
//
// # Channel Layout
//
//   - 1 channel: luminance (or a binary mask)
//   - 3 channels: three color components per pixel (RGB, or HSV after an HSV
//     conversion)
//   - 4 channels: RGBA, non-premultiplied
//
// Rows are tightly packed: Stride() == Width()*Channels().
//
// Buffer is not safe for concurrent mutation. Concurrent reads of a live
// buffer are fine.
type Buffer struct {
	pix      []uint8
	width    int
	height   int
	channels int
	released bool
	tracker  *Tracker
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int, tracker *Tracker) (*Buffer, error) {
	if err := validateShape(width, height, channels); err != nil {
		return nil, err
	}
	return newBuffer(make([]uint8, width*height*channels), width, height, channels, tracker), nil
}

// NewBufferFrom wraps pix in a buffer. The buffer takes ownership of pix; the
// caller must not retain or modify it afterwards.
func NewBufferFrom(pix []uint8, width, height, channels int, tracker *Tracker) (*Buffer, error) {
	if err := validateShape(width, height, channels); err != nil {
		return nil, err
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrPixelDataSize, len(pix), width*height*channels)
	}
	return newBuffer(pix, width, height, channels, tracker), nil
}

func newBuffer(pix []uint8, width, height, channels int, tracker *Tracker) *Buffer {
	tracker.onAlloc()
	return &Buffer{
		pix:      pix,
		width:    width,
		height:   height,
		channels: channels,
		tracker:  tracker,
	}
}

func validateShape(width, height, channels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	switch channels {
	case 1, 3, 4:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedChannels, channels)
	}
}

func (b *Buffer) mustLive() {
	if b.released {
		panic("imaging: use of released buffer")
	}
}

// Width returns the width in pixels.
func (b *Buffer) Width() int {
	b.mustLive()
	return b.width
}

// Height returns the height in pixels.
func (b *Buffer) Height() int {
	b.mustLive()
	return b.height
}

// Channels returns the number of interleaved channels per pixel (1, 3 or 4).
func (b *Buffer) Channels() int {
	b.mustLive()
	return b.channels
}

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int {
	b.mustLive()
	return b.width * b.channels
}

// Bounds returns the buffer rectangle anchored at the origin.
func (b *Buffer) Bounds() image.Rectangle {
	b.mustLive()
	return image.Rect(0, 0, b.width, b.height)
}

// Pix returns the underlying pixel slice. The slice is a borrow: it is only
// valid while the buffer is live and must not be modified by non-owners.
func (b *Buffer) Pix() []uint8 {
	b.mustLive()
	return b.pix
}

// Tracker returns the tracker this buffer reports to (possibly nil).
func (b *Buffer) Tracker() *Tracker {
	return b.tracker
}

// Clone returns an independent deep copy that reports to the same tracker.
func (b *Buffer) Clone() *Buffer {
	b.mustLive()
	pix := make([]uint8, len(b.pix))
	copy(pix, b.pix)
	return newBuffer(pix, b.width, b.height, b.channels, b.tracker)
}

// Derive wraps freshly computed pixel data in a new buffer that reports to the
// same tracker as b. Transform kernels use it so results stay accounted for.
func (b *Buffer) Derive(pix []uint8, width, height, channels int) (*Buffer, error) {
	return NewBufferFrom(pix, width, height, channels, b.tracker)
}

// Release ends the buffer's life and drops its pixel data. Releasing twice is
// a caller bug; the second call is counted by the tracker and otherwise
// ignored. Release on a nil buffer is a no-op.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.tracker.onRelease(b.released)
	if b.released {
		return
	}
	b.released = true
	b.pix = nil
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	return b.released
}

// Equal reports whether two live buffers have the same shape and pixels.
func (b *Buffer) Equal(o *Buffer) bool {
	b.mustLive()
	o.mustLive()
	return b.width == o.width &&
		b.height == o.height &&
		b.channels == o.channels &&
		bytes.Equal(b.pix, o.pix)
}

// At returns the channel values of the pixel at (x, y) expanded to RGBA:
// single-channel pixels are replicated into R, G and B, and 3-channel pixels
// get an opaque alpha.
func (b *Buffer) At(x, y int) (r, g, bl, a uint8) {
	b.mustLive()
	i := y*b.width*b.channels + x*b.channels
	switch b.channels {
	case 1:
		v := b.pix[i]
		return v, v, v, 0xff
	case 3:
		return b.pix[i], b.pix[i+1], b.pix[i+2], 0xff
	default:
		return b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3]
	}
}

// BufferInfo describes the shape of a buffer.
type BufferInfo struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

// Info returns the buffer's shape.
func (b *Buffer) Info() BufferInfo {
	b.mustLive()
	return BufferInfo{Width: b.width, Height: b.height, Channels: b.channels}
}
