package history

import "errors"

var (
	// ErrInvalidState is returned when a call needs a loaded image and the
	// engine is empty.
	ErrInvalidState = errors.New("no image loaded")

	// ErrInvalidParameter is returned for unknown modes or operations and for
	// out-of-range options. The transform is never invoked.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrTransformFailure wraps an error reported by the Transformer.
	ErrTransformFailure = errors.New("transform failed")

	// ErrIndexOutOfRange is returned by JumpTo and DeleteOperation.
	ErrIndexOutOfRange = errors.New("index out of range")
)
