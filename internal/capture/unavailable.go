//go:build !gocv

package capture

import "image"

const available = false

func grab(Device) (image.Image, error) {
	return nil, ErrUnavailable
}
