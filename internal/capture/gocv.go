//go:build gocv

package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const available = true

func grab(d Device) (image.Image, error) {
	var (
		webcam *gocv.VideoCapture
		err    error
	)
	if d.URI != "" {
		webcam, err = gocv.VideoCaptureFile(d.URI)
	} else {
		webcam, err = gocv.VideoCaptureDevice(d.Index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %s: %w", d, err)
	}
	defer webcam.Close()

	if !webcam.IsOpened() {
		return nil, fmt.Errorf("capture device %s is not open", d)
	}

	frame := gocv.NewMat()
	defer frame.Close()

	if ok := webcam.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("no frame read from capture device %s", d)
	}

	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}
