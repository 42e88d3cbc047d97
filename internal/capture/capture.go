// Package capture grabs single frames from a webcam or video source.
//
// OpenCV support is compiled in with the "gocv" build tag; without it
// Frame returns ErrUnavailable.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("capture: built without webcam support (rebuild with -tags gocv)")

// Device identifies a capture source: a camera index or a file/stream URL.
type Device struct {
	Index int
	URI   string
}

func (d Device) String() string {
	if d.URI != "" {
		return d.URI
	}
	return strconv.Itoa(d.Index)
}

// ParseDevice interprets s as a camera index when it is a non-negative
// integer and as a file or stream URL otherwise. Empty means camera 0.
func ParseDevice(s string) (Device, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Device{}, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return Device{}, fmt.Errorf("invalid camera index %d", n)
		}
		return Device{Index: n}, nil
	}
	return Device{URI: s}, nil
}

// Frame reads one frame from device and returns it as a new 4-channel buffer
// owned by the caller.
func Frame(device string, tracker *imaging.Tracker) (*imaging.Buffer, error) {
	d, err := ParseDevice(device)
	if err != nil {
		return nil, err
	}
	img, err := grab(d)
	if err != nil {
		return nil, err
	}
	return imaging.FromImage(img, tracker)
}

// Available reports whether OpenCV capture support is compiled in.
func Available() bool {
	return available
}
