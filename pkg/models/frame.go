package models

import "fmt"

// Frame represents a single uncompressed video frame or still image,
// packed as interleaved 8-bit RGB rows with no padding.
type Frame struct {
	Width  int    // Frame width in pixels
	Height int    // Frame height in pixels
	Pixels []byte // len must equal Width*Height*3
}

// NewFrame allocates a zeroed frame of the given geometry.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*3),
	}
}

// Validate checks the frame geometry against the pixel buffer.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%d", f.Width, f.Height)
	}
	if len(f.Pixels) != f.Width*f.Height*3 {
		return fmt.Errorf("pixel buffer size %d does not match geometry %dx%d", len(f.Pixels), f.Width, f.Height)
	}
	return nil
}
