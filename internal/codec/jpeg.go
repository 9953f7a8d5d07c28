package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"edgelink/pkg/models"
)

// DefaultJPEGQuality matches the common default of native JPEG encoders.
const DefaultJPEGQuality = 95

// EncodeJPEG compresses a raw frame into a JPEG image. JPEG frames are
// self-contained, so the channel layer treats them as stateless: no
// per-stream encoder is registered and no keyframe handling applies.
func EncodeJPEG(frame *models.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		src := frame.Pixels[y*frame.Width*3:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < frame.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJPEG decompresses a JPEG image into a raw frame.
func DecodeJPEG(data []byte) (*models.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}

	bounds := img.Bounds()
	frame := models.NewFrame(bounds.Dx(), bounds.Dy())
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			frame.Pixels[i+0] = byte(r >> 8)
			frame.Pixels[i+1] = byte(g >> 8)
			frame.Pixels[i+2] = byte(b >> 8)
			i += 3
		}
	}
	return frame, nil
}
