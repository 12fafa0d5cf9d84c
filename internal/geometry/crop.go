package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/facegate/internal/types"
)

var (
	// ErrInvalidView is returned when the preview dimensions cannot be used as a divisor.
	ErrInvalidView = errors.New("preview dimensions must be positive")
	// ErrEmptyCrop is returned when the scaled box does not overlap the photo at all.
	ErrEmptyCrop = errors.New("crop rectangle lies outside the photo")
)

// ScaleFactor maps preview coordinates onto photo pixels assuming aspect-fill scaling.
func ScaleFactor(photoW, photoH int, viewW, viewH float64) (float64, error) {
	if viewW <= 0 || viewH <= 0 {
		return 0, ErrInvalidView
	}
	return math.Max(float64(photoW)/viewW, float64(photoH)/viewH), nil
}

// Scale multiplies every field of the box by f.
func Scale(b types.BoundingBox, f float64) types.BoundingBox {
	return types.BoundingBox{
		X:      b.X * f,
		Y:      b.Y * f,
		Width:  b.Width * f,
		Height: b.Height * f,
	}
}

// CropRect derives the pixel-space crop for a face box reported against the preview.
// The scaled box is clamped to the photo; letterboxing is not corrected.
func CropRect(b types.BoundingBox, photoW, photoH int, viewW, viewH float64) (image.Rectangle, error) {
	f, err := ScaleFactor(photoW, photoH, viewW, viewH)
	if err != nil {
		return image.Rectangle{}, err
	}
	s := Scale(b, f)
	r := image.Rect(
		int(math.Round(s.X)),
		int(math.Round(s.Y)),
		int(math.Round(s.X+s.Width)),
		int(math.Round(s.Y+s.Height)),
	).Intersect(image.Rect(0, 0, photoW, photoH))
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: box %+v scaled by %.3f", ErrEmptyCrop, b, f)
	}
	return r, nil
}
