// Package detect adapts face detectors to the DetectedFace stream the admission gate consumes.
package detect

import (
	"context"
	"errors"
	"image"

	"github.com/andresmejia3/facegate/internal/types"
	"golang.org/x/image/draw"
)

// ErrUnavailable marks a detector that can no longer serve frames.
var ErrUnavailable = errors.New("face detector unavailable")

// Detector reports the faces visible in one preview frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.DetectedFace, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]types.DetectedFace, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]types.DetectedFace, error) {
	return f(ctx, img)
}

// Preview downscales a frame so its width is at most maxWidth, keeping the aspect ratio.
// Frames already narrow enough are returned untouched.
func Preview(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
