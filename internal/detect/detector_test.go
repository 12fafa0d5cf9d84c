package detect

import (
	"context"
	"image"
	"testing"

	"github.com/andresmejia3/facegate/internal/types"
)

func TestPreview(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	p := Preview(big, 640)
	if p.Bounds().Dx() != 640 || p.Bounds().Dy() != 360 {
		t.Errorf("Expected 640x360 preview, got %v", p.Bounds())
	}

	small := image.NewRGBA(image.Rect(0, 0, 320, 240))
	if Preview(small, 640) != image.Image(small) {
		t.Error("Expected narrow frame to pass through untouched")
	}
	if Preview(big, 0) != image.Image(big) {
		t.Error("Expected zero width to disable downscaling")
	}
}

func TestEyeConfidence(t *testing.T) {
	tests := []struct {
		q, scale float32
		want     float64
	}{
		{5, 10, 0.5},
		{20, 10, 1},
		{-3, 10, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := eyeConfidence(tt.q, tt.scale); got != tt.want {
			t.Errorf("eyeConfidence(%v, %v) = %v, want %v", tt.q, tt.scale, got, tt.want)
		}
	}
}

func TestDetectorFunc(t *testing.T) {
	var d Detector = DetectorFunc(func(ctx context.Context, img image.Image) ([]types.DetectedFace, error) {
		return []types.DetectedFace{{Score: 1}}, nil
	})
	faces, err := d.Detect(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	if err != nil || len(faces) != 1 {
		t.Errorf("DetectorFunc did not forward: %v %v", faces, err)
	}
}
