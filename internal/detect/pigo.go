package detect

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/andresmejia3/facegate/internal/types"
	pigo "github.com/esimov/pigo/core"
)

// PigoConfig tunes the cascade search.
type PigoConfig struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32 // detections below this score are dropped
	QualityScale float32 // score at which eye confidence saturates to 1
}

// DefaultPigoConfig mirrors the usual facefinder parameters.
func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		MinSize:      40,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
		QualityScale: 10.0,
	}
}

// PigoDetector finds faces with the facefinder cascade and localises pupils with puploc.
type PigoDetector struct {
	cfg     PigoConfig
	faces   *pigo.Pigo
	pupils  *pigo.PuplocCascade
	hasEyes bool
}

// NewPigoDetector unpacks the cascades. The puploc cascade is optional; without it every
// eye probability is reported as 0 and no face can pass the admission threshold.
func NewPigoDetector(cfg PigoConfig, facefinderPath, puplocPath string) (*PigoDetector, error) {
	cascade, err := os.ReadFile(facefinderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	d := &PigoDetector{cfg: cfg, faces: classifier}
	if puplocPath != "" {
		raw, err := os.ReadFile(puplocPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read puploc cascade: %w", err)
		}
		d.pupils, err = pigo.NewPuplocCascade().UnpackCascade(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack puploc cascade: %w", err)
		}
		d.hasEyes = true
	}
	return d, nil
}

// Detect runs the cascade over a grayscale copy of img.
func (d *PigoDetector) Detect(ctx context.Context, img image.Image) ([]types.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	params := pigo.ImageParams{
		Pixels: pigo.RgbToGrayscale(img),
		Rows:   b.Dy(),
		Cols:   b.Dx(),
		Dim:    b.Dx(),
	}

	dets := d.faces.RunCascade(pigo.CascadeParams{
		MinSize:     d.cfg.MinSize,
		MaxSize:     d.cfg.MaxSize,
		ShiftFactor: d.cfg.ShiftFactor,
		ScaleFactor: d.cfg.ScaleFactor,
		ImageParams: params,
	}, 0.0)
	dets = d.faces.ClusterDetections(dets, d.cfg.IoUThreshold)

	faces := make([]types.DetectedFace, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.cfg.MinQuality {
			continue
		}
		half := float64(det.Scale) / 2
		face := types.DetectedFace{
			Box: types.BoundingBox{
				X:      float64(det.Col) - half,
				Y:      float64(det.Row) - half,
				Width:  float64(det.Scale),
				Height: float64(det.Scale),
			},
			Score: float64(det.Q),
		}
		if d.hasEyes {
			face.LeftEyeOpenProbability = d.eyeOpen(det, params, -1)
			face.RightEyeOpenProbability = d.eyeOpen(det, params, 1)
		}
		faces = append(faces, face)
	}
	return faces, nil
}

// eyeOpen localises one pupil (side -1 left, +1 right). A pupil found inside the face box
// yields the detection quality normalised to [0,1]; a missing pupil counts as a closed eye.
func (d *PigoDetector) eyeOpen(det pigo.Detection, params pigo.ImageParams, side int) float64 {
	found := d.pupils.RunDetector(pupilGuess(det, side), params, 0.0, false)
	if !pupilInFace(det, found) {
		return 0
	}
	return eyeConfidence(det.Q, d.cfg.QualityScale)
}

// pupilGuess seeds the pupil search in the upper half of the face, offset toward side.
func pupilGuess(det pigo.Detection, side int) pigo.Puploc {
	return pigo.Puploc{
		Row:      det.Row - int(0.075*float32(det.Scale)),
		Col:      det.Col + side*int(0.175*float32(det.Scale)),
		Scale:    float32(det.Scale) * 0.25,
		Perturbs: 63,
	}
}

func pupilInFace(det pigo.Detection, found *pigo.Puploc) bool {
	if found == nil || found.Row <= 0 || found.Col <= 0 {
		return false
	}
	half := det.Scale / 2
	return abs(found.Row-det.Row) <= half && abs(found.Col-det.Col) <= half
}

func eyeConfidence(q, scale float32) float64 {
	if scale <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(q/scale)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
