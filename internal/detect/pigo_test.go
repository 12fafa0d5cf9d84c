package detect

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"testing"

	pigo "github.com/esimov/pigo/core"
)

func TestPupilGuess(t *testing.T) {
	det := pigo.Detection{Row: 200, Col: 300, Scale: 160, Q: 9}

	left, right := pupilGuess(det, -1), pupilGuess(det, 1)
	if left.Col >= det.Col || right.Col <= det.Col {
		t.Errorf("Expected left guess left of centre and right guess right of it, got %d and %d", left.Col, right.Col)
	}
	if left.Row >= det.Row || left.Row != right.Row {
		t.Errorf("Expected both guesses on one row above centre, got %d and %d", left.Row, right.Row)
	}
	if det.Col-left.Col != right.Col-det.Col {
		t.Error("Expected guesses to be symmetric")
	}
	for _, g := range []pigo.Puploc{left, right} {
		if !pupilInFace(det, &g) {
			t.Errorf("Expected guess %+v to fall inside the face box", g)
		}
		if g.Scale <= 0 || g.Scale >= float32(det.Scale) {
			t.Errorf("Expected pupil scale within the face, got %v", g.Scale)
		}
	}
}

func TestPupilInFace(t *testing.T) {
	det := pigo.Detection{Row: 100, Col: 100, Scale: 40}
	tests := []struct {
		name  string
		found *pigo.Puploc
		want  bool
	}{
		{"missing", nil, false},
		{"not localised", &pigo.Puploc{Row: -1, Col: -1}, false},
		{"inside", &pigo.Puploc{Row: 95, Col: 110}, true},
		{"on edge", &pigo.Puploc{Row: 80, Col: 120}, true},
		{"outside", &pigo.Puploc{Row: 95, Col: 130}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pupilInFace(det, tt.found); got != tt.want {
				t.Errorf("pupilInFace() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPigoDetectorDetect needs the pigo cascade files and a frontal face photo:
// FACEGATE_FACEFINDER, FACEGATE_PUPLOC and FACEGATE_FACE_IMAGE.
func TestPigoDetectorDetect(t *testing.T) {
	finder, puploc, photo := os.Getenv("FACEGATE_FACEFINDER"), os.Getenv("FACEGATE_PUPLOC"), os.Getenv("FACEGATE_FACE_IMAGE")
	if finder == "" || puploc == "" || photo == "" {
		t.Skip("Skipping: FACEGATE_FACEFINDER, FACEGATE_PUPLOC and FACEGATE_FACE_IMAGE must be set")
	}

	d, err := NewPigoDetector(DefaultPigoConfig(), finder, puploc)
	if err != nil {
		t.Fatalf("NewPigoDetector: %v", err)
	}
	f, err := os.Open(photo)
	if err != nil {
		t.Fatalf("open image: %v", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}

	faces, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(faces) == 0 {
		t.Fatal("Expected at least one face")
	}

	bounds := img.Bounds()
	for i, face := range faces {
		box := face.Box
		if box.Width <= 0 || box.Height <= 0 {
			t.Errorf("face %d: empty box %+v", i, box)
		}
		cx, cy := int(box.X+box.Width/2), int(box.Y+box.Height/2)
		if !image.Pt(cx, cy).In(bounds) {
			t.Errorf("face %d: centre (%d,%d) outside image %v", i, cx, cy, bounds)
		}
		for _, p := range []float64{face.LeftEyeOpenProbability, face.RightEyeOpenProbability} {
			if p < 0 || p > 1 {
				t.Errorf("face %d: eye probability %v outside [0,1]", i, p)
			}
		}
	}
}
