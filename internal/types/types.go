package types

import "time"

// BoundingBox is a face rectangle in the coordinate space of the detector's preview.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedFace is one face reported by a detector for a single preview frame.
type DetectedFace struct {
	Box                     BoundingBox `json:"box"`
	LeftEyeOpenProbability  float64     `json:"leftEyeOpenProbability"`
	RightEyeOpenProbability float64     `json:"rightEyeOpenProbability"`
	Score                   float64     `json:"score"`
}

// FrameTask represents a single camera frame handed to the detection loop
type FrameTask struct {
	Index int
	Data  []byte
}

// CapturedPhoto is the full resolution still taken once a face is admitted.
type CapturedPhoto struct {
	ID          string
	Data        []byte // JPEG
	PixelWidth  int
	PixelHeight int
	TakenAt     time.Time
}

// Shape lists tensor dimensions, outermost first.
type Shape []int64

// Size returns the number of elements a tensor of this shape holds.
func (s Shape) Size() int64 {
	if len(s) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// PreprocessedTensor is the numeric buffer fed to the network exactly once.
type PreprocessedTensor struct {
	Shape Shape
	Data  []float32
}

// InferenceResult is the named output read back from a session run.
type InferenceResult struct {
	OutputName string
	Dims       Shape
	Data       []float32
}
