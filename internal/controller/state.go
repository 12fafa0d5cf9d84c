package controller

import (
	"sync"

	"github.com/andresmejia3/facegate/internal/admission"
	"github.com/andresmejia3/facegate/internal/types"
)

// Phase is where a capture session currently is.
type Phase int

const (
	Loading Phase = iota
	Settling
	Armed
	Capturing
	Inferring
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Settling:
		return "settling"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Inferring:
		return "inferring"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is the observable progress of a Controller.
type State struct {
	Phase        Phase
	Frames       int
	Batches      int
	Captures     int
	Failures     int
	LastDecision admission.Decision
	LastResult   *types.InferenceResult
	LastError    error
	Gallery      []string
}

type stateBox struct {
	mu sync.Mutex
	s  State
}

func (b *stateBox) update(fn func(*State)) {
	b.mu.Lock()
	fn(&b.s)
	b.mu.Unlock()
}

func (b *stateBox) snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.s
	s.Gallery = append([]string(nil), b.s.Gallery...)
	if b.s.LastResult != nil {
		r := *b.s.LastResult
		r.Dims = append(types.Shape(nil), r.Dims...)
		r.Data = append([]float32(nil), r.Data...)
		s.LastResult = &r
	}
	return s
}
