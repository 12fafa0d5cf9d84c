// Package inference wraps a loaded network behind named input and output tensors.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/facegate/internal/types"
)

var (
	// ErrMissingOutput is returned when a run does not produce the requested output.
	ErrMissingOutput = errors.New("session did not return the requested output")
	// ErrNoInputs is returned when a session declares no inputs or outputs.
	ErrNoInputs = errors.New("session declares no inputs or outputs")
)

// Tensor is a shaped float32 buffer exchanged with a session.
type Tensor struct {
	Dims types.Shape
	Data []float32
}

// Session is the contract of a loaded network.
type Session interface {
	InputNames() []string
	OutputNames() []string
	Run(ctx context.Context, feeds map[string]Tensor) (map[string]Tensor, error)
	Close() error
}

// Adapter feeds a single tensor to the first input and reads back the first output.
type Adapter struct {
	session Session
}

// NewAdapter validates that the session exposes at least one input and one output.
func NewAdapter(s Session) (*Adapter, error) {
	if len(s.InputNames()) == 0 || len(s.OutputNames()) == 0 {
		return nil, ErrNoInputs
	}
	return &Adapter{session: s}, nil
}

// Session returns the wrapped session.
func (a *Adapter) Session() Session { return a.session }

// Infer runs the session once. The tensor shape is passed through unchecked; a mismatch
// surfaces as the runtime's own error.
func (a *Adapter) Infer(ctx context.Context, t types.PreprocessedTensor) (*types.InferenceResult, error) {
	in := a.session.InputNames()[0]
	out := a.session.OutputNames()[0]

	fetches, err := a.session.Run(ctx, map[string]Tensor{in: {Dims: t.Shape, Data: t.Data}})
	if err != nil {
		return nil, fmt.Errorf("inference on %q failed: %w", in, err)
	}

	res, ok := fetches[out]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingOutput, out)
	}
	return &types.InferenceResult{OutputName: out, Dims: res.Dims, Data: res.Data}, nil
}
