package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/andresmejia3/facegate/internal/types"
)

// fakeSession records feeds and echoes a fixed output.
type fakeSession struct {
	inputs, outputs []string
	runs            []map[string]Tensor
	out             map[string]Tensor
	err             error
}

func (f *fakeSession) InputNames() []string  { return f.inputs }
func (f *fakeSession) OutputNames() []string { return f.outputs }
func (f *fakeSession) Close() error          { return nil }
func (f *fakeSession) Run(ctx context.Context, feeds map[string]Tensor) (map[string]Tensor, error) {
	f.runs = append(f.runs, feeds)
	return f.out, f.err
}

func TestAdapterInfer(t *testing.T) {
	s := &fakeSession{
		inputs:  []string{"input"},
		outputs: []string{"output", "aux"},
		out:     map[string]Tensor{"output": {Dims: types.Shape{1, 2}, Data: []float32{0.25, 0.75}}},
	}
	a, err := NewAdapter(s)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	in := types.PreprocessedTensor{Shape: types.Shape{1, 3, 2, 2}, Data: make([]float32, 12)}
	res, err := a.Infer(context.Background(), in)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if len(s.runs) != 1 {
		t.Fatalf("Expected one run, got %d", len(s.runs))
	}
	feed, ok := s.runs[0]["input"]
	if !ok || !feed.Dims.Equal(in.Shape) || len(feed.Data) != 12 {
		t.Errorf("Unexpected feed: %+v", s.runs[0])
	}
	if res.OutputName != "output" || !res.Dims.Equal(types.Shape{1, 2}) || res.Data[1] != 0.75 {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestAdapterErrors(t *testing.T) {
	if _, err := NewAdapter(&fakeSession{inputs: []string{"input"}}); !errors.Is(err, ErrNoInputs) {
		t.Errorf("Expected ErrNoInputs, got %v", err)
	}

	missing := &fakeSession{inputs: []string{"input"}, outputs: []string{"output"}, out: map[string]Tensor{}}
	a, _ := NewAdapter(missing)
	if _, err := a.Infer(context.Background(), types.PreprocessedTensor{}); !errors.Is(err, ErrMissingOutput) {
		t.Errorf("Expected ErrMissingOutput, got %v", err)
	}

	boom := errors.New("shape mismatch")
	failing := &fakeSession{inputs: []string{"input"}, outputs: []string{"output"}, err: boom}
	a, _ = NewAdapter(failing)
	if _, err := a.Infer(context.Background(), types.PreprocessedTensor{}); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped runtime error, got %v", err)
	}
}

func TestValidateShape(t *testing.T) {
	tests := []struct {
		name     string
		declared types.Shape
		got      types.Shape
		wantErr  bool
	}{
		{"Exact", types.Shape{1, 3, 256, 256}, types.Shape{1, 3, 256, 256}, false},
		{"Dynamic batch", types.Shape{-1, 3, 256, 256}, types.Shape{1, 3, 256, 256}, false},
		{"Wrong size", types.Shape{1, 3, 224, 224}, types.Shape{1, 3, 256, 256}, true},
		{"Wrong rank", types.Shape{1, 784}, types.Shape{1, 1, 28, 28}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateShape(tt.declared, tt.got); (err != nil) != tt.wantErr {
				t.Errorf("ValidateShape() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
