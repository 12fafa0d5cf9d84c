package inference

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/andresmejia3/facegate/internal/types"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu    sync.Mutex
	envUsers int
)

// DefaultLibraryPath is the platform's onnxruntime shared library name.
func DefaultLibraryPath() string {
	if p := os.Getenv("ORT_LIB_PATH"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// IOInfo describes one declared input or output of a model.
type IOInfo struct {
	Name string
	Dims types.Shape // -1 marks a dynamic dimension
}

// OnnxSession is a Session backed by ONNX Runtime.
type OnnxSession struct {
	path    string
	inputs  []IOInfo
	outputs []IOInfo
	session *ort.DynamicAdvancedSession
}

// acquireEnvironment initialises the shared runtime once; sessions reference-count it.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envUsers == 0 && !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}
	envUsers++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envUsers--
	if envUsers == 0 {
		ort.DestroyEnvironment()
	}
}

// Inspect reads the model's declared inputs and outputs without creating a session.
func Inspect(libPath, modelPath string) ([]IOInfo, []IOInfo, error) {
	if err := acquireEnvironment(libPath); err != nil {
		return nil, nil, err
	}
	defer releaseEnvironment()
	return readInfo(modelPath)
}

func readInfo(modelPath string) ([]IOInfo, []IOInfo, error) {
	ins, outs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	conv := func(src []ort.InputOutputInfo) []IOInfo {
		dst := make([]IOInfo, len(src))
		for i, info := range src {
			dst[i] = IOInfo{Name: info.Name, Dims: types.Shape(info.Dimensions)}
		}
		return dst
	}
	return conv(ins), conv(outs), nil
}

// LoadOnnx loads the model and records its input and output names.
func LoadOnnx(libPath, modelPath string) (*OnnxSession, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model asset unavailable: %w", err)
	}
	if err := acquireEnvironment(libPath); err != nil {
		return nil, err
	}

	ins, outs, err := readInfo(modelPath)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	if len(ins) == 0 || len(outs) == 0 {
		releaseEnvironment()
		return nil, ErrNoInputs
	}

	s := &OnnxSession{path: modelPath, inputs: ins, outputs: outs}
	s.session, err = ort.NewDynamicAdvancedSession(modelPath, names(ins), names(outs), nil)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return s, nil
}

func names(infos []IOInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

func (s *OnnxSession) InputNames() []string  { return names(s.inputs) }
func (s *OnnxSession) OutputNames() []string { return names(s.outputs) }

// Inputs returns the declared input dimensions.
func (s *OnnxSession) Inputs() []IOInfo { return s.inputs }

// Outputs returns the declared output dimensions.
func (s *OnnxSession) Outputs() []IOInfo { return s.outputs }

// Run feeds every declared input from feeds and returns every output as float32.
func (s *OnnxSession) Run(ctx context.Context, feeds map[string]Tensor) (map[string]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]ort.Value, len(s.inputs))
	defer destroyAll(inputs)
	for i, info := range s.inputs {
		feed, ok := feeds[info.Name]
		if !ok {
			return nil, fmt.Errorf("missing feed for input %q", info.Name)
		}
		t, err := ort.NewTensor(ort.NewShape(feed.Dims...), feed.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to create tensor for %q: %w", info.Name, err)
		}
		inputs[i] = t
	}

	// nil outputs are allocated by the runtime
	outputs := make([]ort.Value, len(s.outputs))
	defer destroyAll(outputs)
	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, err
	}

	fetches := make(map[string]Tensor, len(outputs))
	for i, v := range outputs {
		if v == nil {
			continue
		}
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q is not a float32 tensor", s.outputs[i].Name)
		}
		data := make([]float32, len(t.GetData()))
		copy(data, t.GetData())
		fetches[s.outputs[i].Name] = Tensor{Dims: types.Shape(t.GetShape()), Data: data}
	}
	return fetches, nil
}

type destroyer interface {
	Destroy() error
}

// destroyAll releases every non-nil value, including those after a failed one.
func destroyAll[T destroyer](values []T) {
	for _, v := range values {
		if any(v) != nil {
			v.Destroy()
		}
	}
}

// Close destroys the session and releases the shared runtime.
func (s *OnnxSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	releaseEnvironment()
	return err
}

// ValidateShape compares a tensor shape with a declared input, treating negative dims as wildcards.
func ValidateShape(declared, got types.Shape) error {
	if len(declared) != len(got) {
		return fmt.Errorf("rank mismatch: model wants %v, tensor is %v", declared, got)
	}
	for i := range declared {
		if declared[i] >= 0 && declared[i] != got[i] {
			return fmt.Errorf("dimension %d mismatch: model wants %v, tensor is %v", i, declared, got)
		}
	}
	return nil
}
