package present

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/andresmejia3/facegate/internal/types"
)

// Presenter surfaces notices and results to the user.
type Presenter interface {
	Notice(title, body string)
	Result(res *types.InferenceResult)
}

// TerminalPresenter writes notices to Err and result summaries to Out.
type TerminalPresenter struct {
	Out io.Writer
	Err io.Writer
	// MaxValues caps how many output values are printed. Zero prints all.
	MaxValues int

	mu sync.Mutex
}

// NewTerminal returns a presenter bound to stdout/stderr.
func NewTerminal() *TerminalPresenter {
	return &TerminalPresenter{Out: os.Stdout, Err: os.Stderr, MaxValues: 16}
}

func (p *TerminalPresenter) Notice(title, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.Err, "\n🔔 %s\n", title)
	if body != "" {
		fmt.Fprintf(p.Err, "   %s\n", body)
	}
}

func (p *TerminalPresenter) Result(res *types.InferenceResult) {
	if res == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.Out, "%s %v: %s\n", res.OutputName, []int64(res.Dims), FormatValues(res.Data, p.MaxValues))
}

// FormatValues renders up to max values, eliding the rest.
func FormatValues(data []float32, max int) string {
	n := len(data)
	if max > 0 && n > max {
		n = max
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%.4f", data[i])
	}
	s := "[" + strings.Join(parts, " ")
	if n < len(data) {
		s += fmt.Sprintf(" ... (%d more)", len(data)-n)
	}
	return s + "]"
}

func ModelLoaded(p Presenter, path string) {
	p.Notice("Model loaded", path)
}

func InferenceOK(p Presenter, res *types.InferenceResult) {
	p.Notice("Inference complete", fmt.Sprintf("%s %v", res.OutputName, []int64(res.Dims)))
	p.Result(res)
}

func InferenceFailed(p Presenter, err error) {
	p.Notice("Inference failed", err.Error())
}

func TransformFailed(p Presenter, err error) {
	p.Notice("Could not prepare the photo", err.Error())
}

func MultipleFaces(p Presenter) {
	p.Notice("Multiple faces detected", "Only one face may be in frame.")
}

func MissingOutput(p Presenter, name string) {
	p.Notice("Model returned no output", fmt.Sprintf("expected output %q", name))
}

// Welcome lists the available capture modes.
func Welcome(w io.Writer, screens [][2]string) {
	fmt.Fprintf(w, "👋 Welcome to facegate\n\n")
	for _, s := range screens {
		fmt.Fprintf(w, "   %-12s %s\n", s[0], s[1])
	}
}
