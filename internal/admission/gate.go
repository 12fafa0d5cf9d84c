// Package admission decides which detection batches may trigger a capture.
//
// The gate is a two-state machine. It starts Disarmed, is armed by discrete
// events (session loaded, capture complete, explicit re-arm) and disarms the
// moment it admits a face, so at most one capture is in flight at a time.
package admission

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/facegate/internal/types"
)

// DefaultThreshold is the eye-openness probability a face must strictly exceed.
const DefaultThreshold = 0.99

// DefaultSettleDelay is how long the gate waits after the session loads before arming.
const DefaultSettleDelay = 2 * time.Second

type State int

const (
	Disarmed State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "disarmed"
}

// Decision is the outcome of offering one detection batch to the gate.
type Decision int

const (
	Ignored Decision = iota // gate disarmed
	NoFace
	MultipleFaces
	LowConfidence
	Admitted
)

func (d Decision) String() string {
	switch d {
	case Ignored:
		return "ignored"
	case NoFace:
		return "no-face"
	case MultipleFaces:
		return "multiple-faces"
	case LowConfidence:
		return "low-confidence"
	case Admitted:
		return "admitted"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// RearmPolicy controls what happens once a capture completes.
type RearmPolicy int

const (
	// RearmNever keeps the gate disarmed after the first capture (single shot).
	RearmNever RearmPolicy = iota
	// RearmAfterCapture arms the gate again when the capture completes.
	RearmAfterCapture
)

// ParseRearmPolicy accepts "never" or "after-capture".
func ParseRearmPolicy(s string) (RearmPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "":
		return RearmNever, nil
	case "after-capture":
		return RearmAfterCapture, nil
	}
	return RearmNever, fmt.Errorf("unknown re-arm policy %q (use never, after-capture)", s)
}

func (p RearmPolicy) String() string {
	if p == RearmAfterCapture {
		return "after-capture"
	}
	return "never"
}

// Config tunes the gate.
type Config struct {
	Threshold   float64
	SettleDelay time.Duration
	Policy      RearmPolicy
}

// Gate is safe for concurrent use.
type Gate struct {
	mu        sync.Mutex
	state     State
	cfg       Config
	timer     *time.Timer
	admitted  int
	afterFunc func(time.Duration, func()) *time.Timer
}

// New returns a disarmed gate.
func New(cfg Config) *Gate {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Gate{cfg: cfg, afterFunc: time.AfterFunc}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Admitted returns how many batches have been admitted so far.
func (g *Gate) Admitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitted
}

// SessionLoaded arms the gate after the settle delay. With a zero delay it arms immediately.
func (g *Gate) SessionLoaded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	if g.cfg.SettleDelay <= 0 {
		g.state = Armed
		return
	}
	g.timer = g.afterFunc(g.cfg.SettleDelay, g.Rearm)
}

// CaptureComplete re-arms the gate only under RearmAfterCapture.
func (g *Gate) CaptureComplete() {
	if g.cfg.Policy == RearmAfterCapture {
		g.Rearm()
	}
}

// Rearm arms the gate unconditionally.
func (g *Gate) Rearm() {
	g.mu.Lock()
	g.state = Armed
	g.mu.Unlock()
}

// Disarm stops admission and cancels a pending settle timer.
func (g *Gate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.state = Disarmed
}

// Offer evaluates one detection batch. An Admitted decision has already disarmed the gate.
func (g *Gate) Offer(faces []types.DetectedFace) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Armed {
		return Ignored
	}
	switch {
	case len(faces) == 0:
		return NoFace
	case len(faces) > 1:
		return MultipleFaces
	}
	if !g.qualifies(faces[0]) {
		return LowConfidence
	}
	g.state = Disarmed
	g.admitted++
	return Admitted
}

// comparison is strict: a probability equal to the threshold does not qualify
func (g *Gate) qualifies(f types.DetectedFace) bool {
	return f.LeftEyeOpenProbability > g.cfg.Threshold && f.RightEyeOpenProbability > g.cfg.Threshold
}
