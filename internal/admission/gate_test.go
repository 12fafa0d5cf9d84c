package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/facegate/internal/types"
)

func face(left, right float64) types.DetectedFace {
	return types.DetectedFace{
		Box:                     types.BoundingBox{X: 10, Y: 10, Width: 50, Height: 50},
		LeftEyeOpenProbability:  left,
		RightEyeOpenProbability: right,
	}
}

func armedGate(policy RearmPolicy) *Gate {
	g := New(Config{Threshold: DefaultThreshold, Policy: policy})
	g.SessionLoaded()
	return g
}

func TestGateStartsDisarmed(t *testing.T) {
	g := New(Config{})
	if g.State() != Disarmed {
		t.Fatalf("Expected disarmed gate, got %v", g.State())
	}
	if d := g.Offer([]types.DetectedFace{face(1, 1)}); d != Ignored {
		t.Errorf("Expected Ignored before session load, got %v", d)
	}
}

func TestOfferDecisions(t *testing.T) {
	tests := []struct {
		name  string
		faces []types.DetectedFace
		want  Decision
	}{
		{"Empty batch", nil, NoFace},
		{"Two faces", []types.DetectedFace{face(1, 1), face(1, 1)}, MultipleFaces},
		{"Left eye at threshold", []types.DetectedFace{face(0.99, 1)}, LowConfidence},
		{"Right eye at threshold", []types.DetectedFace{face(1, 0.99)}, LowConfidence},
		{"Both at threshold", []types.DetectedFace{face(0.99, 0.99)}, LowConfidence},
		{"Eyes closed", []types.DetectedFace{face(0.1, 0.2)}, LowConfidence},
		{"Just above threshold", []types.DetectedFace{face(0.991, 0.9901)}, Admitted},
		{"Wide open", []types.DetectedFace{face(1, 1)}, Admitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := armedGate(RearmNever)
			got := g.Offer(tt.faces)
			if got != tt.want {
				t.Errorf("Offer() = %v, want %v", got, tt.want)
			}
			wantState := Armed
			if tt.want == Admitted {
				wantState = Disarmed
			}
			if g.State() != wantState {
				t.Errorf("State after %v = %v, want %v", got, g.State(), wantState)
			}
		})
	}
}

func TestNoAutomaticRearm(t *testing.T) {
	g := armedGate(RearmNever)
	if d := g.Offer([]types.DetectedFace{face(1, 1)}); d != Admitted {
		t.Fatalf("Expected first batch admitted, got %v", d)
	}

	g.CaptureComplete()
	for i := 0; i < 5; i++ {
		if d := g.Offer([]types.DetectedFace{face(1, 1)}); d != Ignored {
			t.Fatalf("Batch %d after disarm: expected Ignored, got %v", i, d)
		}
	}

	// External re-arm event restores admission.
	g.Rearm()
	if d := g.Offer([]types.DetectedFace{face(1, 1)}); d != Admitted {
		t.Errorf("Expected admission after explicit re-arm, got %v", d)
	}
	if g.Admitted() != 2 {
		t.Errorf("Expected 2 admissions, got %d", g.Admitted())
	}
}

func TestRearmAfterCapture(t *testing.T) {
	g := armedGate(RearmAfterCapture)
	if d := g.Offer([]types.DetectedFace{face(1, 1)}); d != Admitted {
		t.Fatalf("Expected admission, got %v", d)
	}
	if d := g.Offer([]types.DetectedFace{face(1, 1)}); d != Ignored {
		t.Fatalf("Expected Ignored while capture in flight, got %v", d)
	}
	g.CaptureComplete()
	if g.State() != Armed {
		t.Errorf("Expected re-armed gate, got %v", g.State())
	}
}

func TestSettleDelay(t *testing.T) {
	g := New(Config{SettleDelay: time.Hour})

	var fire func()
	g.afterFunc = func(d time.Duration, f func()) *time.Timer {
		if d != time.Hour {
			t.Errorf("Expected settle delay of 1h, got %v", d)
		}
		fire = f
		return time.NewTimer(d)
	}

	g.SessionLoaded()
	if g.State() != Disarmed {
		t.Fatalf("Gate armed before settle delay elapsed")
	}
	fire()
	if g.State() != Armed {
		t.Errorf("Expected gate armed after settle delay, got %v", g.State())
	}
}

func TestConcurrentOfferAdmitsOnce(t *testing.T) {
	g := armedGate(RearmNever)

	var wg sync.WaitGroup
	results := make(chan Decision, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.Offer([]types.DetectedFace{face(1, 1)})
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for d := range results {
		if d == Admitted {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("Expected exactly one admission, got %d", admitted)
	}
}

func TestParseRearmPolicy(t *testing.T) {
	for in, want := range map[string]RearmPolicy{"never": RearmNever, "": RearmNever, "After-Capture": RearmAfterCapture} {
		got, err := ParseRearmPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseRearmPolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseRearmPolicy("sometimes"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}
