package signalguard

import "testing"

func TestGuard_CloseIdempotent(t *testing.T) {
	g := Acquire()

	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if g.Absorbed() != 0 {
		t.Errorf("Absorbed() = %d, want 0", g.Absorbed())
	}
}

func TestGuard_Reacquire(t *testing.T) {
	first := Acquire()
	first.Close()

	second := Acquire()
	defer second.Close()

	if second.Absorbed() != 0 {
		t.Errorf("fresh guard should start at zero, got %d", second.Absorbed())
	}
}
