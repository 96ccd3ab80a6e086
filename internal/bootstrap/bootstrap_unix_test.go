//go:build unix

package bootstrap

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestRun_InterruptIsAbsorbed(t *testing.T) {
	var h *harness
	h = newHarness(t, func(context.Context, string, string) (int, error) {
		guard := h.hc.SignalGuard()
		if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
			return 0, err
		}
		deadline := time.Now().Add(5 * time.Second)
		for guard.Absorbed() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		return int(guard.Absorbed()), nil
	}, nil)

	code := h.run("spawnclient", "in-42", "out-42")

	if code < 1 {
		t.Errorf("interrupt was not absorbed (code %d)", code)
	}
}
