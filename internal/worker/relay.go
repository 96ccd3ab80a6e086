package worker

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"
)

// Pipe directions reported to the Observer.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

const relayBufferSize = 32 * 1024

// Observer receives relay and exit measurements.
type Observer interface {
	PipeWrite(direction string, n int, d time.Duration)
	JobExited(exitCode int, uptime time.Duration)
}

type noopObserver struct{}

func (noopObserver) PipeWrite(string, int, time.Duration) {}
func (noopObserver) JobExited(int, time.Duration)         {}

// timedWriter reports every Write to an Observer.
type timedWriter struct {
	w         io.Writer
	direction string
	obs       Observer
}

func (t *timedWriter) Write(p []byte) (int, error) {
	start := time.Now()
	n, err := t.w.Write(p)
	t.obs.PipeWrite(t.direction, n, time.Since(start))
	return n, err
}

// relay copies src to dst verbatim and returns the number of bytes copied.
func relay(dst io.Writer, src io.Reader, direction string, obs Observer) (int64, error) {
	buf := make([]byte, relayBufferSize)
	return io.CopyBuffer(&timedWriter{w: dst, direction: direction, obs: obs}, src, buf)
}

// isPipeGone reports errors meaning the other side of a pipe went away.
func isPipeGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
