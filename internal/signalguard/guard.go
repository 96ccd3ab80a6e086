// Package signalguard takes ownership of the interactive interrupt (Ctrl+C) for
// the life of a worker process.
//
// An interrupt typed at a terminal is delivered to every process in the
// foreground group. The worker must not die from a signal meant for its
// parent: the parent decides how the job ends and tells the worker through its
// pipes. While a Guard is held the interrupt is received and dropped.
package signalguard

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Guard absorbs os.Interrupt until Close is called.
type Guard struct {
	sigCh    chan os.Signal
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	absorbed atomic.Int64
}

// Acquire installs the interrupt handler and returns the held Guard.
func Acquire() *Guard {
	g := &Guard{
		// Buffered so a signal arriving while the drain loop is busy is not lost
		sigCh: make(chan os.Signal, 1),
		done:  make(chan struct{}),
	}
	signal.Notify(g.sigCh, os.Interrupt)

	g.wg.Add(1)
	go g.drain()

	return g
}

func (g *Guard) drain() {
	defer g.wg.Done()
	for {
		select {
		case <-g.sigCh:
			g.absorbed.Add(1)
		case <-g.done:
			return
		}
	}
}

// Absorbed returns the number of interrupts swallowed so far.
func (g *Guard) Absorbed() int64 {
	return g.absorbed.Load()
}

// Close restores default interrupt handling. Safe to call more than once.
func (g *Guard) Close() error {
	g.once.Do(func() {
		signal.Stop(g.sigCh)
		close(g.done)
		g.wg.Wait()
	})
	return nil
}
