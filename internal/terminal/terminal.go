// Package terminal is the raw output channel: a line-oriented text stream that is
// always available, independent of the structured trace sink.
//
// When the stream is an interactive terminal, error records are rendered with
// Lipgloss so an operator running the worker by hand can spot them. When it is
// a pipe (the normal case under a parent orchestrator) text is written verbatim.
package terminal

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var colorError = lipgloss.Color("#EF4444") // Red

// Terminal serialises writes to the raw output channel.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
	errSt  lipgloss.Style
}

// New creates a Terminal on w. Colour support is detected from w.
func New(w io.Writer) *Terminal {
	return newWithRenderer(w, lipgloss.NewRenderer(w))
}

func newWithRenderer(w io.Writer, r *lipgloss.Renderer) *Terminal {
	return &Terminal{
		w:      w,
		styled: r.ColorProfile() != termenv.Ascii,
		errSt: r.NewStyle().
			Foreground(colorError).
			TabWidth(lipgloss.NoTabConversion),
	}
}

// WriteLine writes s followed by a newline.
func (t *Terminal) WriteLine(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := io.WriteString(t.w, s+"\n")
	return err
}

// WriteError writes an error record. Multi-line text is kept intact; on a
// colour terminal each line is styled separately so no padding is introduced.
func (t *Terminal) WriteError(s string) error {
	if !t.styled {
		return t.WriteLine(s)
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = t.errSt.Render(line)
		}
	}
	return t.WriteLine(strings.Join(lines, "\n"))
}

