// Package fault turns whatever escaped the unit of work into records the parent
// orchestrator can read.
//
// A failure may be a single error or a bundle of independent errors raised
// concurrently. Bundles are decomposed so that every cause is reported on its
// own; aggregation never hides one.
package fault

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// ExitFailure is the process exit code for any escaping failure, regardless of
// how many constituents were reported.
const ExitFailure = 1

// Failures is an ordered collection of independent failures.
// It satisfies the multi-error contract used by errors.Join, errors.Is and errors.As.
type Failures []error

func (f Failures) Error() string {
	msgs := make([]string, 0, len(f))
	for _, err := range f {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return strings.Join(msgs, "\n")
}

// Unwrap returns the constituents.
func (f Failures) Unwrap() []error {
	return []error(f)
}

// Err returns f as an error, or nil if f is empty.
func (f Failures) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

// Collect decomposes err into its constituents, in bundle order.
// Any error exposing Unwrap() []error (Failures, errors.Join) is a bundle;
// nested bundles are flattened depth first. Anything else is a single
// constituent. A nil err yields nil.
func Collect(err error) Failures {
	if err == nil {
		return nil
	}
	var out Failures
	collect(err, &out)
	if len(out) == 0 {
		// A bundle with only nil members still failed; report the bundle itself.
		out = append(out, err)
	}
	return out
}

func collect(err error, out *Failures) {
	multi, ok := err.(interface{ Unwrap() []error })
	if !ok {
		*out = append(*out, err)
		return
	}
	for _, inner := range multi.Unwrap() {
		if inner != nil {
			collect(inner, out)
		}
	}
}

// PanicError is a panic recovered from the unit of work.
type PanicError struct {
	Value any
	Stack []byte
}

// Recovered wraps a value returned by recover() together with the current stack.
// Call it from the deferred function that recovered.
func Recovered(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Describe renders the full text of a single failure: its dynamic type and
// message, the root cause when it differs, and the stack for panics.
func Describe(err error) string {
	if err == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%T: %v", err, err)

	if root := rootCause(err); root != err {
		fmt.Fprintf(&b, "\n ---> %T: %v", root, root)
	}

	var pe *PanicError
	if errors.As(err, &pe) && len(pe.Stack) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(string(pe.Stack), "\n"))
	}

	return b.String()
}

// rootCause follows the single-error Unwrap chain to its end.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
