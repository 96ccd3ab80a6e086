package fault

import "fmt"

// RawChannel is the always-available text stream (stdout under a parent).
type RawChannel interface {
	WriteError(text string) error
}

// TraceChannel is the structured sink. Error returns the sink's own failure,
// e.g. ENOSPC when the diag volume is full.
type TraceChannel interface {
	Error(err error, args ...any) error
}

// Observer receives reporting events. All methods must be cheap.
type Observer interface {
	FaultReported()
	TraceFailed()
	RawWriteFailed()
}

// Reporter emits each constituent of a failure through both channels.
// The raw channel is written first and unconditionally; the trace sink is
// best effort and its failures are redirected to the raw channel.
type Reporter struct {
	raw      RawChannel
	trace    TraceChannel
	observer Observer
}

// NewReporter creates a Reporter. trace and observer may be nil.
func NewReporter(raw RawChannel, trace TraceChannel, observer Observer) *Reporter {
	return &Reporter{raw: raw, trace: trace, observer: observer}
}

// Report writes every constituent of err and returns ExitFailure.
// It never panics and never returns early.
func (r *Reporter) Report(err error) int {
	for _, f := range Collect(err) {
		r.reportOne(f)
	}
	return ExitFailure
}

func (r *Reporter) reportOne(err error) {
	text := Describe(err)

	if r.observer != nil {
		r.observer.FaultReported()
	}

	if werr := r.writeRaw(text); werr != nil {
		if r.observer != nil {
			r.observer.RawWriteFailed()
		}
		// One attempt to say why; if the channel is gone this fails too.
		_ = r.writeRaw(Describe(fmt.Errorf("raw output channel: %w", werr)))
	}

	if terr := r.writeTrace(err, text); terr != nil {
		if r.observer != nil {
			r.observer.TraceFailed()
		}
		_ = r.writeRaw(Describe(fmt.Errorf("trace sink: %w", terr)))
	}
}

func (r *Reporter) writeRaw(text string) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = Recovered(v)
		}
	}()
	return r.raw.WriteError(text)
}

func (r *Reporter) writeTrace(failure error, text string) (err error) {
	if r.trace == nil {
		return nil
	}
	defer func() {
		if v := recover(); v != nil {
			err = Recovered(v)
		}
	}()
	return r.trace.Error(failure, "detail", text)
}
