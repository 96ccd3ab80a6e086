// Package invocation validates the positional arguments a parent orchestrator
// passes when it spawns a worker process.
//
// The contract is fixed: exactly three tokens, the spawn-mode sentinel followed
// by the input and output pipe identifiers. Validation has no side effects and
// must run before any pipe is touched.
package invocation

import (
	"fmt"
	"strings"
)

// SpawnMode is the sentinel the parent passes as the first argument.
// It is compared case-insensitively.
const SpawnMode = "spawnclient"

// ArgCount is the exact number of positional arguments the contract accepts.
const ArgCount = 3

// Invocation is a validated argument vector. It is never mutated after Parse.
type Invocation struct {
	Mode    string
	PipeIn  string
	PipeOut string
}

// ArgumentError reports a violation of the invocation contract.
// Name identifies the offending parameter, e.g. "args[1]".
type ArgumentError struct {
	Name    string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Message)
}

// Parse validates args against the contract and returns the Invocation.
// The first violation found is returned as an *ArgumentError.
func Parse(args []string) (Invocation, error) {
	if args == nil {
		return Invocation{}, &ArgumentError{Name: "args", Message: "value cannot be null"}
	}
	if len(args) != ArgCount {
		return Invocation{}, &ArgumentError{
			Name:    "args.Length",
			Message: fmt.Sprintf("expected %d, got %d", ArgCount, len(args)),
		}
	}
	if args[0] == "" {
		return Invocation{}, &ArgumentError{Name: "args[0]", Message: "value cannot be null or empty"}
	}
	if strings.ToLower(args[0]) != SpawnMode {
		return Invocation{}, &ArgumentError{
			Name:    "args[0]",
			Message: fmt.Sprintf("expected %q, got %q", SpawnMode, args[0]),
		}
	}
	if args[1] == "" {
		return Invocation{}, &ArgumentError{Name: "args[1]", Message: "value cannot be null or empty"}
	}
	if args[2] == "" {
		return Invocation{}, &ArgumentError{Name: "args[2]", Message: "value cannot be null or empty"}
	}

	return Invocation{
		Mode:    args[0],
		PipeIn:  args[1],
		PipeOut: args[2],
	}, nil
}
