// Package buildinfo holds identifiers stamped into the binary at build time.
//
//	go build -ldflags "-X github.com/randomizedcoder/agent-worker/internal/buildinfo.Version=1.0.0 \
//	    -X github.com/randomizedcoder/agent-worker/internal/buildinfo.Commit=$(git rev-parse HEAD)" ./cmd/agent-worker
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
)

