// Package lane defines the Retrieval Lane contract (C4, spec.md §4.4)
// shared by the web, vector, and knowledge-graph adapters: search(Request)
// -> Result, never throwing past its boundary.
package lane

import (
	"context"
	"time"

	"github.com/sourcelane/gateway/source"
)

// Name identifies one of the three retrieval lanes.
type Name string

const (
	Web    Name = "web"
	Vector Name = "vector"
	KG     Name = "kg"
)

// Status is the outcome of a single lane invocation.
type Status string

const (
	StatusOK       Status = "ok"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// TopKFor returns the per-lane cap spec.md §3 fixes: web 5, vector 5, kg 6.
func TopKFor(n Name) int {
	switch n {
	case Web:
		return 5
	case Vector:
		return 5
	case KG:
		return 6
	default:
		return 5
	}
}

// Request is created by the Lane Orchestrator and discarded once the
// lane call resolves (spec.md §3).
type Request struct {
	QueryText  string
	TopK       int
	DeadlineMS int
	TraceID    string
}

// Result carries a lane's outcome. Invariant: len(Items) <= TopK;
// LatencyMS <= DeadlineMS + 100ms grace (spec.md §3).
type Result struct {
	Lane      Name
	Status    Status
	Items     []source.Source
	LatencyMS int64
	ErrorKind string
}

// Adapter is the capability every lane shares (spec.md §4.4). Search
// must never panic or return past its own deadline boundary; any fault
// becomes a Result with Status=error or Status=timeout.
type Adapter interface {
	Name() Name
	Search(ctx context.Context, req Request) Result
}

// Elapsed is a small helper for adapters recording LatencyMS.
func Elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
