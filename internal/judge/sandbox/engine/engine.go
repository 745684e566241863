package engine

import (
	"context"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
)

// Engine executes one RunSpec inside an isolated sandbox.
// A returned error means the sandbox itself failed; program failures are
// reported through the Execution fields.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.Execution, error)
}
