// Package runner abstracts the execution of a single unit of agent work.
package runner

import (
	"context"
	"time"
)

// Request describes one unit invocation.
type Request struct {
	// Agent names the agent definition to run.
	Agent string

	// Prompt is the fully resolved instruction text.
	Prompt string

	// Mode optionally overrides the agent's default mode.
	Mode string

	// Config carries agent-specific overrides from the step definition,
	// already template-resolved.
	Config map[string]any

	// Timeout bounds a single attempt. Zero means the caller's context
	// is the only bound.
	Timeout time.Duration
}

// Runner executes one unit of work. Implementations must honor context
// cancellation and classify failures via the error codes in
// internal/errors: transient failures (timeouts, rate limits,
// connectivity) are retried by the Retrier, anything else is not.
type Runner interface {
	Invoke(ctx context.Context, req *Request) (any, error)
}
