package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/r3e-network/flowrt/infrastructure/resilience"
)

// ErrTaskTimeout is returned when a service task exceeds its Timeout.
var ErrTaskTimeout = errors.New("process: service task timed out")

// executeServiceTask runs a service or business-rule task's script against
// variables through breaker (nil-safe: a nil breaker just calls through),
// applying the node's Timeout and fixed-delay Retry policy. On success the
// returned map is merged into instance variables. The circuit breaker trips
// per node so a script that starts erroring stops being retried at all
// once its failure budget is spent, rather than retrying every instance
// individually against an already-failing downstream.
func executeServiceTask(ctx context.Context, node *Node, variables map[string]any, breaker *resilience.CircuitBreaker) (map[string]any, error) {
	if node.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, node.Timeout)
		defer cancel()
	}

	run := func() (map[string]any, error) {
		var out map[string]any
		call := func() error {
			var err error
			out, err = runOnce(ctx, node, variables)
			return err
		}
		if breaker != nil {
			if err := breaker.Execute(ctx, call); err != nil {
				return nil, err
			}
			return out, nil
		}
		if err := call(); err != nil {
			return nil, err
		}
		return out, nil
	}

	if node.Retry == nil || node.Retry.MaxAttempts <= 1 {
		return run()
	}

	cfg := resilience.RetryConfig{
		MaxAttempts:  node.Retry.MaxAttempts,
		InitialDelay: node.Retry.Delay,
		MaxDelay:     node.Retry.Delay,
		Multiplier:   1, // fixed-delay per spec.md §4.3, not exponential
		Jitter:       0,
	}

	var output map[string]any
	err := resilience.Retry(ctx, cfg, func() error {
		out, runErr := run()
		if runErr != nil {
			return runErr
		}
		output = out
		return nil
	})
	return output, err
}

func runOnce(ctx context.Context, node *Node, variables map[string]any) (map[string]any, error) {
	output, _, err := runScript(ctx, node.Script, node.EntryPoint, variables)
	if err != nil {
		if errors.Is(err, ErrTaskTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrTaskTimeout, node.ID)
		}
		return nil, fmt.Errorf("service task %s: %w", node.ID, err)
	}
	return output, nil
}
