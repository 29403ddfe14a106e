package samples

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/task"
)

func init() {
	register(Sample{
		Name:         "retries",
		Description:  "retries an activity that fails its first two calls",
		Orchestrator: "RetryActivityOrchestrator",
		Input:        2,
	})
}

// addRetries returns a registration whose FlakyActivity counts its own calls.
func addRetries() func(*task.TaskRegistry) error {
	var calls atomic.Int32
	return func(r *task.TaskRegistry) error {
		if err := r.AddOrchestrator(RetryActivityOrchestrator); err != nil {
			return err
		}
		return r.AddActivityN("FlakyActivity", func(ctx task.ActivityContext) (any, error) {
			var failures int32
			if err := ctx.GetInput(&failures); err != nil {
				return nil, err
			}
			n := calls.Add(1)
			if n <= failures {
				return nil, fmt.Errorf("call %d failed on purpose", n)
			}
			return n, nil
		})
	}
}

// RetryActivityOrchestrator calls FlakyActivity with up to five attempts and exponential backoff.
// The result is the number of calls it took.
func RetryActivityOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	var failures int
	if err := ctx.GetInput(&failures); err != nil {
		return nil, err
	}
	policy, err := api.NewRetryOptions(100*time.Millisecond, 5,
		api.WithBackoffCoefficient(2),
		api.WithMaxRetryInterval(time.Second),
	)
	if err != nil {
		return nil, err
	}

	var calls int
	if err := ctx.CallActivityWithRetry("FlakyActivity", policy, task.WithActivityInput(failures)).Await(&calls); err != nil {
		return nil, err
	}
	return calls, nil
}
