package task

import (
	"encoding/json"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
)

type subOrchestratorOption func(*callSubOrchestratorOptions) error

type callSubOrchestratorOptions struct {
	instanceID string
	rawInput   json.RawMessage
}

// WithSubOrchestratorInput configures an input for a sub-orchestration.
// The specified input must be JSON serializable.
func WithSubOrchestratorInput(input any) subOrchestratorOption {
	return func(opt *callSubOrchestratorOptions) error {
		data, err := marshalData(input)
		if err != nil {
			return err
		}
		opt.rawInput = data
		return nil
	}
}

// WithRawSubOrchestratorInput configures a raw input for a sub-orchestration.
func WithRawSubOrchestratorInput(input string) subOrchestratorOption {
	return func(opt *callSubOrchestratorOptions) error {
		opt.rawInput = json.RawMessage(input)
		return nil
	}
}

// WithSubOrchestrationInstanceID configures the instance ID of a sub-orchestration. When it is
// not set the host generates one.
func WithSubOrchestrationInstanceID(instanceID string) subOrchestratorOption {
	return func(opt *callSubOrchestratorOptions) error {
		opt.instanceID = instanceID
		return nil
	}
}

// CallSubOrchestrator schedules an orchestrator function as a child of the current orchestration.
// Like [OrchestrationContext.CallActivity], orchestrator may be a name or a function.
func (ctx *OrchestrationContext) CallSubOrchestrator(orchestrator any, opts ...subOrchestratorOption) Task {
	name := mustName(orchestrator)
	options := new(callSubOrchestratorOptions)
	for _, configure := range opts {
		if err := configure(options); err != nil {
			return ctx.newFailedTask(&backend.CallSubOrchestratorAction{FunctionName: name}, err)
		}
	}
	t := ctx.newSubOrchestrationAttempt(name, options.instanceID, -1)
	t.action = &backend.CallSubOrchestratorAction{
		FunctionName: name,
		InstanceID:   options.instanceID,
		Input:        options.rawInput,
	}
	return t
}

// CallSubOrchestratorWithRetry schedules a sub-orchestration that the host retries according to retry.
func (ctx *OrchestrationContext) CallSubOrchestratorWithRetry(orchestrator any, retry *api.RetryOptions, opts ...subOrchestratorOption) Task {
	name := mustName(orchestrator)
	options := new(callSubOrchestratorOptions)
	for _, configure := range opts {
		if err := configure(options); err != nil {
			return ctx.newFailedTask(&backend.CallSubOrchestratorWithRetryAction{FunctionName: name, RetryOptions: retry}, err)
		}
	}
	action := &backend.CallSubOrchestratorWithRetryAction{
		FunctionName: name,
		RetryOptions: retry,
		InstanceID:   options.instanceID,
		Input:        options.rawInput,
	}
	return ctx.newRetryTask(action, retry, func(after int) durableTask {
		return ctx.newSubOrchestrationAttempt(name, options.instanceID, after)
	})
}

func (ctx *OrchestrationContext) newSubOrchestrationAttempt(name string, instanceID string, after int) *simpleTask {
	created := mustFind(ctx.history.FindSubOrchestrationCreatedAfter(name, instanceID, after))
	completed := ctx.history.FindSubOrchestrationCompleted(created)
	failed := ctx.history.FindSubOrchestrationFailed(created)

	t := ctx.newSimpleTask(&backend.CallSubOrchestratorAction{FunctionName: name, InstanceID: instanceID})
	t.resolveResponse(completed, failed)
	return t
}
