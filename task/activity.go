package task

import (
	"context"
	"encoding/json"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
)

type callActivityOption func(*callActivityOptions) error

type callActivityOptions struct {
	rawInput json.RawMessage
}

// WithActivityInput configures an input for an activity invocation.
// The specified input must be JSON serializable.
func WithActivityInput(input any) callActivityOption {
	return func(opt *callActivityOptions) error {
		data, err := marshalData(input)
		if err != nil {
			return err
		}
		opt.rawInput = data
		return nil
	}
}

// WithRawActivityInput configures a raw input for an activity invocation.
func WithRawActivityInput(input string) callActivityOption {
	return func(opt *callActivityOptions) error {
		opt.rawInput = json.RawMessage(input)
		return nil
	}
}

// CallActivity schedules an asynchronous invocation of an activity function. The [activity]
// parameter can be either the name of an activity as a string or can be a pointer to the function
// that implements the activity, in which case the name is obtained via reflection.
//
// Calls with the same activity name are matched against the history in the order they are made.
func (ctx *OrchestrationContext) CallActivity(activity any, opts ...callActivityOption) Task {
	name := mustName(activity)
	options := new(callActivityOptions)
	for _, configure := range opts {
		if err := configure(options); err != nil {
			return ctx.newFailedTask(&backend.CallActivityAction{FunctionName: name}, err)
		}
	}
	t := ctx.newActivityAttempt(name, -1)
	t.action = &backend.CallActivityAction{FunctionName: name, Input: options.rawInput}
	return t
}

// CallActivityWithRetry schedules an activity that the host retries according to retry. The
// task fails with the last error once the attempts are exhausted.
func (ctx *OrchestrationContext) CallActivityWithRetry(activity any, retry *api.RetryOptions, opts ...callActivityOption) Task {
	name := mustName(activity)
	options := new(callActivityOptions)
	for _, configure := range opts {
		if err := configure(options); err != nil {
			return ctx.newFailedTask(&backend.CallActivityWithRetryAction{FunctionName: name, RetryOptions: retry}, err)
		}
	}
	action := &backend.CallActivityWithRetryAction{
		FunctionName: name,
		RetryOptions: retry,
		Input:        options.rawInput,
	}
	return ctx.newRetryTask(action, retry, func(after int) durableTask {
		return ctx.newActivityAttempt(name, after)
	})
}

// newActivityAttempt correlates one scheduling of the named activity, found after position
// after, with its outcome.
func (ctx *OrchestrationContext) newActivityAttempt(name string, after int) *simpleTask {
	scheduled := mustFind(ctx.history.FindTaskScheduledAfter(name, after))
	completed := ctx.history.FindTaskCompleted(scheduled)
	failed := ctx.history.FindTaskFailed(scheduled)

	t := ctx.newSimpleTask(&backend.CallActivityAction{FunctionName: name})
	t.resolveResponse(completed, failed)
	return t
}

// newFailedTask returns a task that failed before anything was scheduled.
func (ctx *OrchestrationContext) newFailedTask(action backend.Action, err error) Task {
	t := ctx.newSimpleTask(action)
	t.timestamp = ctx.CurrentTimeUtc
	t.isPlayed = ctx.IsReplaying
	t.setValue(stateFailed, nil, err)
	return t
}

// ActivityContext is the context parameter type for activity implementations.
type ActivityContext interface {
	GetInput(resultPtr any) error
	Context() context.Context
}

type activityContext struct {
	Name string

	rawInput []byte
	ctx      context.Context
}

// Activity is the functional interface for activity implementations.
type Activity func(ctx ActivityContext) (any, error)

func newTaskActivityContext(ctx context.Context, name string, rawInput []byte) *activityContext {
	return &activityContext{
		Name:     name,
		rawInput: rawInput,
		ctx:      ctx,
	}
}

// GetInput unmarshals the serialized activity input and saves the result into [v].
func (actx *activityContext) GetInput(v any) error {
	return unmarshalData(actx.rawInput, v)
}

func (actx *activityContext) Context() context.Context {
	return actx.ctx
}
