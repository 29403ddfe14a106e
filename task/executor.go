package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/internal/helpers"
)

// Executor replays orchestrators and runs activities registered in a [TaskRegistry].
type Executor interface {
	backend.Executor
	ExecuteActivity(ctx context.Context, name string, rawInput json.RawMessage) (json.RawMessage, error)
}

type taskExecutor struct {
	Registry *TaskRegistry
	logger   backend.Logger
	schema   api.ReplaySchema
}

type executorOption func(*taskExecutor)

// WithLogger configures the logger used by the executor and the orchestration contexts it creates.
func WithLogger(logger backend.Logger) executorOption {
	return func(te *taskExecutor) {
		te.logger = logger
	}
}

// WithReplaySchema selects the wire shape of the action batches. A lower version announced by
// the host in the request takes precedence.
func WithReplaySchema(schema api.ReplaySchema) executorOption {
	return func(te *taskExecutor) {
		te.schema = schema
	}
}

// NewTaskExecutor returns an [Executor] that replays orchestrator functions in-memory.
func NewTaskExecutor(registry *TaskRegistry, opts ...executorOption) Executor {
	te := &taskExecutor{
		Registry: registry,
		logger:   backend.DefaultLogger(),
		schema:   api.ReplaySchemaV1,
	}
	for _, configure := range opts {
		configure(te)
	}
	return te
}

// ExecuteOrchestrator implements backend.Executor and replays the orchestrator named by the
// request's ExecutionStarted event in the current goroutine.
func (te *taskExecutor) ExecuteOrchestrator(ctx context.Context, req *backend.OrchestrationRequest) (*backend.OrchestratorState, error) {
	schema := te.schema
	if req.UpperSchemaVersion != nil {
		schema = schema.Min(*req.UpperSchemaVersion)
	}
	octx := NewOrchestrationContext(te.Registry, req, te.logger)
	state := &backend.OrchestratorState{Schema: schema}

	te.logger.Debugf("%v: replaying history: %s", req.InstanceID, helpers.HistoryListSummary(req.History))
	es := octx.findExecutionStarted()
	if es == nil {
		te.logger.Warnf("%v: history has no ExecutionStarted event; nothing to do", req.InstanceID)
		state.Actions = [][]backend.Action{}
		return state, nil
	}

	spanCtx, span := helpers.StartNewReplaySpan(ctx, es.Name, string(octx.ID), req.IsReplaying, es.Timestamp)
	octx.traceCtx = spanCtx

	output, appErr := te.run(octx, es.Name)

	state.Actions = octx.actions
	if state.Actions == nil {
		state.Actions = [][]backend.Action{}
	}
	state.CustomStatus = octx.customStatus

	status := api.RUNTIME_STATUS_RUNNING
	switch {
	case appErr != nil:
		status = api.RUNTIME_STATUS_FAILED
		state.Error = appErr.Error()
	case output.done && octx.continuedAsNew:
		status = api.RUNTIME_STATUS_CONTINUED_AS_NEW
		state.IsDone = true
	case output.done:
		status = api.RUNTIME_STATUS_COMPLETED
		state.IsDone = true
		state.Output = output.raw
	}
	helpers.EndReplaySpan(span, helpers.ToRuntimeStatusString(status), len(req.History), appErr)
	te.logger.Debugf("%v: orchestrator %s is %s with %d action batch(es)", octx.ID, es.Name, status, len(state.Actions))
	for i, batch := range state.Actions {
		te.logger.Debugf("%v: batch %d: %s", octx.ID, i, helpers.ActionListSummary(batch))
	}

	if appErr != nil {
		te.logger.Warnf("%v: orchestrator %s failed: %v", octx.ID, es.Name, appErr)
		data, err := json.Marshal(state)
		if err != nil {
			return state, fmt.Errorf("failed to serialize state of failed orchestration: %w", err)
		}
		return state, &backend.OrchestrationError{Message: appErr.Error(), State: data}
	}
	return state, nil
}

type orchestratorOutput struct {
	done bool
	raw  json.RawMessage
}

func (te *taskExecutor) run(octx *OrchestrationContext, name string) (orchestratorOutput, error) {
	orchestrator, ok := te.Registry.orchestrators.lookup(name)
	if !ok {
		return orchestratorOutput{}, fmt.Errorf("orchestrator named '%s' is not registered", name)
	}

	result, blocked, appErr := octx.start(orchestrator)
	if appErr != nil {
		return orchestratorOutput{}, appErr
	}
	if blocked {
		return orchestratorOutput{}, nil
	}
	raw, err := marshalData(result)
	if err != nil {
		return orchestratorOutput{}, fmt.Errorf("failed to marshal orchestrator output to JSON: %w", err)
	}
	return orchestratorOutput{done: true, raw: raw}, nil
}

// ExecuteActivity runs a registered activity in the current goroutine. Panics are converted into
// errors.
func (te *taskExecutor) ExecuteActivity(ctx context.Context, name string, rawInput json.RawMessage) (rawResult json.RawMessage, err error) {
	invoker, ok := te.Registry.activities.lookup(name)
	if !ok {
		return nil, fmt.Errorf("no task activity named '%s' was registered", name)
	}
	activityCtx := newTaskActivityContext(ctx, name, rawInput)

	// convert panics into activity failures
	defer func() {
		if panicVal := recover(); panicVal != nil {
			rawResult = nil
			err = fmt.Errorf("panic: %v", panicVal)
		}
	}()

	result, err := invoker(activityCtx)
	if err != nil {
		return nil, err
	}
	return marshalData(result)
}

func unmarshalData(data []byte, v any) error {
	if v == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func marshalData(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
