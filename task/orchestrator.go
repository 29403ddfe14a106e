package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/internal/helpers"
)

// Orchestrator is the functional interface for orchestrator functions.
type Orchestrator func(ctx *OrchestrationContext) (any, error)

// OrchestrationContext is the parameter type for orchestrator functions. It is rebuilt from the
// history on every replay and must only be used from the orchestrator's goroutine.
type OrchestrationContext struct {
	ID       api.InstanceID
	Name     string
	ParentID api.InstanceID
	// IsReplaying is true while the orchestrator re-executes code whose outcome is already in the history.
	IsReplaying bool
	// CurrentTimeUtc is the deterministic time of the current decision. It never goes backwards
	// and is the same on every replay.
	CurrentTimeUtc time.Time

	registry *TaskRegistry
	logger   backend.Logger
	history  *backend.History
	rawInput json.RawMessage
	traceCtx context.Context

	tasks        []durableTask
	reissues     []reissue
	actions      [][]backend.Action
	decisionPos  int
	guidCounter  int
	customStatus json.RawMessage

	continuedAsNew bool
}

// NewOrchestrationContext returns a new [OrchestrationContext] for one replay of the given request.
func NewOrchestrationContext(registry *TaskRegistry, req *backend.OrchestrationRequest, logger backend.Logger) *OrchestrationContext {
	if logger == nil {
		logger = backend.DefaultLogger()
	}
	ctx := &OrchestrationContext{
		ID:          req.InstanceID,
		ParentID:    req.ParentInstanceID,
		IsReplaying: req.IsReplaying,
		registry:    registry,
		logger:      logger,
		history:     req.NewHistory(),
		rawInput:    req.Input,
		traceCtx:    context.Background(),
		decisionPos: -1,
	}
	ctx.initClock()
	return ctx
}

// initClock seeds the current time with the first OrchestratorStarted event, falling back to
// ExecutionStarted for histories that don't have one.
func (ctx *OrchestrationContext) initClock() {
	fallback := -1
	for i, e := range ctx.history.Events() {
		switch e.EventType {
		case backend.EventOrchestratorStarted:
			ctx.decisionPos = i
			ctx.CurrentTimeUtc = e.Timestamp
			return
		case backend.EventExecutionStarted:
			if fallback < 0 {
				fallback = i
			}
		}
	}
	if e := ctx.history.Event(fallback); e != nil {
		ctx.decisionPos = fallback
		ctx.CurrentTimeUtc = e.Timestamp
	}
}

// advanceClock moves the current time to the next OrchestratorStarted event that is later than
// the current decision. Without one, the current time is kept.
func (ctx *OrchestrationContext) advanceClock() {
	events := ctx.history.Events()
	for i := ctx.decisionPos + 1; i < len(events); i++ {
		e := events[i]
		if e.EventType == backend.EventOrchestratorStarted && e.Timestamp.After(ctx.CurrentTimeUtc) {
			ctx.decisionPos = i
			ctx.CurrentTimeUtc = e.Timestamp
			return
		}
	}
}

// onAwait records the awaited task's action as a new batch and suspends the orchestrator if the
// history doesn't have the task's outcome yet.
func (ctx *OrchestrationContext) onAwait(t durableTask) {
	ctx.flushReissues()
	ctx.actions = append(ctx.actions, []backend.Action{t.actionRepr()})
	b := t.base()
	if !b.isCompleted() {
		// TODO: Need a rule about using "defer" in orchestrations because planned panics will invoke them unexpectedly
		panic(ErrTaskBlocked)
	}
	ctx.advanceClock()
	ctx.IsReplaying = b.isPlayed
}

// start runs the orchestrator as far as the history allows. It returns the orchestrator's output
// and error, and whether it is still waiting for a task.
func (ctx *OrchestrationContext) start(o Orchestrator) (output any, blocked bool, err error) {
	defer func() {
		result := recover()
		if result == nil {
			return
		}
		if result == ErrTaskBlocked {
			// Expected, normal part of execution
			blocked = true
			return
		}
		// convert panics into orchestration failures
		if perr, ok := result.(error); ok {
			err = fmt.Errorf("panic: %w", perr)
		} else {
			err = fmt.Errorf("panic: %v", result)
		}
	}()
	output, err = o(ctx)
	return output, false, err
}

// findExecutionStarted claims the ExecutionStarted event. Orchestrator episode markers are skipped;
// every other event is left to the correlators.
func (ctx *OrchestrationContext) findExecutionStarted() *backend.HistoryEvent {
	for i, e := range ctx.history.Events() {
		switch e.EventType {
		case backend.EventOrchestratorStarted, backend.EventOrchestratorCompleted:
			continue
		case backend.EventExecutionStarted:
			ctx.history.SetProcessed(i)
			ctx.Name = e.Name
			if ctx.rawInput == nil {
				ctx.rawInput = e.Input
			}
			if ctx.ID == api.EmptyInstanceID && e.OrchestrationInstance != nil {
				ctx.ID = api.InstanceID(e.OrchestrationInstance.InstanceID)
			}
			return e
		}
	}
	return nil
}

// GetInput unmarshals the serialized orchestration input and stores it in [v].
func (ctx *OrchestrationContext) GetInput(v any) error {
	return unmarshalData(ctx.rawInput, v)
}

// SetCustomStatus sets a JSON-serializable status that the host reports for the instance.
func (ctx *OrchestrationContext) SetCustomStatus(status any) error {
	data, err := marshalData(status)
	if err != nil {
		return fmt.Errorf("failed to marshal custom status: %w", err)
	}
	ctx.customStatus = data
	return nil
}

// ContinueAsNew restarts the orchestration with a new input once the orchestrator function
// returns. The request is recorded right away as its own batch.
func (ctx *OrchestrationContext) ContinueAsNew(newInput any) {
	data, err := marshalData(newInput)
	if err != nil {
		panic(fmt.Errorf("failed to marshal continue-as-new input: %w", err))
	}
	ctx.actions = append(ctx.actions, []backend.Action{&backend.ContinueAsNewAction{Input: data}})
	ctx.continuedAsNew = true
}

// Actions returns the action batches recorded so far.
func (ctx *OrchestrationContext) Actions() [][]backend.Action {
	return ctx.actions
}

func (ctx *OrchestrationContext) newSimpleTask(action backend.Action) *simpleTask {
	t := &simpleTask{action: action}
	t.init(ctx, t)
	return t
}

// resolveResponse completes t from whichever of the completion or failure events was found.
func (t *taskBase) resolveResponse(completed int, failed int) {
	if e := t.ctx.history.Event(completed); e != nil {
		t.completeFromEvent(completed, e.Result)
	} else if failed >= 0 {
		t.failFromEvent(failed)
	}
}

func (ctx *OrchestrationContext) newTimerTask(fireAt time.Time, created int, fired int) *TimerTask {
	t := &TimerTask{}
	t.action = &backend.CreateTimerAction{FireAt: fireAt.UTC()}
	t.init(ctx, t)
	if e := ctx.history.Event(fired); e != nil {
		t.completeFromEvent(fired, nil)
		if !e.IsPlayed {
			createdAt := ctx.CurrentTimeUtc
			if c := ctx.history.Event(created); c != nil {
				createdAt = c.Timestamp
			}
			helpers.StartAndEndNewTimerSpan(ctx.traceCtx, fireAt, t.id, createdAt, string(ctx.ID))
		}
	}
	return t
}

func mustName(f any) string {
	name := helpers.GetTaskFunctionName(f)
	if name == "" {
		panic(backend.ErrEmptyName)
	}
	return name
}

func mustFind(pos int, err error) int {
	if err != nil {
		panic(err)
	}
	return pos
}
