package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/microsoft/durablefunctions-go/backend"
)

// ErrTaskBlocked is not an error, but rather a control flow signal indicating that an orchestrator
// function has executed as far as the history allows and that it now needs to unload and hand its
// scheduled actions to the host.
var ErrTaskBlocked = errors.New("the current task is blocked")

var (
	ErrTimerAlreadyCompleted = errors.New("cannot cancel a timer that has already completed")
	ErrTaskAlreadyAdopted    = errors.New("task already belongs to another compound task")
	ErrForeignTask           = errors.New("task was not created by this orchestration context")
	ErrInvalidWhenAnyTarget  = errors.New("the result of WhenAny can only be stored in a *task.Task")
	ErrNoTasks               = errors.New("WhenAny requires at least one task")
	ErrMissingRetryOptions   = errors.New("retry options are required")
)

// Task is an interface for asynchronous durable tasks. A task is conceptually similar to a future.
type Task interface {
	Await(v any) error
}

// TaskFailedError is the error of a task whose operation the host reported as failed.
type TaskFailedError struct {
	Reason  string
	Details string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("%s\n%s", e.Reason, e.Details)
}

type taskState int

const (
	stateRunning taskState = iota
	stateSucceeded
	stateFailed
)

func (s taskState) String() string {
	switch s {
	case stateSucceeded:
		return "SUCCEEDED"
	case stateFailed:
		return "FAILED"
	default:
		return "RUNNING"
	}
}

// durableTask is implemented by every task the context hands out.
type durableTask interface {
	Task
	base() *taskBase
	// actionRepr is the action recorded in the batch when the task is awaited.
	actionRepr() backend.Action
}

// compoundTask is implemented by tasks that aggregate children.
type compoundTask interface {
	durableTask
	handleCompletion(child durableTask)
}

// taskBase holds the state shared by all tasks. A task moves once from running to succeeded or
// failed and doesn't change afterwards.
type taskBase struct {
	ctx  *OrchestrationContext
	self durableTask
	// slot is the index of the task in the context's task table.
	slot int
	// parent is the slot of the enclosing compound task, or -1.
	parent int

	state     taskState
	rawResult json.RawMessage
	err       error
	timestamp time.Time
	id        int32
	isPlayed  bool
	// eventPos is the history position of the event that completed the task, or -1.
	eventPos int
}

func (t *taskBase) init(ctx *OrchestrationContext, self durableTask) {
	t.ctx = ctx
	t.self = self
	t.parent = -1
	t.id = -1
	t.eventPos = -1
	t.slot = len(ctx.tasks)
	ctx.tasks = append(ctx.tasks, self)
}

func (t *taskBase) base() *taskBase {
	return t
}

func (t *taskBase) isCompleted() bool {
	return t.state != stateRunning
}

func (t *taskBase) isFaulted() bool {
	return t.state == stateFailed
}

// completeFromEvent completes the task with the outcome recorded by the history event at pos.
func (t *taskBase) completeFromEvent(pos int, rawResult json.RawMessage) {
	e := t.ctx.history.Event(pos)
	t.markEvent(pos, e)
	t.setValue(stateSucceeded, rawResult, nil)
}

// failFromEvent fails the task with the reason and details of the history event at pos.
func (t *taskBase) failFromEvent(pos int) {
	e := t.ctx.history.Event(pos)
	t.markEvent(pos, e)
	t.setValue(stateFailed, nil, &TaskFailedError{Reason: e.Reason, Details: e.Details})
}

func (t *taskBase) markEvent(pos int, e *backend.HistoryEvent) {
	t.eventPos = pos
	t.timestamp = e.Timestamp
	t.isPlayed = e.IsPlayed
	t.id = e.TaskScheduledID
	if t.id < 0 {
		t.id = e.TimerID
	}
}

// setValue moves the task to a terminal state and notifies the parent, if any.
func (t *taskBase) setValue(state taskState, rawResult json.RawMessage, err error) {
	if state == stateRunning {
		panic(fmt.Errorf("task %d cannot be moved back to %v", t.slot, stateRunning))
	}
	if t.isCompleted() {
		panic(fmt.Errorf("task %d completed twice", t.slot))
	}
	t.state = state
	t.rawResult = rawResult
	t.err = err
	if t.parent >= 0 {
		t.ctx.tasks[t.parent].(compoundTask).handleCompletion(t.self)
	}
}

// Await blocks the current orchestrator until the task is complete and then saves the unmarshalled
// result of the task (if any) into [v].
//
// Await may panic with ErrTaskBlocked as the panic value if called on a task that has not yet completed.
// This is normal control flow behavior for orchestrator functions and doesn't actually indicate a failure
// of any kind. However, orchestrator functions must never attempt to recover from such panics to ensure that
// the orchestration execution can proceed normally.
func (t *taskBase) Await(v any) error {
	t.ctx.onAwait(t.self)
	if t.isFaulted() {
		return t.err
	}
	if v != nil && len(t.rawResult) > 0 {
		if err := unmarshalData(t.rawResult, v); err != nil {
			return fmt.Errorf("failed to decode task result: %w", err)
		}
	}
	return nil
}

// simpleTask is a task backed by a single host operation.
type simpleTask struct {
	taskBase
	action backend.Action
}

func (t *simpleTask) actionRepr() backend.Action {
	return t.action
}

// TimerTask is a durable timer. A timer that hasn't fired yet can be cancelled, which the host
// sees as the isCanceled flag of the timer action.
type TimerTask struct {
	simpleTask
}

// Cancel flags the timer action as cancelled. It fails if the timer already fired.
func (t *TimerTask) Cancel() error {
	if t.isCompleted() {
		return ErrTimerAlreadyCompleted
	}
	t.action.(*backend.CreateTimerAction).IsCanceled = true
	return nil
}

// IsCancelled reports whether Cancel was called.
func (t *TimerTask) IsCancelled() bool {
	return t.action.(*backend.CreateTimerAction).IsCanceled
}

// FireAt returns the time at which the timer expires.
func (t *TimerTask) FireAt() time.Time {
	return t.action.(*backend.CreateTimerAction).FireAt
}
