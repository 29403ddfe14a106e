package task

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/microsoft/durablefunctions-go/backend"
)

// WhenAnyError is returned by a WhenAny task whose children all failed. Errors are listed in the
// order the tasks were passed to WhenAny.
type WhenAnyError struct {
	Errors []error
}

func (e *WhenAnyError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("all %d tasks failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *WhenAnyError) Unwrap() []error {
	return e.Errors
}

// childObserver is implemented by the concrete compound tasks.
type childObserver interface {
	trySetValue(child durableTask)
}

// compoundBase owns the children of a compound task for the length of a replay. Children keep a
// slot index to their parent rather than a pointer.
type compoundBase struct {
	taskBase
	children  []durableTask
	pending   map[int]struct{}
	completed []durableTask
	firstErr  error
}

func (c *compoundBase) initCompound(ctx *OrchestrationContext, self compoundTask) {
	c.init(ctx, self)
	c.pending = make(map[int]struct{})
}

// adopt registers children and then replays the completion of those that are already done.
// When byTimestamp is set the completed children are processed in completion order, otherwise
// in the order given.
func (c *compoundBase) adopt(byTimestamp bool, children ...Task) {
	var done []durableTask
	for _, t := range children {
		child, ok := t.(durableTask)
		if !ok || child.base().ctx != c.ctx {
			panic(ErrForeignTask)
		}
		b := child.base()
		if _, dup := c.pending[b.slot]; dup {
			panic(fmt.Errorf("%w: task %d passed twice", ErrTaskAlreadyAdopted, b.slot))
		}
		c.children = append(c.children, child)
		c.pending[b.slot] = struct{}{}
		if b.isCompleted() {
			done = append(done, child)
			continue
		}
		if b.parent >= 0 && b.parent != c.slot {
			panic(fmt.Errorf("%w: task %d is owned by task %d", ErrTaskAlreadyAdopted, b.slot, b.parent))
		}
		b.parent = c.slot
	}
	if byTimestamp {
		sort.SliceStable(done, func(i, j int) bool {
			return done[i].base().timestamp.Before(done[j].base().timestamp)
		})
	}
	for _, child := range done {
		c.handleCompletion(child)
	}
}

func (c *compoundBase) handleCompletion(child durableTask) {
	slot := child.base().slot
	if _, ok := c.pending[slot]; !ok {
		panic(fmt.Errorf("task %d has no pending child %d; the child most likely completed twice", c.slot, slot))
	}
	delete(c.pending, slot)
	c.completed = append(c.completed, child)
	if c.isCompleted() {
		return
	}
	c.self.(childObserver).trySetValue(child)
}

func (c *compoundBase) childActions() []backend.Action {
	actions := make([]backend.Action, len(c.children))
	for i, child := range c.children {
		actions[i] = child.actionRepr()
	}
	return actions
}

type whenAllTask struct {
	compoundBase
	action *backend.WhenAllAction
}

// WhenAll returns a task that completes when every task completes. Its result is the list of
// the children's results in the order the tasks were passed. If any child fails, the WhenAll
// fails with the error of the first failed child in that order.
func (ctx *OrchestrationContext) WhenAll(tasks ...Task) Task {
	ctx.flushReissues()
	t := &whenAllTask{}
	t.initCompound(ctx, t)
	t.adopt(false, tasks...)
	if !t.isCompleted() && len(t.pending) == 0 {
		t.succeed()
	}
	t.action = &backend.WhenAllAction{CompoundActions: t.childActions()}
	return t
}

func (t *whenAllTask) actionRepr() backend.Action {
	return t.action
}

func (t *whenAllTask) trySetValue(child durableTask) {
	cb := child.base()
	if cb.isFaulted() {
		if t.firstErr == nil {
			t.firstErr = cb.err
			t.timestamp = cb.timestamp
			t.isPlayed = cb.isPlayed
			t.setValue(stateFailed, nil, cb.err)
		}
		return
	}
	if len(t.pending) == 0 {
		t.succeed()
	}
}

func (t *whenAllTask) succeed() {
	var buf bytes.Buffer
	buf.WriteByte('[')
	t.isPlayed = true
	for i, child := range t.children {
		cb := child.base()
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(cb.rawResult) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(cb.rawResult)
		}
		if cb.timestamp.After(t.timestamp) {
			t.timestamp = cb.timestamp
		}
		t.isPlayed = t.isPlayed && cb.isPlayed
	}
	buf.WriteByte(']')
	t.setValue(stateSucceeded, buf.Bytes(), nil)
}

type whenAnyTask struct {
	compoundBase
	action *backend.WhenAnyAction
	winner durableTask
}

// WhenAny returns a task that completes as soon as one of the tasks succeeds. When several have
// succeeded the one with the earliest completion time wins, and ties go to the task passed first.
// The winner is stored by Await into a *Task. If every task fails, the WhenAny fails with a
// [*WhenAnyError].
//
// Timers raced against other tasks keep running after WhenAny completes; cancel them explicitly.
func (ctx *OrchestrationContext) WhenAny(tasks ...Task) Task {
	if len(tasks) == 0 {
		panic(ErrNoTasks)
	}
	ctx.flushReissues()
	t := &whenAnyTask{}
	t.initCompound(ctx, t)
	t.adopt(true, tasks...)
	t.action = &backend.WhenAnyAction{CompoundActions: t.childActions()}
	return t
}

func (t *whenAnyTask) actionRepr() backend.Action {
	return t.action
}

func (t *whenAnyTask) trySetValue(child durableTask) {
	cb := child.base()
	if !cb.isFaulted() {
		t.winner = child
		t.timestamp = cb.timestamp
		t.isPlayed = cb.isPlayed
		t.setValue(stateSucceeded, nil, nil)
		return
	}
	if t.firstErr == nil {
		t.firstErr = cb.err
	}
	if len(t.pending) == 0 {
		errs := make([]error, len(t.children))
		for i, c := range t.children {
			errs[i] = c.base().err
			if c.base().timestamp.After(t.timestamp) {
				t.timestamp = c.base().timestamp
			}
		}
		t.isPlayed = cb.isPlayed
		t.setValue(stateFailed, nil, &WhenAnyError{Errors: errs})
	}
}

// Await stores the winning task into v, which must be a *Task or nil.
func (t *whenAnyTask) Await(v any) error {
	t.ctx.onAwait(t)
	if t.isFaulted() {
		return t.err
	}
	switch p := v.(type) {
	case nil:
		return nil
	case *Task:
		*p = t.winner
		return nil
	default:
		return ErrInvalidWhenAnyTarget
	}
}
