package task_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/task"
)

func sleepHour(ctx *task.OrchestrationContext) (any, error) {
	if err := ctx.CreateTimer(time.Hour).Await(nil); err != nil {
		return nil, err
	}
	return ctx.CurrentTimeUtc, nil
}

func Test_CreateTimer_Pending(t *testing.T) {
	ex := newExecutor(t, "Sleep", sleepHour)

	state, err := replay(t, ex, newHistory("Sleep", ""))
	require.NoError(t, err)
	assert.False(t, state.IsDone)
	require.Len(t, state.Actions, 1)
	timer, ok := state.Actions[0][0].(*backend.CreateTimerAction)
	require.True(t, ok)
	assert.Equal(t, startTime.Add(time.Hour), timer.FireAt)
	assert.False(t, timer.IsCanceled)
}

func Test_CreateTimer_Fired(t *testing.T) {
	ex := newExecutor(t, "Sleep", sleepHour)

	b := newHistory("Sleep", "")
	fireAt := startTime.Add(time.Hour)
	id := b.TimerCreated(fireAt)
	b.OrchestratorCompleted()
	b.Advance(time.Hour).OrchestratorStarted()
	b.TimerFired(id, fireAt)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	// the clock moved to the episode in which the timer fired
	assert.Equal(t, `"2023-05-01T11:00:01Z"`, string(state.Output))
}

func Test_CreateTimerAt_TruncatesToMicroseconds(t *testing.T) {
	fireAt := startTime.Add(30*time.Minute + 1234567*time.Nanosecond)
	var timer *task.TimerTask
	ex := newExecutor(t, "Sleep", func(ctx *task.OrchestrationContext) (any, error) {
		timer = ctx.CreateTimerAt(fireAt.In(time.FixedZone("UTC+2", 2*60*60)))
		return nil, timer.Await(nil)
	})

	b := newHistory("Sleep", "")
	id := b.TimerCreated(fireAt.Truncate(time.Microsecond))
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TimerFired(id, fireAt)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.Equal(t, fireAt.Truncate(time.Microsecond), timer.FireAt())
	assert.Equal(t, time.UTC, timer.FireAt().Location())
}

func Test_TimerCancel(t *testing.T) {
	var cancelErr error
	ex := newExecutor(t, "Cancel", func(ctx *task.OrchestrationContext) (any, error) {
		fired := ctx.CreateTimer(time.Minute)
		if err := fired.Await(nil); err != nil {
			return nil, err
		}
		cancelErr = fired.Cancel()

		pending := ctx.CreateTimer(time.Hour)
		require.NoError(t, pending.Cancel())
		assert.True(t, pending.IsCancelled())
		return nil, pending.Await(nil)
	})

	b := newHistory("Cancel", "")
	fireAt := startTime.Add(time.Minute)
	id := b.TimerCreated(fireAt)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TimerFired(id, fireAt)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.ErrorIs(t, cancelErr, task.ErrTimerAlreadyCompleted)
	require.Len(t, state.Actions, 2)
	assert.True(t, state.Actions[1][0].(*backend.CreateTimerAction).IsCanceled)
}

// approval waits for an "Approval" event for at most a day.
func approval(ctx *task.OrchestrationContext) (any, error) {
	timeout := ctx.CreateTimer(24 * time.Hour)
	event := ctx.WaitForExternalEvent("Approval")
	var winner task.Task
	if err := ctx.WhenAny(event, timeout).Await(&winner); err != nil {
		return nil, err
	}
	if winner == timeout {
		return "timed out", nil
	}
	if err := timeout.Cancel(); err != nil {
		return nil, err
	}
	var answer string
	if err := event.Await(&answer); err != nil {
		return nil, err
	}
	return answer, nil
}

func Test_EventRacesTimer_EventWins(t *testing.T) {
	ex := newExecutor(t, "Approval", approval)

	b := newHistory("Approval", "")
	b.TimerCreated(startTime.Add(24 * time.Hour))
	b.OrchestratorCompleted().OrchestratorStarted()
	b.EventRaised("Approval", `"approved"`)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.Equal(t, `"approved"`, string(state.Output))

	data, err := state.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"isDone":true,"output":"approved","actions":[
		[
			{"actionType":6,"externalEventName":"Approval","reason":"ExternalEvent"},
			{"actionType":5,"fireAt":"2023-05-02T10:00:00.000000Z","isCanceled":true}
		],
		[{"actionType":6,"externalEventName":"Approval","reason":"ExternalEvent"}]
	]}`, string(data))
}

func Test_EventRacesTimer_TimerWins(t *testing.T) {
	ex := newExecutor(t, "Approval", approval)

	b := newHistory("Approval", "")
	fireAt := startTime.Add(24 * time.Hour)
	id := b.TimerCreated(fireAt)
	b.OrchestratorCompleted()
	b.Advance(24 * time.Hour).OrchestratorStarted()
	b.TimerFired(id, fireAt)
	b.OrchestratorCompleted().OrchestratorStarted()
	// too late
	b.EventRaised("Approval", `"approved"`)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.Equal(t, `"timed out"`, string(state.Output))
}

func Test_WaitForExternalEvent_QueuedInArrivalOrder(t *testing.T) {
	ex := newExecutor(t, "Collect", func(ctx *task.OrchestrationContext) (any, error) {
		var items []int
		for range 3 {
			var item int
			if err := ctx.WaitForExternalEvent("Item").Await(&item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	})

	b := newHistory("Collect", "")
	b.EventRaised("Item", "1").EventRaised("Other", "99").EventRaised("Item", "2")
	b.OrchestratorCompleted().OrchestratorStarted()
	b.EventRaised("Item", "3")

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(state.Output))
}

func Test_WaitForExternalEvent_EmptyName(t *testing.T) {
	ex := newExecutor(t, "Nameless", func(ctx *task.OrchestrationContext) (any, error) {
		return nil, ctx.WaitForExternalEvent("").Await(nil)
	})

	state, err := replay(t, ex, newHistory("Nameless", ""))
	require.Error(t, err)
	assert.Equal(t, "panic: "+backend.ErrEmptyName.Error(), state.Error)
}
