package task

import (
	"time"

	"github.com/microsoft/durablefunctions-go/backend"
)

// CreateTimer schedules a durable timer that expires after the specified delay, measured from
// the current orchestration time.
func (ctx *OrchestrationContext) CreateTimer(delay time.Duration) *TimerTask {
	return ctx.CreateTimerAt(ctx.CurrentTimeUtc.Add(delay))
}

// CreateTimerAt schedules a durable timer that expires at fireAt. The fire time is kept at
// microsecond precision, which is what the host stores.
func (ctx *OrchestrationContext) CreateTimerAt(fireAt time.Time) *TimerTask {
	fireAt = fireAt.UTC().Truncate(time.Microsecond)
	created := ctx.history.FindTimerCreated(fireAt)
	fired := ctx.history.FindTimerFired(created)
	return ctx.newTimerTask(fireAt, created, fired)
}

// WaitForExternalEvent returns a task that completes when an event with the given name is raised
// to the orchestration. Events that arrive before anyone waits for them are queued, and waits for
// the same name consume them in arrival order.
func (ctx *OrchestrationContext) WaitForExternalEvent(eventName string) Task {
	raised := mustFind(ctx.history.FindEventRaised(eventName))
	t := ctx.newSimpleTask(&backend.WaitForExternalEventAction{
		ExternalEventName: eventName,
		Reason:            "ExternalEvent",
	})
	if e := ctx.history.Event(raised); e != nil {
		t.completeFromEvent(raised, e.Input)
	}
	return t
}
