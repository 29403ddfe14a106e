package samples

import (
	"context"
	"fmt"
	"time"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/task"
)

func init() {
	register(Sample{
		Name:         "external-events",
		Description:  "waits up to 30 seconds for a Name event",
		Orchestrator: "ExternalEventOrchestrator",
		Interact: func(ctx context.Context, client api.Client, id api.InstanceID) error {
			return client.RaiseEvent(ctx, id, "Name", api.WithEventPayload("Chris"))
		},
	})
	register(Sample{
		Name:         "external-events-timeout",
		Description:  "waits up to 30 seconds for a Name event that never comes",
		Orchestrator: "ExternalEventOrchestrator",
	})
}

func addExternalEvents(r *task.TaskRegistry) error {
	return r.AddOrchestrator(ExternalEventOrchestrator)
}

// ExternalEventOrchestrator blocks for 30 seconds or until a "Name" event is sent to it.
func ExternalEventOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	name := ctx.WaitForExternalEvent("Name")
	timeout := ctx.CreateTimer(30 * time.Second)

	var winner task.Task
	if err := ctx.WhenAny(name, timeout).Await(&winner); err != nil {
		return nil, err
	}
	if winner == timeout {
		return nil, fmt.Errorf("no name was received by %s", ctx.CurrentTimeUtc.Format(time.RFC3339))
	}
	if err := timeout.Cancel(); err != nil {
		return nil, err
	}

	var nameInput string
	if err := name.Await(&nameInput); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Hello, %s!", nameInput), nil
}
