package task

import (
	"encoding/json"
	"fmt"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
)

// EntityOperationError is the error of an entity call whose operation threw.
type EntityOperationError struct {
	Entity        api.EntityID
	Operation     string
	ExceptionType string
	Message       string
}

func (e *EntityOperationError) Error() string {
	return fmt.Sprintf("operation '%s' on entity %v failed with %s: %s", e.Operation, e.Entity, e.ExceptionType, e.Message)
}

// CallEntity invokes an operation on an entity and returns a task that completes with the
// operation's result.
func (ctx *OrchestrationContext) CallEntity(entity api.EntityID, operation string, input any) Task {
	action := &backend.CallEntityAction{EntityID: entity.SchedulerID(), Operation: operation}
	if err := validateEntity(entity); err != nil {
		panic(err)
	}
	data, err := json.Marshal(input)
	if err != nil {
		return ctx.newFailedTask(action, fmt.Errorf("failed to marshal entity input: %w", err))
	}
	action.Input = string(data)

	t := ctx.newSimpleTask(action)
	_, raised, err := ctx.history.FindEntityResponse(entity.SchedulerID())
	if err != nil {
		panic(err)
	}
	e := ctx.history.Event(raised)
	if e == nil {
		return t
	}

	var resp backend.EntityResponse
	if err := json.Unmarshal(e.Input, &resp); err != nil {
		t.markEvent(raised, e)
		t.setValue(stateFailed, nil, fmt.Errorf("failed to decode response of entity %v: %w", entity, err))
		return t
	}
	if resp.ExceptionType != "" {
		t.markEvent(raised, e)
		t.setValue(stateFailed, nil, &EntityOperationError{
			Entity:        entity,
			Operation:     operation,
			ExceptionType: resp.ExceptionType,
			Message:       resp.Result,
		})
		return t
	}
	var result json.RawMessage
	if resp.Result != "" {
		result = json.RawMessage(resp.Result)
	}
	t.completeFromEvent(raised, result)
	return t
}

// SignalEntity sends a one-way operation to an entity. Nothing is awaited; the request is
// recorded right away as its own batch.
func (ctx *OrchestrationContext) SignalEntity(entity api.EntityID, operation string, input any) error {
	if err := validateEntity(entity); err != nil {
		return err
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal entity input: %w", err)
	}
	// the signal's own "op" message must not be matched by a later call to the same entity
	if _, err := ctx.history.FindEventSent(entity.SchedulerID(), "op"); err != nil {
		return err
	}
	ctx.actions = append(ctx.actions, []backend.Action{&backend.SignalEntityAction{
		EntityID:  entity.SchedulerID(),
		Operation: operation,
		Input:     string(data),
	}})
	return nil
}

func validateEntity(entity api.EntityID) error {
	_, err := api.NewEntityID(entity.Name, entity.Key)
	return err
}
