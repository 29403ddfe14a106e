package local

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
)

// EntityFunc implements the operations of one kind of entity. It receives the entity's current
// state, nil for a new entity, and returns the new state and the operation's result. An error
// is reported to a calling orchestration as a failed operation and leaves the state unchanged.
type EntityFunc func(state json.RawMessage, operation string, input json.RawMessage) (newState any, result any, err error)

// entityMessage is the payload of the "op" event an orchestration sends to an entity.
type entityMessage struct {
	ID        string `json:"id"`
	Operation string `json:"op"`
	Input     string `json:"input,omitempty"`
	Signal    bool   `json:"signal,omitempty"`
}

func newEntityMessage(requestID string, operation string, input string, signal bool) (json.RawMessage, error) {
	data, err := json.Marshal(&entityMessage{ID: requestID, Operation: operation, Input: input, Signal: signal})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize entity message: %w", err)
	}
	return data, nil
}

func normalizeEntityName(name string) string {
	return strings.ToLower(name)
}

// EntityState returns the stored state of an entity, or nil if no operation ever ran on it.
func (h *Host) EntityState(entity api.EntityID) json.RawMessage {
	if v, ok := h.entityState.Load(entity.SchedulerID()); ok {
		return v.(json.RawMessage)
	}
	return nil
}

// runEntityOperation runs one operation on the entity addressed by schedulerID and returns the
// response delivered to the caller.
func (h *Host) runEntityOperation(caller api.InstanceID, schedulerID string, operation string, input string) json.RawMessage {
	resp := h.entityOperation(schedulerID, operation, input)
	if resp.ExceptionType != "" {
		h.logger.Warnf("%v: operation '%s' on entity %s failed: %s", caller, operation, schedulerID, resp.Result)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		// EntityResponse only has string fields
		panic(err)
	}
	return data
}

func (h *Host) entityOperation(schedulerID string, operation string, input string) *backend.EntityResponse {
	entity, err := api.ParseSchedulerID(schedulerID)
	if err != nil {
		return &backend.EntityResponse{ExceptionType: "InvalidEntityId", Result: err.Error()}
	}
	fn, ok := h.entities[normalizeEntityName(entity.Name)]
	if !ok {
		return &backend.EntityResponse{
			ExceptionType: "EntityNotRegistered",
			Result:        fmt.Sprintf("no entity named '%s' was registered", entity.Name),
		}
	}

	var state json.RawMessage
	if v, ok := h.entityState.Load(schedulerID); ok {
		state = v.(json.RawMessage)
	}
	var rawInput json.RawMessage
	if input != "" {
		rawInput = json.RawMessage(input)
	}

	newState, result, err := invokeEntity(fn, state, operation, rawInput)
	if err != nil {
		return &backend.EntityResponse{ExceptionType: "OperationFailed", Result: err.Error()}
	}
	stateData, err := json.Marshal(newState)
	if err != nil {
		return &backend.EntityResponse{ExceptionType: "SerializationError", Result: err.Error()}
	}
	resultData, err := json.Marshal(result)
	if err != nil {
		return &backend.EntityResponse{ExceptionType: "SerializationError", Result: err.Error()}
	}
	h.entityState.Store(schedulerID, json.RawMessage(stateData))
	return &backend.EntityResponse{Result: string(resultData)}
}

// invokeEntity converts panics of an entity implementation into operation failures.
func invokeEntity(fn EntityFunc, state json.RawMessage, operation string, input json.RawMessage) (newState any, result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(state, operation, input)
}
