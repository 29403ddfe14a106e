package backend

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/microsoft/durablefunctions-go/api"
)

// ActionType is the discriminant of an [Action]. The numeric values are part of the wire contract.
type ActionType int

const (
	ActionCallActivity                 ActionType = 0
	ActionCallActivityWithRetry        ActionType = 1
	ActionCallSubOrchestrator          ActionType = 2
	ActionCallSubOrchestratorWithRetry ActionType = 3
	ActionContinueAsNew                ActionType = 4
	ActionCreateTimer                  ActionType = 5
	ActionWaitForExternalEvent         ActionType = 6
	ActionCallEntity                   ActionType = 7
	ActionCallHTTP                     ActionType = 8
	ActionSignalEntity                 ActionType = 9
	ActionWhenAny                      ActionType = 11
	ActionWhenAll                      ActionType = 12
)

var actionTypeNames = map[ActionType]string{
	ActionCallActivity:                 "CallActivity",
	ActionCallActivityWithRetry:        "CallActivityWithRetry",
	ActionCallSubOrchestrator:          "CallSubOrchestrator",
	ActionCallSubOrchestratorWithRetry: "CallSubOrchestratorWithRetry",
	ActionContinueAsNew:                "ContinueAsNew",
	ActionCreateTimer:                  "CreateTimer",
	ActionWaitForExternalEvent:         "WaitForExternalEvent",
	ActionCallEntity:                   "CallEntity",
	ActionCallHTTP:                     "CallHttp",
	ActionSignalEntity:                 "SignalEntity",
	ActionWhenAny:                      "WhenAny",
	ActionWhenAll:                      "WhenAll",
}

func (t ActionType) String() string {
	if name, ok := actionTypeNames[t]; ok {
		return name
	}
	return "ActionType(" + strconv.Itoa(int(t)) + ")"
}

// FireAtLayout is the layout of timer fire times in actions.
const FireAtLayout = "2006-01-02T15:04:05.000000Z"

// HTTPActivityName is the activity name under which the host records durable HTTP calls.
const HTTPActivityName = "BuiltIn::HttpActivity"

// Action describes work the orchestration wants the host to perform. Actions are values: once
// created they don't change, except for the cancellation flag of a timer.
type Action interface {
	ActionType() ActionType
}

// CompoundAction is an action that groups the actions of the children of a WhenAll or WhenAny.
type CompoundAction interface {
	Action
	Children() []Action
}

type CallActivityAction struct {
	FunctionName string          `json:"functionName"`
	Input        json.RawMessage `json:"input"`
}

func (*CallActivityAction) ActionType() ActionType { return ActionCallActivity }

func (a *CallActivityAction) MarshalJSON() ([]byte, error) {
	type alias CallActivityAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

type CallActivityWithRetryAction struct {
	FunctionName string            `json:"functionName"`
	RetryOptions *api.RetryOptions `json:"retryOptions"`
	Input        json.RawMessage   `json:"input"`
}

func (*CallActivityWithRetryAction) ActionType() ActionType { return ActionCallActivityWithRetry }

func (a *CallActivityWithRetryAction) MarshalJSON() ([]byte, error) {
	type alias CallActivityWithRetryAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

type CallSubOrchestratorAction struct {
	FunctionName string          `json:"functionName"`
	InstanceID   string          `json:"instanceId,omitempty"`
	Input        json.RawMessage `json:"input"`
}

func (*CallSubOrchestratorAction) ActionType() ActionType { return ActionCallSubOrchestrator }

func (a *CallSubOrchestratorAction) MarshalJSON() ([]byte, error) {
	type alias CallSubOrchestratorAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

type CallSubOrchestratorWithRetryAction struct {
	FunctionName string            `json:"functionName"`
	RetryOptions *api.RetryOptions `json:"retryOptions"`
	InstanceID   string            `json:"instanceId,omitempty"`
	Input        json.RawMessage   `json:"input"`
}

func (*CallSubOrchestratorWithRetryAction) ActionType() ActionType {
	return ActionCallSubOrchestratorWithRetry
}

func (a *CallSubOrchestratorWithRetryAction) MarshalJSON() ([]byte, error) {
	type alias CallSubOrchestratorWithRetryAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

type ContinueAsNewAction struct {
	Input json.RawMessage `json:"input"`
}

func (*ContinueAsNewAction) ActionType() ActionType { return ActionContinueAsNew }

func (a *ContinueAsNewAction) MarshalJSON() ([]byte, error) {
	type alias ContinueAsNewAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

// CreateTimerAction asks the host for a durable timer. IsCanceled is the only mutable field of
// any action; it may be set until the batch is serialized.
type CreateTimerAction struct {
	FireAt     time.Time
	IsCanceled bool
}

func (*CreateTimerAction) ActionType() ActionType { return ActionCreateTimer }

func (a *CreateTimerAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		FireAt     string     `json:"fireAt"`
		IsCanceled bool       `json:"isCanceled"`
	}{a.ActionType(), a.FireAt.UTC().Format(FireAtLayout), a.IsCanceled})
}

type WaitForExternalEventAction struct {
	ExternalEventName string `json:"externalEventName"`
	Reason            string `json:"reason"`
}

func (*WaitForExternalEventAction) ActionType() ActionType { return ActionWaitForExternalEvent }

func (a *WaitForExternalEventAction) MarshalJSON() ([]byte, error) {
	type alias WaitForExternalEventAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

// CallEntityAction invokes an operation on an entity and waits for its response. Input holds
// the JSON text of the operation input.
type CallEntityAction struct {
	EntityID  string `json:"entityId"`
	Operation string `json:"operation"`
	Input     string `json:"input"`
}

func (*CallEntityAction) ActionType() ActionType { return ActionCallEntity }

func (a *CallEntityAction) MarshalJSON() ([]byte, error) {
	type alias CallEntityAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

// SignalEntityAction sends a one-way operation to an entity.
type SignalEntityAction struct {
	EntityID  string `json:"entityId"`
	Operation string `json:"operation"`
	Input     string `json:"input"`
}

func (*SignalEntityAction) ActionType() ActionType { return ActionSignalEntity }

func (a *SignalEntityAction) MarshalJSON() ([]byte, error) {
	type alias SignalEntityAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

// TokenSource tells the host to attach a managed identity token for Resource to a durable HTTP request.
type TokenSource struct {
	Resource string `json:"resource"`
}

// DurableHTTPRequest is an HTTP request the host performs on behalf of the orchestration.
type DurableHTTPRequest struct {
	Method      string            `json:"method"`
	URI         string            `json:"uri"`
	Content     string            `json:"content,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	TokenSource *TokenSource      `json:"tokenSource,omitempty"`
}

type CallHTTPAction struct {
	HTTPRequest *DurableHTTPRequest `json:"httpRequest"`
}

func (*CallHTTPAction) ActionType() ActionType { return ActionCallHTTP }

func (a *CallHTTPAction) MarshalJSON() ([]byte, error) {
	type alias CallHTTPAction
	return json.Marshal(struct {
		ActionType ActionType `json:"actionType"`
		*alias
	}{a.ActionType(), (*alias)(a)})
}

type WhenAllAction struct {
	CompoundActions []Action `json:"compoundActions"`
}

func (*WhenAllAction) ActionType() ActionType { return ActionWhenAll }

func (a *WhenAllAction) Children() []Action { return a.CompoundActions }

func (a *WhenAllAction) MarshalJSON() ([]byte, error) {
	return marshalCompound(a)
}

type WhenAnyAction struct {
	CompoundActions []Action `json:"compoundActions"`
}

func (*WhenAnyAction) ActionType() ActionType { return ActionWhenAny }

func (a *WhenAnyAction) Children() []Action { return a.CompoundActions }

func (a *WhenAnyAction) MarshalJSON() ([]byte, error) {
	return marshalCompound(a)
}

func marshalCompound(a CompoundAction) ([]byte, error) {
	children := a.Children()
	if children == nil {
		children = []Action{}
	}
	return json.Marshal(struct {
		ActionType      ActionType `json:"actionType"`
		CompoundActions []Action   `json:"compoundActions"`
	}{a.ActionType(), children})
}

// FlattenActions replaces every compound action by its leaf actions, depth first.
func FlattenActions(actions []Action) []Action {
	flat := make([]Action, 0, len(actions))
	for _, a := range actions {
		if c, ok := a.(CompoundAction); ok {
			flat = append(flat, FlattenActions(c.Children())...)
		} else {
			flat = append(flat, a)
		}
	}
	return flat
}
