package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// EventType is the discriminant of a [HistoryEvent]. The numeric values are part of the wire contract.
type EventType int

const (
	EventExecutionStarted EventType = iota
	EventExecutionCompleted
	EventExecutionFailed
	EventExecutionTerminated
	EventTaskScheduled
	EventTaskCompleted
	EventTaskFailed
	EventSubOrchestrationInstanceCreated
	EventSubOrchestrationInstanceCompleted
	EventSubOrchestrationInstanceFailed
	EventTimerCreated
	EventTimerFired
	EventOrchestratorStarted
	EventOrchestratorCompleted
	EventEventSent
	EventEventRaised
	EventContinueAsNew
	EventGenericEvent
	EventHistoryState
)

var eventTypeNames = [...]string{
	"ExecutionStarted",
	"ExecutionCompleted",
	"ExecutionFailed",
	"ExecutionTerminated",
	"TaskScheduled",
	"TaskCompleted",
	"TaskFailed",
	"SubOrchestrationInstanceCreated",
	"SubOrchestrationInstanceCompleted",
	"SubOrchestrationInstanceFailed",
	"TimerCreated",
	"TimerFired",
	"OrchestratorStarted",
	"OrchestratorCompleted",
	"EventSent",
	"EventRaised",
	"ContinueAsNew",
	"GenericEvent",
	"HistoryState",
}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "EventType(" + strconv.Itoa(int(t)) + ")"
}

var ErrMissingEventField = errors.New("history event is missing a mandatory field")

// OrchestrationInstance identifies one execution of an orchestration.
type OrchestrationInstance struct {
	InstanceID  string `json:"InstanceId"`
	ExecutionID string `json:"ExecutionId,omitempty"`
}

// HistoryEvent is an immutable record of one thing that happened to an orchestration. Only the
// first four fields are always present; the rest depend on the event type. Keys the engine
// doesn't know about are kept in Extra so that they survive a round trip.
type HistoryEvent struct {
	EventType EventType
	EventID   int32
	IsPlayed  bool
	Timestamp time.Time

	Name                  string
	Input                 json.RawMessage
	Result                json.RawMessage
	Reason                string
	Details               string
	TaskScheduledID       int32
	FireAt                time.Time
	TimerID               int32
	InstanceID            string
	OrchestrationInstance *OrchestrationInstance

	Extra map[string]json.RawMessage
}

var mandatoryEventKeys = [...]string{"EventType", "EventId", "IsPlayed", "Timestamp"}

// UnmarshalJSON decodes the host's PascalCase representation of a history event.
func (e *HistoryEvent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range mandatoryEventKeys {
		if raw, ok := fields[key]; !ok || isJSONNull(raw) {
			return fmt.Errorf("%w: %s", ErrMissingEventField, key)
		}
	}

	*e = HistoryEvent{TaskScheduledID: -1, TimerID: -1}
	var err error
	take := func(key string, v any) {
		raw, ok := fields[key]
		if !ok {
			return
		}
		delete(fields, key)
		if err != nil || isJSONNull(raw) {
			return
		}
		if uerr := json.Unmarshal(raw, v); uerr != nil {
			err = fmt.Errorf("invalid %s: %w", key, uerr)
		}
	}
	takeTime := func(key string, t *time.Time) {
		var s string
		take(key, &s)
		if err == nil && s != "" {
			if *t, err = parseTimestamp(s); err != nil {
				err = fmt.Errorf("invalid %s: %w", key, err)
			}
		}
	}
	takePayload := func(key string) json.RawMessage {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		return decodePayload(raw)
	}

	take("EventType", &e.EventType)
	take("EventId", &e.EventID)
	take("IsPlayed", &e.IsPlayed)
	takeTime("Timestamp", &e.Timestamp)
	take("Name", &e.Name)
	take("Reason", &e.Reason)
	take("Details", &e.Details)
	take("TaskScheduledId", &e.TaskScheduledID)
	takeTime("FireAt", &e.FireAt)
	take("TimerId", &e.TimerID)
	take("InstanceId", &e.InstanceID)
	take("OrchestrationInstance", &e.OrchestrationInstance)
	if err != nil {
		return err
	}
	e.Input = takePayload("Input")
	e.Result = takePayload("Result")

	if len(fields) > 0 {
		e.Extra = fields
	}
	return nil
}

// MarshalJSON encodes the event in the host's representation. Payloads are written as JSON
// strings that contain JSON text, which is what the host does.
func (e *HistoryEvent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["EventType"] = e.EventType
	m["EventId"] = e.EventID
	m["IsPlayed"] = e.IsPlayed
	m["Timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	if e.Name != "" {
		m["Name"] = e.Name
	}
	if e.Input != nil {
		m["Input"] = string(e.Input)
	}
	if e.Result != nil {
		m["Result"] = string(e.Result)
	}
	if e.Reason != "" {
		m["Reason"] = e.Reason
	}
	if e.Details != "" {
		m["Details"] = e.Details
	}
	if e.TaskScheduledID >= 0 {
		m["TaskScheduledId"] = e.TaskScheduledID
	}
	if !e.FireAt.IsZero() {
		m["FireAt"] = e.FireAt.UTC().Format(time.RFC3339Nano)
	}
	if e.TimerID >= 0 {
		m["TimerId"] = e.TimerID
	}
	if e.InstanceID != "" {
		m["InstanceId"] = e.InstanceID
	}
	if e.OrchestrationInstance != nil {
		m["OrchestrationInstance"] = e.OrchestrationInstance
	}
	return json.Marshal(m)
}

func (e *HistoryEvent) String() string {
	return fmt.Sprintf("%v#%d", e.EventType, e.EventID)
}

// History is the ordered list of events of one replay pass together with their processed
// flags. Order is the causal record and is never changed. A processed flag, once set, is
// never cleared.
type History struct {
	events    []*HistoryEvent
	processed []bool
}

// NewHistory returns a [History] over the given events with every event unprocessed.
func NewHistory(events []*HistoryEvent) *History {
	return &History{
		events:    events,
		processed: make([]bool, len(events)),
	}
}

// Len returns the number of events.
func (h *History) Len() int {
	return len(h.events)
}

// Event returns the event at position pos, or nil if pos is out of range.
func (h *History) Event(pos int) *HistoryEvent {
	if pos < 0 || pos >= len(h.events) {
		return nil
	}
	return h.events[pos]
}

// Events returns the events in history order.
func (h *History) Events() []*HistoryEvent {
	return h.events
}

// IsProcessed reports whether the event at pos has been matched by a correlator.
func (h *History) IsProcessed(pos int) bool {
	return pos >= 0 && pos < len(h.processed) && h.processed[pos]
}

// SetProcessed marks the given positions as processed. Negative positions mean "not found"
// and are ignored.
func (h *History) SetProcessed(positions ...int) {
	for _, pos := range positions {
		if pos >= 0 && pos < len(h.processed) {
			h.processed[pos] = true
		}
	}
}

func (h *History) findFrom(start int, match func(e *HistoryEvent) bool) int {
	for i := max(start, 0); i < len(h.events); i++ {
		if !h.processed[i] && match(h.events[i]) {
			return i
		}
	}
	return -1
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// decodePayload normalizes a payload field. The host usually sends payloads as a JSON string
// holding JSON text; anything else is taken verbatim.
func decodePayload(raw json.RawMessage) json.RawMessage {
	if isJSONNull(raw) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	return raw
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
