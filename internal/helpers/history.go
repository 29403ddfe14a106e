package helpers

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
)

func NewExecutionStartedEvent(name string, instanceID string, rawInput json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventExecutionStarted, -1)
	e.Name = name
	e.Input = rawInput
	e.OrchestrationInstance = &backend.OrchestrationInstance{
		InstanceID:  instanceID,
		ExecutionID: uuid.New().String(),
	}
	return e
}

func NewExecutionCompletedEvent(eventID int32, rawResult json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventExecutionCompleted, eventID)
	e.Result = rawResult
	return e
}

func NewOrchestratorStartedEvent() *backend.HistoryEvent {
	return newEvent(backend.EventOrchestratorStarted, -1)
}

func NewOrchestratorCompletedEvent() *backend.HistoryEvent {
	return newEvent(backend.EventOrchestratorCompleted, -1)
}

func NewEventRaisedEvent(name string, rawInput json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventEventRaised, -1)
	e.Name = name
	e.Input = rawInput
	return e
}

func NewTaskScheduledEvent(taskID int32, name string, rawInput json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventTaskScheduled, taskID)
	e.Name = name
	e.Input = rawInput
	return e
}

func NewTaskCompletedEvent(taskID int32, rawResult json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventTaskCompleted, -1)
	e.TaskScheduledID = taskID
	e.Result = rawResult
	return e
}

func NewTaskFailedEvent(taskID int32, reason string, details string) *backend.HistoryEvent {
	e := newEvent(backend.EventTaskFailed, -1)
	e.TaskScheduledID = taskID
	e.Reason = reason
	e.Details = details
	return e
}

func NewTimerCreatedEvent(eventID int32, fireAt time.Time) *backend.HistoryEvent {
	e := newEvent(backend.EventTimerCreated, eventID)
	e.FireAt = fireAt.UTC()
	return e
}

func NewTimerFiredEvent(timerID int32, fireAt time.Time) *backend.HistoryEvent {
	e := newEvent(backend.EventTimerFired, -1)
	e.TimerID = timerID
	e.FireAt = fireAt.UTC()
	return e
}

func NewSubOrchestrationCreatedEvent(eventID int32, name string, rawInput json.RawMessage, instanceID string) *backend.HistoryEvent {
	e := newEvent(backend.EventSubOrchestrationInstanceCreated, eventID)
	e.Name = name
	e.Input = rawInput
	e.InstanceID = instanceID
	return e
}

func NewSubOrchestrationCompletedEvent(taskID int32, rawResult json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventSubOrchestrationInstanceCompleted, -1)
	e.TaskScheduledID = taskID
	e.Result = rawResult
	return e
}

func NewSubOrchestrationFailedEvent(taskID int32, reason string, details string) *backend.HistoryEvent {
	e := newEvent(backend.EventSubOrchestrationInstanceFailed, -1)
	e.TaskScheduledID = taskID
	e.Reason = reason
	e.Details = details
	return e
}

func NewSendEventEvent(eventID int32, instanceID string, name string, rawInput json.RawMessage) *backend.HistoryEvent {
	e := newEvent(backend.EventEventSent, eventID)
	e.InstanceID = instanceID
	e.Name = name
	e.Input = rawInput
	return e
}

func newEvent(t backend.EventType, eventID int32) *backend.HistoryEvent {
	return &backend.HistoryEvent{
		EventType:       t,
		EventID:         eventID,
		Timestamp:       time.Now().UTC(),
		TaskScheduledID: -1,
		TimerID:         -1,
	}
}

// ToRuntimeStatusString returns the upper-case name of a runtime status, like CONTINUED_AS_NEW,
// as it appears in logs and span attributes.
func ToRuntimeStatusString(status api.OrchestrationStatus) string {
	var sb strings.Builder
	for i, r := range string(status) {
		if i > 0 && unicode.IsUpper(r) {
			sb.WriteByte('_')
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// HistoryBuilder assembles a history the way a host would append it: scheduling events get
// consecutive event ids, and every OrchestratorStarted event moves the clock forward by one step.
type HistoryBuilder struct {
	events []*backend.HistoryEvent
	now    time.Time
	step   time.Duration
	nextID int32
}

// NewHistoryBuilder returns a builder whose clock starts at start and advances one second per episode.
func NewHistoryBuilder(start time.Time) *HistoryBuilder {
	return &HistoryBuilder{now: start.UTC(), step: time.Second}
}

// Now returns the builder's clock.
func (b *HistoryBuilder) Now() time.Time {
	return b.now
}

// Advance moves the clock forward without adding an event.
func (b *HistoryBuilder) Advance(d time.Duration) *HistoryBuilder {
	b.now = b.now.Add(d)
	return b
}

// Add appends events stamped with the current clock.
func (b *HistoryBuilder) Add(events ...*backend.HistoryEvent) *HistoryBuilder {
	for _, e := range events {
		e.Timestamp = b.now
		b.events = append(b.events, e)
	}
	return b
}

// NextEventID returns the id the next scheduling event will get.
func (b *HistoryBuilder) NextEventID() int32 {
	return b.nextID
}

func (b *HistoryBuilder) OrchestratorStarted() *HistoryBuilder {
	if len(b.events) > 0 {
		b.now = b.now.Add(b.step)
	}
	return b.Add(NewOrchestratorStartedEvent())
}

func (b *HistoryBuilder) OrchestratorCompleted() *HistoryBuilder {
	return b.Add(NewOrchestratorCompletedEvent())
}

func (b *HistoryBuilder) ExecutionStarted(name string, instanceID string, rawInput string) *HistoryBuilder {
	return b.Add(NewExecutionStartedEvent(name, instanceID, rawPayload(rawInput)))
}

// TaskScheduled appends a TaskScheduled event and returns its event id.
func (b *HistoryBuilder) TaskScheduled(name string, rawInput string) int32 {
	id := b.allocateID()
	b.Add(NewTaskScheduledEvent(id, name, rawPayload(rawInput)))
	return id
}

// TaskScheduledWithID appends a TaskScheduled event with an explicit event id.
func (b *HistoryBuilder) TaskScheduledWithID(id int32, name string, rawInput string) *HistoryBuilder {
	return b.Add(NewTaskScheduledEvent(id, name, rawPayload(rawInput)))
}

func (b *HistoryBuilder) TaskCompleted(taskID int32, rawResult string) *HistoryBuilder {
	return b.Add(NewTaskCompletedEvent(taskID, rawPayload(rawResult)))
}

func (b *HistoryBuilder) TaskFailed(taskID int32, reason string, details string) *HistoryBuilder {
	return b.Add(NewTaskFailedEvent(taskID, reason, details))
}

// TimerCreated appends a TimerCreated event and returns its event id.
func (b *HistoryBuilder) TimerCreated(fireAt time.Time) int32 {
	id := b.allocateID()
	b.Add(NewTimerCreatedEvent(id, fireAt))
	return id
}

func (b *HistoryBuilder) TimerFired(timerID int32, fireAt time.Time) *HistoryBuilder {
	return b.Add(NewTimerFiredEvent(timerID, fireAt))
}

// SubOrchestrationCreated appends a SubOrchestrationInstanceCreated event and returns its event id.
func (b *HistoryBuilder) SubOrchestrationCreated(name string, instanceID string, rawInput string) int32 {
	id := b.allocateID()
	b.Add(NewSubOrchestrationCreatedEvent(id, name, rawPayload(rawInput), instanceID))
	return id
}

func (b *HistoryBuilder) SubOrchestrationCompleted(taskID int32, rawResult string) *HistoryBuilder {
	return b.Add(NewSubOrchestrationCompletedEvent(taskID, rawPayload(rawResult)))
}

func (b *HistoryBuilder) SubOrchestrationFailed(taskID int32, reason string, details string) *HistoryBuilder {
	return b.Add(NewSubOrchestrationFailedEvent(taskID, reason, details))
}

// EventSent appends an EventSent event and returns its event id.
func (b *HistoryBuilder) EventSent(instanceID string, name string, rawInput string) int32 {
	id := b.allocateID()
	b.Add(NewSendEventEvent(id, instanceID, name, rawPayload(rawInput)))
	return id
}

func (b *HistoryBuilder) EventRaised(name string, rawInput string) *HistoryBuilder {
	return b.Add(NewEventRaisedEvent(name, rawPayload(rawInput)))
}

// MarkPlayed flags every event added so far as seen by a previous replay.
func (b *HistoryBuilder) MarkPlayed() *HistoryBuilder {
	for _, e := range b.events {
		e.IsPlayed = true
	}
	return b
}

// Events returns a copy of the history built so far.
func (b *HistoryBuilder) Events() []*backend.HistoryEvent {
	events := make([]*backend.HistoryEvent, len(b.events))
	for i, e := range b.events {
		c := *e
		events[i] = &c
	}
	return events
}

// Request wraps the history in a replay envelope.
func (b *HistoryBuilder) Request(id api.InstanceID, rawInput string) *backend.OrchestrationRequest {
	return &backend.OrchestrationRequest{
		History:    b.Events(),
		Input:      rawPayload(rawInput),
		InstanceID: id,
	}
}

// Payload returns the envelope as the host would send it.
func (b *HistoryBuilder) Payload(id api.InstanceID, rawInput string) ([]byte, error) {
	return b.Request(id, rawInput).Marshal()
}

func (b *HistoryBuilder) allocateID() int32 {
	id := b.nextID
	b.nextID++
	return id
}

func rawPayload(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func HistoryListSummary(list []*backend.HistoryEvent) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range list {
		if i > 0 {
			sb.WriteString(", ")
		}
		if i >= 10 {
			sb.WriteString("...")
			break
		}
		sb.WriteString(e.EventType.String())
		taskID := GetTaskId(e)
		if taskID >= 0 {
			sb.WriteRune('#')
			sb.WriteString(strconv.FormatInt(int64(taskID), 10))
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func ActionListSummary(actions []backend.Action) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, a := range actions {
		if i > 0 {
			sb.WriteString(", ")
		}
		if i >= 10 {
			sb.WriteString("...")
			break
		}
		sb.WriteString(a.ActionType().String())
		if c, ok := a.(backend.CompoundAction); ok {
			sb.WriteString(ActionListSummary(c.Children()))
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func GetTaskId(e *backend.HistoryEvent) int32 {
	switch {
	case e.EventID >= 0:
		return e.EventID
	case e.TaskScheduledID >= 0:
		return e.TaskScheduledID
	case e.TimerID >= 0:
		return e.TimerID
	default:
		return -1
	}
}
