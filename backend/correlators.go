package backend

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrEmptyName is returned when a correlator is asked to match an operation without a name.
var ErrEmptyName = errors.New("name cannot be empty")

// The correlators below match a requested operation against history. Every lookup picks the
// first unprocessed candidate in history order and marks it processed, so that a later
// operation with the same identity advances to the next candidate. A return value of -1 means
// that no such event exists yet.

// FindTaskScheduled returns the first unprocessed TaskScheduled event for the named activity.
func (h *History) FindTaskScheduled(name string) (int, error) {
	return h.FindTaskScheduledAfter(name, -1)
}

// FindTaskScheduledAfter is [History.FindTaskScheduled] restricted to events after position
// after. A retried call is re-issued once its retry timer fired, so the next attempt is looked
// up from the TimerFired event on.
func (h *History) FindTaskScheduledAfter(name string, after int) (int, error) {
	if name == "" {
		return -1, ErrEmptyName
	}
	return h.claimFrom(after+1, func(e *HistoryEvent) bool {
		return e.EventType == EventTaskScheduled && e.Name == name
	}), nil
}

// FindTaskCompleted returns the TaskCompleted event for the TaskScheduled event at scheduled.
func (h *History) FindTaskCompleted(scheduled int) int {
	return h.claimResponse(scheduled, EventTaskCompleted)
}

// FindTaskFailed returns the TaskFailed event for the TaskScheduled event at scheduled.
func (h *History) FindTaskFailed(scheduled int) int {
	return h.claimResponse(scheduled, EventTaskFailed)
}

// FindSubOrchestrationCreated returns the first unprocessed SubOrchestrationInstanceCreated
// event for the named orchestrator. A non-empty instanceID further restricts the match.
func (h *History) FindSubOrchestrationCreated(name string, instanceID string) (int, error) {
	return h.FindSubOrchestrationCreatedAfter(name, instanceID, -1)
}

// FindSubOrchestrationCreatedAfter is [History.FindSubOrchestrationCreated] restricted to
// events after position after.
func (h *History) FindSubOrchestrationCreatedAfter(name string, instanceID string, after int) (int, error) {
	if name == "" {
		return -1, ErrEmptyName
	}
	return h.claimFrom(after+1, func(e *HistoryEvent) bool {
		return e.EventType == EventSubOrchestrationInstanceCreated &&
			e.Name == name &&
			(instanceID == "" || e.InstanceID == instanceID)
	}), nil
}

// FindSubOrchestrationCompleted returns the completion event of the sub-orchestration created at created.
func (h *History) FindSubOrchestrationCompleted(created int) int {
	return h.claimResponse(created, EventSubOrchestrationInstanceCompleted)
}

// FindSubOrchestrationFailed returns the failure event of the sub-orchestration created at created.
func (h *History) FindSubOrchestrationFailed(created int) int {
	return h.claimResponse(created, EventSubOrchestrationInstanceFailed)
}

// FindRetryTimerCreated returns the TimerCreated event the host scheduled after the failure at
// failed. The host normally assigns it the event id that follows the failed task's. When several
// retried calls fail in the same run the ids are no longer adjacent, and the timer is then the
// first unclaimed one recorded after the failure in the same episode.
func (h *History) FindRetryTimerCreated(failed int) int {
	if pos := h.FindAdjacentRetryTimerCreated(failed); pos >= 0 {
		return pos
	}
	if failed < 0 || failed >= len(h.events) {
		return -1
	}
	for i := failed + 1; i < len(h.events); i++ {
		e := h.events[i]
		if e.EventType == EventOrchestratorCompleted {
			break
		}
		if e.EventType == EventTimerCreated && !h.processed[i] {
			h.SetProcessed(i)
			return i
		}
	}
	return -1
}

// FindAdjacentRetryTimerCreated returns the unclaimed TimerCreated event whose id follows the id
// of the task that failed at failed, and no other timer.
func (h *History) FindAdjacentRetryTimerCreated(failed int) int {
	f := h.Event(failed)
	if f == nil {
		return -1
	}
	return h.claim(func(e *HistoryEvent) bool {
		return e.EventType == EventTimerCreated && e.EventID == f.TaskScheduledID+1
	})
}

// FindTimerCreated returns the first unprocessed TimerCreated event that fires at fireAt.
func (h *History) FindTimerCreated(fireAt time.Time) int {
	return h.claim(func(e *HistoryEvent) bool {
		return e.EventType == EventTimerCreated && e.FireAt.Equal(fireAt)
	})
}

// FindTimerFired returns the TimerFired event for the TimerCreated event at created.
func (h *History) FindTimerFired(created int) int {
	c := h.Event(created)
	if c == nil {
		return -1
	}
	return h.claim(func(e *HistoryEvent) bool {
		return e.EventType == EventTimerFired && e.TimerID == c.EventID
	})
}

// FindEventRaised returns the first unprocessed EventRaised event with the given name. Raises
// with the same name are consumed in the order they were received.
func (h *History) FindEventRaised(name string) (int, error) {
	if name == "" {
		return -1, ErrEmptyName
	}
	return h.claim(func(e *HistoryEvent) bool {
		return e.EventType == EventEventRaised && e.Name == name
	}), nil
}

// FindEventSent returns the first unprocessed EventSent event addressed to instanceID with the given name.
func (h *History) FindEventSent(instanceID string, name string) (int, error) {
	if instanceID == "" || name == "" {
		return -1, ErrEmptyName
	}
	return h.claim(func(e *HistoryEvent) bool {
		return e.EventType == EventEventSent && e.InstanceID == instanceID && e.Name == name
	}), nil
}

// EntityRequest is the envelope of an operation sent to an entity. Only the request id is
// needed to correlate the response.
type EntityRequest struct {
	ID string `json:"id"`
}

// EntityResponse is the payload of the EventRaised event that answers an entity operation.
type EntityResponse struct {
	Result        string `json:"result"`
	ExceptionType string `json:"exceptionType,omitempty"`
}

// FindEntityResponse correlates an entity call: the "op" EventSent to the entity's scheduler id
// carries a request id, and the response is the EventRaised named after that id. It returns the
// positions of both events.
func (h *History) FindEntityResponse(schedulerID string) (sent int, raised int, err error) {
	sent, err = h.FindEventSent(schedulerID, "op")
	if err != nil || sent < 0 {
		return sent, -1, err
	}
	var req EntityRequest
	if input := h.Event(sent).Input; input != nil {
		if err := json.Unmarshal(input, &req); err != nil {
			return sent, -1, err
		}
	}
	if req.ID == "" {
		return sent, -1, nil
	}
	raised, err = h.FindEventRaised(req.ID)
	return sent, raised, err
}

func (h *History) claim(match func(e *HistoryEvent) bool) int {
	return h.claimFrom(0, match)
}

func (h *History) claimFrom(start int, match func(e *HistoryEvent) bool) int {
	pos := h.findFrom(start, match)
	h.SetProcessed(pos)
	return pos
}

func (h *History) claimResponse(request int, eventType EventType) int {
	r := h.Event(request)
	if r == nil {
		return -1
	}
	return h.claim(func(e *HistoryEvent) bool {
		return e.EventType == eventType && e.TaskScheduledID == r.EventID
	})
}
