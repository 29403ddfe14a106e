package backend

import (
	"encoding/json"
	"fmt"

	"github.com/microsoft/durablefunctions-go/api"
)

// OrchestrationRequest is the envelope the host sends for one replay: the full history and the
// instance metadata.
type OrchestrationRequest struct {
	History            []*HistoryEvent   `json:"history"`
	Input              json.RawMessage   `json:"input,omitempty"`
	InstanceID         api.InstanceID    `json:"instanceId"`
	IsReplaying        bool              `json:"isReplaying"`
	ParentInstanceID   api.InstanceID    `json:"parentInstanceId,omitempty"`
	UpperSchemaVersion *api.ReplaySchema `json:"upperSchemaVersion,omitempty"`
}

// ParseOrchestrationRequest decodes a replay envelope. A history event that is missing one of
// its mandatory fields makes the whole payload invalid.
func ParseOrchestrationRequest(payload []byte) (*OrchestrationRequest, error) {
	var req OrchestrationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to parse orchestration request: %w", err)
	}
	for i, e := range req.History {
		if e == nil {
			return nil, fmt.Errorf("failed to parse orchestration request: history event %d is null", i)
		}
	}
	req.Input = decodePayload(req.Input)
	return &req, nil
}

// NewHistory returns a fresh [History] over the request's events.
func (r *OrchestrationRequest) NewHistory() *History {
	return NewHistory(r.History)
}

// Marshal encodes the request in the host's wire format.
func (r *OrchestrationRequest) Marshal() ([]byte, error) {
	history := r.History
	if history == nil {
		history = []*HistoryEvent{}
	}
	type alias OrchestrationRequest
	return json.Marshal(&struct {
		History []*HistoryEvent `json:"history"`
		Input   any             `json:"input,omitempty"`
		*alias
	}{history, encodePayload(r.Input), (*alias)(r)})
}

func encodePayload(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
