package backend

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/microsoft/durablefunctions-go/api"
)

// OutOfProcDataLabel separates the error message from the serialized state in the single string
// that some host transports carry for a failed orchestration.
const OutOfProcDataLabel = "\n\n$OutOfProcData$:"

var ErrNoOutOfProcData = errors.New("error message carries no orchestrator state")

// OrchestratorState is the decision the engine returns to the host after one replay.
type OrchestratorState struct {
	IsDone bool
	// Actions has one batch per suspension point, in order.
	Actions      [][]Action
	Output       json.RawMessage
	Error        string
	CustomStatus json.RawMessage
	Schema       api.ReplaySchema
}

type orchestratorStateJSON struct {
	IsDone        bool            `json:"isDone"`
	Actions       [][]Action      `json:"actions"`
	Output        json.RawMessage `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	CustomStatus  json.RawMessage `json:"customStatus,omitempty"`
	SchemaVersion *int            `json:"schemaVersion,omitempty"`
}

// MarshalJSON encodes the state. Output, error and custom status are left out rather than
// written as null. The schema version is only written for the compound schema.
func (s *OrchestratorState) MarshalJSON() ([]byte, error) {
	w := orchestratorStateJSON{
		IsDone:       s.IsDone,
		Actions:      make([][]Action, len(s.Actions)),
		Output:       nonNull(s.Output),
		Error:        s.Error,
		CustomStatus: nonNull(s.CustomStatus),
	}
	for i, batch := range s.Actions {
		if s.Schema == api.ReplaySchemaV1 {
			batch = FlattenActions(batch)
		}
		if batch == nil {
			batch = []Action{}
		}
		w.Actions[i] = batch
	}
	if s.Schema != api.ReplaySchemaV1 {
		v := int(s.Schema)
		w.SchemaVersion = &v
	}
	return json.Marshal(w)
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if isJSONNull(raw) {
		return nil
	}
	return raw
}

// OrchestrationError is returned by the executor when the orchestration failed. Its message
// embeds the serialized state so that transports which only carry a string still deliver the
// action batches and custom status.
type OrchestrationError struct {
	Message string
	State   []byte
}

func (e *OrchestrationError) Error() string {
	return e.Message + OutOfProcDataLabel + string(e.State)
}

// ParseOrchestrationError splits an out-of-proc error string back into its message and state.
func ParseOrchestrationError(s string) (*OrchestrationError, error) {
	i := strings.Index(s, OutOfProcDataLabel)
	if i < 0 {
		return nil, ErrNoOutOfProcData
	}
	state := s[i+len(OutOfProcDataLabel):]
	if !json.Valid([]byte(state)) {
		return nil, errors.New("error message carries malformed orchestrator state")
	}
	return &OrchestrationError{Message: s[:i], State: []byte(state)}, nil
}
