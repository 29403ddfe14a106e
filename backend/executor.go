package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Executor replays one orchestration request and returns the resulting decision. When the
// orchestration failed, the returned error is an [*OrchestrationError] and the state is still
// returned.
type Executor interface {
	ExecuteOrchestrator(ctx context.Context, req *OrchestrationRequest) (*OrchestratorState, error)
}

// ProcessOrchestrationPayload is the string-in, string-out boundary used by trigger bindings:
// it parses the host payload, runs the executor and returns the serialized state. A failed
// orchestration yields an [*OrchestrationError] carrying the same serialized state.
func ProcessOrchestrationPayload(ctx context.Context, ex Executor, logger Logger, payload []byte) ([]byte, error) {
	req, err := ParseOrchestrationRequest(payload)
	if err != nil {
		logger.Errorf("rejecting orchestration payload: %v", err)
		return nil, err
	}

	state, execErr := ex.ExecuteOrchestrator(ctx, req)
	if state == nil {
		if execErr == nil {
			execErr = errors.New("executor returned no state")
		}
		return nil, execErr
	}

	var oe *OrchestrationError
	if errors.As(execErr, &oe) {
		logger.Warnf("%v: orchestration failed: %s", req.InstanceID, oe.Message)
		return oe.State, oe
	} else if execErr != nil {
		return nil, execErr
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize orchestrator state: %w", err)
	}
	return data, nil
}
