package samples

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/task"
)

// NOTE: For more details on custom handlers, see https://learn.microsoft.com/en-us/azure/azure-functions/functions-custom-handlers.

// InvokeRequest is the body the Functions host posts to a custom handler.
type InvokeRequest struct {
	Data     map[string]json.RawMessage
	Metadata map[string]json.RawMessage
}

// InvokeResponse is the body a custom handler returns to the Functions host.
type InvokeResponse struct {
	Outputs     map[string]json.RawMessage `json:",omitempty"`
	Logs        []string
	ReturnValue json.RawMessage `json:",omitempty"`
}

// MapOrchestrator returns a custom handler for an orchestration trigger. The trigger binding
// delivers the replay envelope in the "context" data item; the decision goes back as the
// return value. A failed orchestration is answered with a 500 whose log line carries the
// decision after the out-of-proc marker.
func MapOrchestrator(o task.Orchestrator, logger backend.Logger) http.HandlerFunc {
	r := task.NewTaskRegistry()
	if err := r.AddOrchestratorN("*", o); err != nil {
		panic(fmt.Errorf("failed to register the orchestrator function: %w", err))
	}
	executor := task.NewTaskExecutor(r, task.WithLogger(logger))

	return func(w http.ResponseWriter, httpReq *http.Request) {
		var invokeRequest InvokeRequest
		if err := json.NewDecoder(httpReq.Body).Decode(&invokeRequest); err != nil {
			writeInvokeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode invoke request: %w", err))
			return
		}
		payload, err := unwrapString(invokeRequest.Data["context"])
		if err != nil {
			writeInvokeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode context payload: %w", err))
			return
		}

		state, err := backend.ProcessOrchestrationPayload(httpReq.Context(), executor, logger, payload)
		var oe *backend.OrchestrationError
		switch {
		case errors.As(err, &oe):
			writeInvokeError(w, http.StatusInternalServerError, oe)
		case err != nil:
			writeInvokeError(w, http.StatusBadRequest, err)
		default:
			writeInvokeResponse(w, http.StatusOK, &InvokeResponse{ReturnValue: state})
		}
	}
}

// MapActivity returns a custom handler for an activity trigger. The activity input arrives as
// the "data" metadata item.
func MapActivity(a task.Activity, logger backend.Logger) http.HandlerFunc {
	r := task.NewTaskRegistry()
	if err := r.AddActivityN("*", a); err != nil {
		panic(fmt.Errorf("failed to register the activity function: %w", err))
	}
	executor := task.NewTaskExecutor(r, task.WithLogger(logger))

	return func(w http.ResponseWriter, httpReq *http.Request) {
		var invokeRequest InvokeRequest
		if err := json.NewDecoder(httpReq.Body).Decode(&invokeRequest); err != nil {
			writeInvokeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode invoke request: %w", err))
			return
		}
		var sys struct {
			MethodName string
		}
		if raw, ok := invokeRequest.Metadata["sys"]; ok {
			if err := json.Unmarshal(raw, &sys); err != nil {
				writeInvokeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode sys metadata: %w", err))
				return
			}
		}
		input, err := unwrapString(invokeRequest.Metadata["data"])
		if err != nil {
			writeInvokeError(w, http.StatusBadRequest, fmt.Errorf("failed to decode activity input: %w", err))
			return
		}

		result, err := executor.ExecuteActivity(httpReq.Context(), sys.MethodName, input)
		if err != nil {
			logger.Warnf("activity '%s' failed: %v", sys.MethodName, err)
			writeInvokeError(w, http.StatusInternalServerError, err)
			return
		}
		writeInvokeResponse(w, http.StatusOK, &InvokeResponse{ReturnValue: result})
	}
}

// unwrapString returns the JSON text held by raw, which is either a JSON string containing the
// text or the JSON value itself.
func unwrapString(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func writeInvokeError(w http.ResponseWriter, status int, err error) {
	writeInvokeResponse(w, status, &InvokeResponse{Logs: []string{err.Error()}})
}

func writeInvokeResponse(w http.ResponseWriter, status int, resp *InvokeResponse) {
	if resp.Logs == nil {
		resp.Logs = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
