package api

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInstanceNotFound  = errors.New("no such instance exists")
	ErrNotStarted        = errors.New("orchestration has not started")
	ErrNotCompleted      = errors.New("orchestration has not yet completed")
	ErrDuplicateInstance = errors.New("orchestration instance already exists")

	EmptyInstanceID = InstanceID("")
)

// OrchestrationStatus is the runtime status of an orchestration instance as reported by the host.
type OrchestrationStatus string

const (
	RUNTIME_STATUS_PENDING          OrchestrationStatus = "Pending"
	RUNTIME_STATUS_RUNNING          OrchestrationStatus = "Running"
	RUNTIME_STATUS_COMPLETED        OrchestrationStatus = "Completed"
	RUNTIME_STATUS_CONTINUED_AS_NEW OrchestrationStatus = "ContinuedAsNew"
	RUNTIME_STATUS_FAILED           OrchestrationStatus = "Failed"
	RUNTIME_STATUS_TERMINATED       OrchestrationStatus = "Terminated"
	RUNTIME_STATUS_CANCELED         OrchestrationStatus = "Canceled"
)

// InstanceID is a unique identifier for an orchestration instance.
type InstanceID string

// CreateInstanceRequest describes a request to start a new orchestration instance.
type CreateInstanceRequest struct {
	Name                    string
	InstanceID              InstanceID
	Input                   json.RawMessage
	ScheduledStartTimestamp time.Time
}

// GetInstanceRequest describes a status query for an orchestration instance.
type GetInstanceRequest struct {
	InstanceID          InstanceID
	GetInputsAndOutputs bool
	ShowHistory         bool
}

// RaiseEventRequest describes an external event delivered to an orchestration instance.
type RaiseEventRequest struct {
	InstanceID InstanceID
	Name       string
	Input      json.RawMessage
}

// TerminateRequest describes a termination request for an orchestration instance.
type TerminateRequest struct {
	InstanceID InstanceID
	Reason     string
}

// NewOrchestrationOptions configures options for starting a new orchestration.
type NewOrchestrationOptions func(*CreateInstanceRequest) error

// FetchOrchestrationMetadataOptions is a set of options for fetching orchestration metadata.
type FetchOrchestrationMetadataOptions func(*GetInstanceRequest)

// RaiseEventOptions is a set of options for raising an orchestration event.
type RaiseEventOptions func(*RaiseEventRequest) error

// TerminateOptions is a set of options for terminating an orchestration.
type TerminateOptions func(*TerminateRequest) error

// WithInstanceID configures an explicit orchestration instance ID. If not specified,
// the host generates one.
func WithInstanceID(id InstanceID) NewOrchestrationOptions {
	return func(req *CreateInstanceRequest) error {
		req.InstanceID = id
		return nil
	}
}

// WithInput configures an input for the orchestration. The specified input must be serializable.
func WithInput(input any) NewOrchestrationOptions {
	return func(req *CreateInstanceRequest) error {
		bytes, err := json.Marshal(input)
		if err != nil {
			return err
		}
		req.Input = bytes
		return nil
	}
}

// WithRawInput configures an input for the orchestration that is already serialized.
func WithRawInput(rawInput string) NewOrchestrationOptions {
	return func(req *CreateInstanceRequest) error {
		req.Input = json.RawMessage(rawInput)
		return nil
	}
}

// WithStartTime configures a start time at which the orchestration should start running.
// Note that the actual start time could be later than the specified start time if the
// host is under load.
func WithStartTime(startTime time.Time) NewOrchestrationOptions {
	return func(req *CreateInstanceRequest) error {
		req.ScheduledStartTimestamp = startTime
		return nil
	}
}

// WithFetchPayloads configures whether to load orchestration inputs, outputs, and custom status values, which could be large.
func WithFetchPayloads(fetchPayloads bool) FetchOrchestrationMetadataOptions {
	return func(req *GetInstanceRequest) {
		req.GetInputsAndOutputs = fetchPayloads
	}
}

// WithHistory configures whether the execution history is returned with the status.
func WithHistory(showHistory bool) FetchOrchestrationMetadataOptions {
	return func(req *GetInstanceRequest) {
		req.ShowHistory = showHistory
	}
}

// WithEventPayload configures an event payload. The specified payload must be serializable.
func WithEventPayload(data any) RaiseEventOptions {
	return func(req *RaiseEventRequest) error {
		bytes, err := json.Marshal(data)
		if err != nil {
			return err
		}
		req.Input = bytes
		return nil
	}
}

// WithTerminationReason configures the reason recorded for a terminated orchestration.
func WithTerminationReason(reason string) TerminateOptions {
	return func(req *TerminateRequest) error {
		req.Reason = reason
		return nil
	}
}

// OrchestrationMetadata is the status of an orchestration instance as reported by the host.
type OrchestrationMetadata struct {
	InstanceID    InstanceID          `json:"instanceId"`
	Name          string              `json:"name"`
	RuntimeStatus OrchestrationStatus `json:"runtimeStatus"`
	CreatedAt     time.Time           `json:"createdTime"`
	LastUpdatedAt time.Time           `json:"lastUpdatedTime"`
	Input         json.RawMessage     `json:"input,omitempty"`
	Output        json.RawMessage     `json:"output,omitempty"`
	CustomStatus  json.RawMessage     `json:"customStatus,omitempty"`
	History       json.RawMessage     `json:"historyEvents,omitempty"`
}

// IsRunning returns true if the orchestration has not reached a terminal status.
func (m *OrchestrationMetadata) IsRunning() bool {
	return !m.IsComplete()
}

// IsComplete returns true if the orchestration has reached a terminal status.
func (m *OrchestrationMetadata) IsComplete() bool {
	return m.RuntimeStatus == RUNTIME_STATUS_COMPLETED ||
		m.RuntimeStatus == RUNTIME_STATUS_FAILED ||
		m.RuntimeStatus == RUNTIME_STATUS_TERMINATED ||
		m.RuntimeStatus == RUNTIME_STATUS_CANCELED
}

// PurgeHistoryResult reports how many instances were removed by a purge request.
type PurgeHistoryResult struct {
	InstancesDeleted int `json:"instancesDeleted"`
}
