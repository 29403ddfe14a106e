package api

import "context"

// Client is the management surface of the host. The engine never calls it; it is implemented
// by the host's HTTP RPC layer and consumed by client functions.
type Client interface {
	// StartNew schedules a new orchestration instance and returns its ID.
	StartNew(ctx context.Context, orchestrator string, opts ...NewOrchestrationOptions) (InstanceID, error)

	// GetStatus fetches the metadata of an orchestration instance.
	//
	// Returns [ErrInstanceNotFound] if the instance doesn't exist.
	GetStatus(ctx context.Context, id InstanceID, opts ...FetchOrchestrationMetadataOptions) (*OrchestrationMetadata, error)

	// RaiseEvent delivers an external event to a running orchestration instance.
	RaiseEvent(ctx context.Context, id InstanceID, eventName string, opts ...RaiseEventOptions) error

	// Terminate stops a running orchestration instance.
	Terminate(ctx context.Context, id InstanceID, opts ...TerminateOptions) error

	// PurgeInstanceHistory deletes all saved state for a completed orchestration instance.
	//
	// Returns [ErrNotCompleted] if the instance is still running.
	PurgeInstanceHistory(ctx context.Context, id InstanceID) (*PurgeHistoryResult, error)
}
