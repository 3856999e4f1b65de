package core

import "context"

// PipelineEventType defines the event types the migration pipeline emits.
type PipelineEventType string

const (
	SchemaLoaded        PipelineEventType = "schema:loaded"
	SnapshotLoaded      PipelineEventType = "snapshot:loaded"
	SnapshotSaved       PipelineEventType = "snapshot:saved"
	DiffComputed        PipelineEventType = "diff:computed"
	DestructiveDetected PipelineEventType = "destructive:detected"
	MigrationWritten    PipelineEventType = "migration:written"
	MigrationSkipped    PipelineEventType = "migration:skipped"
	PipelineFailed      PipelineEventType = "pipeline:failed"
)

// PipelineEvent is the payload published on the pipeline's event bus.
type PipelineEvent struct {
	Type       PipelineEventType `json:"type"`
	Collection string            `json:"collection,omitempty"`
	Path       string            `json:"path,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Error      error             `json:"-"`
}

// SubscriptionInfo describes one active event subscription.
type SubscriptionInfo struct {
	Id          *string
	Event       PipelineEventType
	Unsubscribe func()
	Label       *string
	Description *string
}

// EventCallbackFunction is the signature event subscribers implement. The
// bus delivers asynchronously; a returned error is logged, not propagated.
type EventCallbackFunction func(ctx context.Context, event PipelineEvent) error

// RegisterSubscriptionOptions configures a new event subscription.
type RegisterSubscriptionOptions struct {
	Event       PipelineEventType
	Callback    EventCallbackFunction
	Label       *string
	Description *string
}

// Helper functions for pointers, shared by tests and callers that populate
// optional rule and option values.
func StringPtr(s string) *string {
	return &s
}

func IntPtr(i int) *int {
	return &i
}

func BoolPtr(b bool) *bool {
	return &b
}
