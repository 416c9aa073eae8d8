package events

import "context"

// Event types
const (
	EventDisputeStatusChanged = "dispute_status_changed"
	EventDisputeResolved      = "dispute_resolved"
	EventResolutionConflict   = "resolution_conflict"
	EventTimelineAppended     = "timeline_appended"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
