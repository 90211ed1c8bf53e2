package port

import "context"

// NotificationMessage is a transport-agnostic operational alert for administrators.
type NotificationMessage struct {
	Event    string
	Severity string
	Subject  string
	Body     string
	EntityID string
	Channels []string
	Metadata map[string]any
}

// NotificationDispatcher routes notification message to configured channel sinks.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, msg NotificationMessage) error
}

// NotificationSink delivers notifications via one channel ("email", "log").
type NotificationSink interface {
	Send(ctx context.Context, msg NotificationMessage) error
}
