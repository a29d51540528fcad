package interfaces

import "context"

// EventPublisher ships integration events after a write has committed.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Keyed events choose their own partition key.
type Keyed interface {
	Key() string
}
