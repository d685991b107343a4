package port

import "context"

// EventPublisher announces workflow changes to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
