package domain

import "context"

// SignalBus is a lightweight publish/subscribe channel between backend
// components and the WebSocket hub.
type SignalBus interface {
	// Publish sends a raw payload to a channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a read-only channel of payloads. The subscription
	// is released and the channel closed when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
