package mqtt

import (
	"context"
)

// MessageHandler processes one message received on a subscribed filter.
// The client calls handlers inline from its router, one message at a time in
// arrival order, so a handler that blocks stalls every subscription; hand work
// off to a queue instead.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection shared by the event source and the
// snapshot notifier.
type Client interface {
	// Start begins connecting in the background and returns at once. The
	// connection lives until ctx ends, at which point the client disconnects
	// and every later Publish fails.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and waits for the connection manager to stop.
	Disconnect(ctx context.Context)

	// Publish blocks until the broker acknowledges a qos 1 message.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe routes messages matching topic (which may hold + and #) to
	// handler. Subscriptions are replayed after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe drops the handler and sends UNSUBSCRIBE.
	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until the broker accepted the connection or ctx ends.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports whether a connection is currently up.
	IsConnected() bool
}
