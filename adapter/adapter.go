// Package adapter defines the event-bus adapter boundary: a downstream
// publish target a host can wire to any channel on the runtime's event
// bus (package events). No runtime package creates or closes adapters;
// the host that constructs one subscribes it and calls Close.
package adapter

import "context"

// PublishedEvent is the wire payload forwarded to a downstream system when
// a subscribed bus channel fires. Shape mirrors events.Published plus the
// metadata a downstream consumer needs to route and dedupe it.
type PublishedEvent struct {
	Channel       string `json:"channel"`
	DispatchOrder int64  `json:"dispatchOrder"`
	Data          any    `json:"data"`
}

// Adapter forwards published events to a downstream system.
// Implementations must be safe for single-use per process lifetime.
type Adapter interface {
	// Publish sends event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *PublishedEvent) error

	// Close releases adapter resources.
	Close() error
}
