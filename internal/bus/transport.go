package bus

import "context"

// Transport is the channel-addressed fanout layer under the Bus. It moves
// opaque payloads; serialization, envelopes, and request/reply live above
// it in the Bus.
//
// Implementations must preserve delivery order per channel for a single
// subscriber. No ordering is guaranteed across channels and no delivery
// guarantee is required beyond the backend's native semantics.
type Transport interface {
	// Publish hands the payload to the backend and returns once the
	// backend has accepted it. It never blocks on subscribers.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers deliver for every payload published on channel
	// and returns an idempotent unsubscribe function. The context covers
	// the registration only; the subscription lives until unsubscribe is
	// called.
	Subscribe(ctx context.Context, channel string, deliver func(payload []byte)) (func(), error)

	// Close releases the backend connection and all subscriptions.
	Close() error
}
