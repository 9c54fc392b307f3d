// Package bus implements the message plane of the control plane: typed
// publish/subscribe plus a synchronous request/reply primitive, layered
// over a pluggable Transport.
//
// Two transports exist. MemoryTransport is an in-process fanout registry
// used by the standalone mode and the tests; RedisTransport rides redis
// pub/sub for multi-process deployments. Components hold a *Bus and do
// not know which transport backs it.
//
// # Request/reply
//
// Request wraps the payload in an envelope {request, replyChannel},
// subscribes to an ephemeral reply channel "{channel}.response.{uuid}",
// publishes, and waits for one message or the timeout. Subscribers accept
// both envelope and raw shapes on every channel: the typed Subscribe
// helper peels the reply channel off and hands it to the handler out of
// band, so responders never parse envelopes themselves.
//
// # Failure semantics
//
// Deliveries that fail to decode are logged and dropped, never propagated
// to the subscription. Publish and subscribe failures surface as
// api.TransportError; an expired request surfaces as api.TimeoutError.
// The request primitive releases its reply subscription on every exit
// path, so a reply arriving after the deadline is dropped by the
// abandoned channel rather than delivered to a stale caller.
package bus
