package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"maestro/internal/api"
	"maestro/pkg/logging"
)

// Bus layers typed publish/subscribe and synchronous request/reply on top
// of a Transport. Messages are JSON; requests that expect a reply travel
// inside an envelope carrying an ephemeral reply channel.
type Bus struct {
	transport Transport
}

// New wraps a transport.
func New(transport Transport) *Bus {
	return &Bus{transport: transport}
}

// Transport exposes the underlying transport, mainly so owners can close
// it on shutdown.
func (b *Bus) Transport() Transport {
	return b.transport
}

// envelope is the wire form of a request expecting a reply. Plain
// publishes are transmitted as the raw payload; subscribers accept both
// shapes.
type envelope struct {
	Request      json.RawMessage `json:"request,omitempty"`
	ReplyChannel string          `json:"replyChannel,omitempty"`
}

// peelEnvelope splits a delivery into its body and, when the payload is a
// request envelope, the reply channel. A payload is an envelope iff both
// fields are present.
func peelEnvelope(payload []byte) ([]byte, string) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Request) > 0 && env.ReplyChannel != "" {
		return env.Request, env.ReplyChannel
	}
	return payload, ""
}

// Publish serializes msg and hands it to the transport. It returns once
// the transport has accepted the payload and never blocks on subscribers.
func (b *Bus) Publish(ctx context.Context, channel string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", channel, err)
	}
	if err := b.transport.Publish(ctx, channel, payload); err != nil {
		return api.NewTransportError("publish", channel, err)
	}
	return nil
}

// Subscribe registers a typed handler on the channel. Each delivery is
// decoded as T; if the payload is a request envelope the reply channel is
// peeled off and passed to the handler out of band (empty for plain
// publishes). Deliveries that fail to decode are logged and dropped.
//
// The subscription lives until the returned unsubscribe function is
// called or ctx is cancelled, whichever comes first. Handlers run on the
// transport's delivery goroutines and may execute concurrently across
// channels; handler-internal state is the handler's responsibility.
func Subscribe[T any](ctx context.Context, b *Bus, channel string, handler func(ctx context.Context, msg T, replyChannel string)) (func(), error) {
	deliver := func(payload []byte) {
		body, replyChannel := peelEnvelope(payload)
		var msg T
		if err := json.Unmarshal(body, &msg); err != nil {
			logging.Warn("Bus", "Dropping undecodable message on %s: %v", channel, err)
			return
		}
		handler(ctx, msg, replyChannel)
	}

	unsubscribe, err := b.transport.Subscribe(ctx, channel, deliver)
	if err != nil {
		return nil, api.NewTransportError("subscribe", channel, err)
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	}
	return unsubscribe, nil
}

// Request publishes req on the channel wrapped in a request envelope and
// waits for a single response on an ephemeral reply channel
// "{channel}.response.{uuid}".
//
// It fails with api.TimeoutError when the deadline elapses and with the
// context error on cancellation. The reply subscription is released on
// every exit path; a reply arriving after the deadline is silently
// dropped by the abandoned channel.
func Request[Req any, Resp any](ctx context.Context, b *Bus, channel string, req Req, timeout time.Duration) (Resp, error) {
	var zero Resp

	replyChannel := fmt.Sprintf("%s.response.%s", channel, uuid.NewString())
	replies := make(chan []byte, 1)

	unsubscribe, err := b.transport.Subscribe(ctx, replyChannel, func(payload []byte) {
		select {
		case replies <- payload:
		default:
			// A second reply to the same request; the first one won.
		}
	})
	if err != nil {
		return zero, api.NewTransportError("subscribe", replyChannel, err)
	}
	defer unsubscribe()

	reqPayload, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("marshal request for %s: %w", channel, err)
	}
	envPayload, err := json.Marshal(envelope{Request: reqPayload, ReplyChannel: replyChannel})
	if err != nil {
		return zero, fmt.Errorf("marshal envelope for %s: %w", channel, err)
	}
	if err := b.transport.Publish(ctx, channel, envPayload); err != nil {
		return zero, api.NewTransportError("publish", channel, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-replies:
		var resp Resp
		if err := json.Unmarshal(payload, &resp); err != nil {
			return zero, fmt.Errorf("decode response on %s: %w", replyChannel, err)
		}
		return resp, nil
	case <-timer.C:
		return zero, api.NewTimeoutError(channel, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
