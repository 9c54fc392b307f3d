package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"maestro/internal/api"
)

func newTestBus() (*Bus, *MemoryTransport) {
	transport := NewMemoryTransport()
	return New(transport), transport
}

func TestPublishSubscribeTyped(t *testing.T) {
	b, _ := newTestBus()
	ctx := context.Background()

	received := make(chan api.Event, 1)
	unsubscribe, err := Subscribe(ctx, b, api.StatusChannel, func(_ context.Context, ev api.Event, replyChannel string) {
		if replyChannel != "" {
			t.Errorf("plain publish must not carry a reply channel, got %q", replyChannel)
		}
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	ev := api.Event{
		Type:       api.EventInstanceStatusChanged,
		InstanceID: "inst-1",
		OldStatus:  api.StatusCreated,
		NewStatus:  api.StatusRunning,
		Source:     api.SourceWorker,
	}
	if err := b.Publish(ctx, api.StatusChannel, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.InstanceID != "inst-1" || got.NewStatus != api.StatusRunning {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestSubscribePeelsEnvelope(t *testing.T) {
	b, transport := newTestBus()
	ctx := context.Background()

	type delivery struct {
		cmd   api.Command
		reply string
	}
	received := make(chan delivery, 2)
	unsubscribe, err := Subscribe(ctx, b, "cmds", func(_ context.Context, cmd api.Command, replyChannel string) {
		received <- delivery{cmd: cmd, reply: replyChannel}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	// Raw shape.
	raw, _ := json.Marshal(api.Command{Kind: api.CommandStop, InstanceID: "a", CorrelationID: "c1"})
	if err := transport.Publish(ctx, "cmds", raw); err != nil {
		t.Fatalf("publish raw: %v", err)
	}

	// Envelope shape.
	env, _ := json.Marshal(envelope{Request: raw, ReplyChannel: "cmds.response.xyz"})
	if err := transport.Publish(ctx, "cmds", env); err != nil {
		t.Fatalf("publish envelope: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case d := <-received:
			if d.cmd.InstanceID != "a" || d.cmd.Kind != api.CommandStop {
				t.Errorf("command did not decode: %+v", d.cmd)
			}
			switch i {
			case 0:
				if d.reply != "" {
					t.Errorf("raw shape must deliver an empty reply channel, got %q", d.reply)
				}
			case 1:
				if d.reply != "cmds.response.xyz" {
					t.Errorf("envelope shape must deliver the reply channel, got %q", d.reply)
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d did not arrive", i)
		}
	}
}

func TestUndecodableDeliveryIsDropped(t *testing.T) {
	b, transport := newTestBus()
	ctx := context.Background()

	received := make(chan api.Command, 1)
	unsubscribe, err := Subscribe(ctx, b, "cmds", func(_ context.Context, cmd api.Command, _ string) {
		received <- cmd
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if err := transport.Publish(ctx, "cmds", []byte("{not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// A valid message after the bad one proves the subscription survived.
	good, _ := json.Marshal(api.Command{Kind: api.CommandStart, InstanceID: "b", CorrelationID: "c2"})
	if err := transport.Publish(ctx, "cmds", good); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case cmd := <-received:
		if cmd.InstanceID != "b" {
			t.Errorf("expected the valid message, got %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not survive an undecodable delivery")
	}
}

func TestRequestReply(t *testing.T) {
	b, transport := newTestBus()
	ctx := context.Background()

	unsubscribe, err := Subscribe(ctx, b, "cmds", func(ctx context.Context, cmd api.Command, replyChannel string) {
		if replyChannel == "" {
			t.Error("request must carry a reply channel")
			return
		}
		resp := api.Response{
			InstanceID:    cmd.InstanceID,
			Success:       true,
			CorrelationID: cmd.CorrelationID,
		}
		if err := b.Publish(ctx, replyChannel, resp); err != nil {
			t.Errorf("publish reply: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	cmd := api.Command{Kind: api.CommandStart, InstanceID: "inst-1", CorrelationID: "corr-9"}
	resp, err := Request[api.Command, api.Response](ctx, b, "cmds", cmd, 2*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !resp.Success || resp.CorrelationID != "corr-9" {
		t.Errorf("unexpected response: %+v", resp)
	}

	// The ephemeral reply subscription must be gone: only the command
	// subscription remains.
	deadline := time.Now().Add(2 * time.Second)
	for transport.ActiveSubscriptions() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := transport.ActiveSubscriptions(); got != 1 {
		t.Errorf("reply subscription leaked: %d active subscriptions", got)
	}
}

func TestRequestTimeout(t *testing.T) {
	b, transport := newTestBus()
	ctx := context.Background()

	start := time.Now()
	_, err := Request[api.Command, api.Response](ctx, b, "cmds", api.Command{Kind: api.CommandStart, InstanceID: "x"}, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !api.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
	if got := transport.ActiveSubscriptions(); got != 0 {
		t.Errorf("reply subscription leaked after timeout: %d active", got)
	}
}

func TestRequestCancellation(t *testing.T) {
	b, transport := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Request[api.Command, api.Response](ctx, b, "cmds", api.Command{Kind: api.CommandStop, InstanceID: "x"}, time.Minute)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not unwind on cancellation")
	}
	if got := transport.ActiveSubscriptions(); got != 0 {
		t.Errorf("reply subscription leaked after cancellation: %d active", got)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b, transport := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Subscribe(ctx, b, "cmds", func(context.Context, api.Command, string) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := transport.SubscriberCount("cmds"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for transport.SubscriberCount("cmds") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := transport.SubscriberCount("cmds"); got != 0 {
		t.Errorf("subscription outlived its context: %d subscribers", got)
	}
}

func TestPeelEnvelopeShapes(t *testing.T) {
	// Envelope with both fields present.
	body, reply := peelEnvelope([]byte(`{"request":{"kind":"Stop"},"replyChannel":"c.response.1"}`))
	if reply != "c.response.1" {
		t.Errorf("expected reply channel, got %q", reply)
	}
	if string(body) != `{"kind":"Stop"}` {
		t.Errorf("unexpected body: %s", body)
	}

	// Raw payload that happens to contain a request field but no reply
	// channel stays raw.
	raw := []byte(`{"request":{"kind":"Stop"}}`)
	body, reply = peelEnvelope(raw)
	if reply != "" || string(body) != string(raw) {
		t.Errorf("payload without replyChannel must not be peeled: %s / %q", body, reply)
	}

	// Non-object payloads stay raw.
	raw = []byte(`"hello"`)
	body, reply = peelEnvelope(raw)
	if reply != "" || string(body) != string(raw) {
		t.Errorf("non-object payload must pass through, got %s / %q", body, reply)
	}
}
