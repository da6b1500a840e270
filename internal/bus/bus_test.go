package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/payrisk/internal/domain"
)

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		sub, err := b.Subscribe(ctx, "tenant-001", domain.TopicRecordSubmitted, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := b.Publish(ctx, "tenant-001", domain.TopicRecordSubmitted, []byte(`{"record":{}}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if msg.TenantID != "tenant-001" {
				t.Errorf("expected tenant-001, got %s", msg.TenantID)
			}
			if msg.Topic != domain.TopicRecordSubmitted {
				t.Errorf("expected topic %s, got %s", domain.TopicRecordSubmitted, msg.Topic)
			}
			if string(msg.Payload) != `{"record":{}}` {
				t.Errorf("payload did not round-trip: %s", msg.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		sub, err := b.Subscribe(ctx, "tenant-a", domain.TopicPredictionCompleted, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := b.Publish(ctx, "tenant-b", domain.TopicPredictionCompleted, []byte("x")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-received:
			t.Errorf("tenant-a received tenant-b's message: %+v", msg)
		case <-time.After(50 * time.Millisecond):
			// Expected: no delivery across tenants
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := b.Publish(ctx, "", "topic", []byte("x")); err == nil {
			t.Error("expected error for empty tenantID on publish")
		}
		if _, err := b.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error { return nil }); err == nil {
			t.Error("expected error for empty tenantID on subscribe")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int64

		sub, err := b.Subscribe(ctx, "tenant-001", domain.TopicHighRisk, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		b.Publish(ctx, "tenant-001", domain.TopicHighRisk, []byte("1"))
		time.Sleep(50 * time.Millisecond)

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)

		b.Publish(ctx, "tenant-001", domain.TopicHighRisk, []byte("2"))
		time.Sleep(50 * time.Millisecond)

		if got := count.Load(); got != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", got)
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(3)

		for i := 0; i < 3; i++ {
			sub, err := b.Subscribe(ctx, "tenant-multi", "fanout", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
			if err != nil {
				t.Fatalf("subscribe failed: %v", err)
			}
			defer sub.Unsubscribe()
		}

		if err := b.Publish(ctx, "tenant-multi", "fanout", []byte("x")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all subscribers received the message")
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, err := b.Subscribe(ctx, "tenant-001", "some.topic", func(ctx context.Context, msg *domain.Message) error { return nil })
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if sub.Topic() != "some.topic" {
			t.Errorf("expected topic 'some.topic', got %s", sub.Topic())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := b.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusRequest(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()

	reqCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Without a responder wired to the reply topic, Request times out with the context
	if _, err := b.Request(reqCtx, "tenant-001", "nobody-listening", []byte("x")); err == nil {
		t.Error("expected timeout error for unanswered request")
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if _, err := b.Subscribe(ctx, "tenant-001", "t", func(ctx context.Context, msg *domain.Message) error { return nil }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := b.Publish(ctx, "tenant-001", "t", []byte("x")); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := b.Subscribe(ctx, "tenant-001", "t", func(ctx context.Context, msg *domain.Message) error { return nil }); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping to fail on closed bus")
	}

	// Closing twice is a no-op
	if err := b.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	b := NewChannelBus(10000)
	defer b.Close()

	ctx := context.Background()

	var received atomic.Int64
	sub, err := b.Subscribe(ctx, "tenant-load", "load", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	const n = 1000
	for i := 0; i < n; i++ {
		if err := b.Publish(ctx, "tenant-load", "load", []byte("x")); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	deadline := time.After(5 * time.Second)
	for received.Load() < n {
		select {
		case <-deadline:
			t.Fatalf("received %d of %d messages", received.Load(), n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
