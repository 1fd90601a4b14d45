package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	if got := UserChannel(42); got != "notifications:user:42" {
		t.Fatalf("unexpected channel %q", got)
	}
}

func TestNotifier_NilSafe(t *testing.T) {
	t.Parallel()
	var n *Notifier
	if err := n.PublishUser(context.Background(), 1, []byte("x")); err != nil {
		t.Fatalf("nil notifier publish: %v", err)
	}
	if err := n.StartPatternSubscriber(context.Background(), nil); err != nil {
		t.Fatalf("nil notifier subscribe: %v", err)
	}
}

func TestNotifier_PublishReachesPatternSubscriber(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	err := n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == UserChannel(5) {
			received <- payload
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// PSubscribe needs a moment to attach before the publish.
	deadline := time.After(2 * time.Second)
	for {
		if err := n.PublishUser(ctx, 5, []byte("event")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case payload := <-received:
			if payload != "event" {
				t.Fatalf("unexpected payload %q", payload)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestHub_StartWiringBridgesRedisToClients(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub()

	client, err := hub.Register(9, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hub.StartWiring(ctx, n); err != nil {
		t.Fatalf("start wiring: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if err := n.PublishUser(ctx, 9, []byte("bridged")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case msg := <-client.Send:
			if string(msg) != "bridged" {
				t.Fatalf("unexpected payload %q", msg)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("client never received the bridged event")
		}
	}
}
