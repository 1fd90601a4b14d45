package notifications

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes events into per-user Redis channels. It is nil-safe:
// with no Redis client every publish is a silent no-op and delivery falls
// back to the in-process hub only.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a Notifier over the given Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// PublishUser sends an event payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload []byte) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// StartPatternSubscriber subscribes to `notifications:user:*` and calls
// onMessage for each incoming message with its channel and payload.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "notifications:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				onMessage(msg.Channel, msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
