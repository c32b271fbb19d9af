package notifications

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "events:user:"
	broadcastChannel  = "events:broadcast"
)

// wireFrame wraps every payload crossing Redis. The origin stamp lets the
// publishing instance recognize and drop its own frames: local connections
// already received the event through the hub, and a second delivery via the
// subscription would break at-most-once per connection.
type wireFrame struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Notifier publishes event payloads into Redis channels so every server
// instance can deliver them to its own connections.
type Notifier struct {
	rdb        *redis.Client
	instanceID string
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, instanceID: uuid.New().String()}
}

func (n *Notifier) publish(ctx context.Context, channel, payload string) error {
	if n.rdb == nil {
		return nil
	}
	frame, err := json.Marshal(wireFrame{
		Origin: n.instanceID,
		Event:  json.RawMessage(payload),
	})
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, channel, frame).Err()
}

// PublishUser sends an event payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	return n.publish(ctx, UserChannel(userID), payload)
}

// PublishBroadcast sends an event payload to all connected users.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	return n.publish(ctx, broadcastChannel, payload)
}

// StartPatternSubscriber subscribes to the user-channel pattern and the
// broadcast channel and calls onMessage for each incoming message. Frames
// published by this instance are dropped; their events were already delivered
// locally at publish time.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", broadcastChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame wireFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					log.Printf("dropping malformed frame on %s: %v", msg.Channel, err)
					continue
				}
				if frame.Origin == n.instanceID {
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in PatternSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, string(frame.Event))
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}
