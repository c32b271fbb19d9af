package server

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatter/internal/notifications"
)

// With the Redis wiring running, an event published on this instance must
// reach each local connection exactly once: directly through the hub, with
// the instance's own Redis frame dropped by the subscriber.
func TestPublishUserEventDeliversOncePerConnection(t *testing.T) {
	srv, app := newTestServer(t)
	_, aliceID := signupUser(t, app, "Alice", testPhone(140))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, srv.hub.StartWiring(ctx, srv.notifier))

	alice := wsTestClient(t, srv, aliceID)
	clearQueues(t, alice)

	// Confirm the subscription is live with a frame from another instance.
	remote := notifications.NewNotifier(srv.redis)
	require.NoError(t, remote.PublishUser(ctx, aliceID,
		marshalEvent(evUserUpdated, fiber.Map{"id": aliceID})))
	require.Eventually(t, func() bool {
		return hasEvent(drainEvents(t, alice), evUserUpdated)
	}, time.Second, 10*time.Millisecond)

	srv.publishUserEvent(ctx, aliceID, evNewMessage, fiber.Map{"text": "solo"})

	// The hub delivers synchronously, exactly once.
	count := 0
	for _, ev := range drainEvents(t, alice) {
		if ev.Type == evNewMessage {
			count++
		}
	}
	require.Equal(t, 1, count)

	// The Redis echo of our own publish must not produce a second copy.
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, drainEvents(t, alice))
}
