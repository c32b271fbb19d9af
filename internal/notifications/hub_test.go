package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(7, nil)
	require.NoError(t, err)
	assert.True(t, hub.IsOnline(7))

	hub.UnregisterClient(client)
	hub.mu.RLock()
	_, stillThere := hub.conns[7]
	hub.mu.RUnlock()
	assert.False(t, stillThere)

	_ = hub.Shutdown(context.Background())
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(3, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(3, nil)
	assert.Error(t, err)

	// Other users are unaffected.
	_, err = hub.Register(4, nil)
	assert.NoError(t, err)

	_ = hub.Shutdown(context.Background())
}

func TestHub_BroadcastDeliversToEveryConnectionOfUser(t *testing.T) {
	hub := NewHub()

	c1, err := hub.Register(9, nil)
	require.NoError(t, err)
	c2, err := hub.Register(9, nil)
	require.NoError(t, err)
	other, err := hub.Register(10, nil)
	require.NoError(t, err)

	hub.Broadcast(9, `{"type":"new-message"}`)

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.Send:
			assert.JSONEq(t, `{"type":"new-message"}`, string(msg))
		default:
			t.Fatal("expected a queued message")
		}
	}

	select {
	case <-other.Send:
		t.Fatal("unrelated user must not receive the event")
	default:
	}

	_ = hub.Shutdown(context.Background())
}

func TestHub_TrySendDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(11, nil)
	require.NoError(t, err)

	for i := 0; i < cap(client.Send); i++ {
		client.Send <- []byte("fill")
	}

	// Must not block; the message is dropped and a drop notice attempted.
	done := make(chan struct{})
	go func() {
		client.TrySend([]byte("overflow"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TrySend blocked on a full buffer")
	}

	_ = hub.Shutdown(context.Background())
}

func TestHub_GracePeriodSuppressesOfflineOnRapidReconnect(t *testing.T) {
	hub := NewHub()
	hub.presence.SetOfflineGracePeriod(40 * time.Millisecond)

	clientA, err := hub.Register(10, nil)
	assert.NoError(t, err)

	hub.UnregisterClient(clientA)
	_, err = hub.Register(10, nil)
	assert.NoError(t, err)

	assert.Never(t, func() bool {
		hub.presence.mu.RLock()
		defer hub.presence.mu.RUnlock()
		return hub.presence.offlineNotified[10]
	}, 20*testPollInterval, testPollInterval)
	assert.True(t, hub.IsOnline(10))

	_ = hub.Shutdown(context.Background())
}

func TestHub_MultiConnectionLastDisconnectTriggersOfflineOnce(t *testing.T) {
	hub := NewHub()
	hub.presence.SetOfflineGracePeriod(30 * time.Millisecond)

	clientA, err := hub.Register(15, nil)
	assert.NoError(t, err)
	clientB, err := hub.Register(15, nil)
	assert.NoError(t, err)

	hub.UnregisterClient(clientA)
	assert.Never(t, func() bool {
		hub.presence.mu.RLock()
		defer hub.presence.mu.RUnlock()
		return hub.presence.offlineNotified[15]
	}, 30*testPollInterval, testPollInterval)

	hub.UnregisterClient(clientB)
	assert.Eventually(t, func() bool {
		hub.presence.mu.RLock()
		defer hub.presence.mu.RUnlock()
		return hub.presence.offlineNotified[15]
	}, testEventuallyTimeout, testPollInterval)
	assert.False(t, hub.IsOnline(15))

	_ = hub.Shutdown(context.Background())
}

func TestHub_ReaperRemovesStalePresence(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub(rdb)

	var offlineCount int32
	hub.SetPresenceCallbacks(nil, func(_ uint) {
		atomic.AddInt32(&offlineCount, 1)
	})

	ctx := context.Background()
	assert.NoError(t, rdb.SAdd(ctx, defaultOnlineSetKey, "44").Err())

	hub.presence.reapOnce(ctx)

	isMember, err := rdb.SIsMember(ctx, defaultOnlineSetKey, "44").Result()
	assert.NoError(t, err)
	assert.False(t, isMember)
	assert.Equal(t, int32(1), atomic.LoadInt32(&offlineCount))

	_ = hub.Shutdown(context.Background())
}

func TestHub_WiringForwardsRedisEventsToConnections(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub(rdb)
	notifier := NewNotifier(rdb)
	// Frames arrive from another instance; the wired notifier drops its own.
	remote := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, notifier))

	client, err := hub.Register(21, nil)
	require.NoError(t, err)

	require.NoError(t, remote.PublishUser(context.Background(), 21, `{"type":"friends"}`))

	assert.Eventually(t, func() bool {
		select {
		case msg := <-client.Send:
			return string(msg) == `{"type":"friends"}`
		default:
			return false
		}
	}, testEventuallyTimeout, testPollInterval)

	_ = hub.Shutdown(context.Background())
}
