// Package cache manages the Redis client used for pub/sub fan-out, websocket
// tickets, token revocation and rate limiting.
package cache

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"chatter/internal/middleware"
	"chatter/internal/observability"
)

var client *redis.Client

// metricsHook counts Redis command errors so operational problems surface in
// Prometheus rather than only in logs.
type metricsHook struct{}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			observability.RedisErrors.WithLabelValues("dial").Inc()
		}
		return conn, err
	}
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && err != redis.Nil {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// InitRedis connects to Redis using the given URL. It accepts both full
// redis:// URLs and bare host:port addresses.
func InitRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		// Fall back to treating the value as host:port.
		opts = &redis.Options{Addr: redisURL}
	}

	c := redis.NewClient(opts)
	c.AddHook(metricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	middleware.Logger.Info("connected to redis", "addr", opts.Addr)
	client = c
	return c, nil
}

// GetClient returns the process-wide Redis client, or nil before InitRedis.
func GetClient() *redis.Client {
	return client
}

// SetClient overrides the process-wide client. Used by tests with miniredis.
func SetClient(c *redis.Client) {
	client = c
}
