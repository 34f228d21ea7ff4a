// Package redis mirrors the freshest price per symbol into Redis and
// republishes pipeline events onto Pub/Sub channels so out-of-process
// consumers (dashboards, downstream services) can follow the engine
// without touching SQLite. All writes go through a circuit breaker;
// Redis being down never degrades the core pipeline.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-enginev1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	latestPriceTTL = 30 * time.Minute
	eventChannel   = "pub:events"
)

// Config configures the Redis cache.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache is the raw Redis client. Callers that want circuit-breaker
// protection and open-state buffering wrap it in a Buffered.
type Cache struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New creates a Cache and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client}, nil
}

// SetLatestPrice mirrors one observation under price:latest:<symbol>
// with a TTL, and announces it on the per-symbol tick channel.
func (c *Cache) SetLatestPrice(ctx context.Context, p model.PricePoint) error {
	return c.setLatest(ctx, p)
}

func (c *Cache) setLatest(ctx context.Context, p model.PricePoint) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal price point: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, "price:latest:"+p.Symbol, data, latestPriceTTL)
	pipe.Publish(ctx, "pub:price:"+p.Symbol, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set latest %s: %w", p.Symbol, err)
	}
	return nil
}

// GetLatestPrice reads the mirrored observation for a symbol.
// Returns nil without error when the key is absent or expired.
func (c *Cache) GetLatestPrice(ctx context.Context, symbol string) (*model.PricePoint, error) {
	data, err := c.client.Get(ctx, "price:latest:"+symbol).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get latest %s: %w", symbol, err)
	}

	var p model.PricePoint
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal price point: %w", err)
	}
	return &p, nil
}

// publish republishes one event onto the firehose channel and a
// per-type channel in a single pipeline roundtrip.
func (c *Cache) publish(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Publish(ctx, eventChannel, data)
	pipe.Publish(ctx, eventChannel+":"+string(ev.Type), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Type, err)
	}
	return nil
}

// SubscribeEvents subscribes to the event firehose and feeds decoded
// events into out. Undecodable payloads are skipped. Blocks until ctx
// is cancelled.
func (c *Cache) SubscribeEvents(ctx context.Context, out chan<- model.Event) error {
	pubsub := c.client.Subscribe(ctx, eventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", eventChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
