package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"delivery-service/internal/models"
)

const (
	trackingTTL = 15 * time.Minute
	statsTTL    = time.Minute
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func trackingKey(trackingNumber string) string {
	return fmt.Sprintf("tracking:%s", trackingNumber)
}

// SetDelivery caches a delivery under its tracking number.
func (c *Client) SetDelivery(ctx context.Context, d *models.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	return c.rdb.Set(ctx, trackingKey(d.TrackingNumber), data, trackingTTL).Err()
}

// GetDelivery returns the cached delivery for a tracking number, nil on miss.
func (c *Client) GetDelivery(ctx context.Context, trackingNumber string) (*models.Delivery, error) {
	data, err := c.rdb.Get(ctx, trackingKey(trackingNumber)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d models.Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal cached delivery: %w", err)
	}
	return &d, nil
}

// InvalidateDelivery drops the cached entry for a tracking number.
func (c *Client) InvalidateDelivery(ctx context.Context, trackingNumber string) error {
	return c.rdb.Del(ctx, trackingKey(trackingNumber)).Err()
}

// SetDeliveryStats caches the dashboard aggregate briefly.
func (c *Client) SetDeliveryStats(ctx context.Context, stats *models.DeliveryStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return c.rdb.Set(ctx, "stats:deliveries", data, statsTTL).Err()
}

// GetDeliveryStats returns the cached aggregate, nil on miss.
func (c *Client) GetDeliveryStats(ctx context.Context) (*models.DeliveryStats, error) {
	data, err := c.rdb.Get(ctx, "stats:deliveries").Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats models.DeliveryStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal cached stats: %w", err)
	}
	return &stats, nil
}

// AcquireLock acquires a short-lived lock, used to serialize user-deletion
// cascades on the same user across instances.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
