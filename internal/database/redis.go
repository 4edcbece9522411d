package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wakewise/notification-engine/internal/devicectx"
	"github.com/wakewise/notification-engine/internal/patterns"
	"github.com/wakewise/notification-engine/internal/scheduler"
)

const (
	keyInflight = "notif:inflight"
	keyPatterns = "notif:patterns"
	keyConfig   = "notif:config"
	keyTrace    = "notif:trace"
	keyContext  = "notif:context"

	traceLogCap = 1000
)

// RedisClient wraps redis.Client as the engine's durable key-value store:
// in-flight notifications, behavior patterns, scheduling config and the
// bounded adaptation trace log
type RedisClient struct {
	*redis.Client
}

// RedisOptions holds Redis connection settings
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg RedisOptions) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

// SaveNotification writes the in-flight record, replacing any previous value
func (r *RedisClient) SaveNotification(ctx context.Context, n *scheduler.AdaptiveNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %w", n.ID, err)
	}
	return r.HSet(ctx, keyInflight, n.ID, data).Err()
}

// DeleteNotification removes a record once its lifecycle ends
func (r *RedisClient) DeleteNotification(ctx context.Context, id string) error {
	return r.HDel(ctx, keyInflight, id).Err()
}

// LoadInflight returns all persisted in-flight notifications, used to
// re-arm timers on startup
func (r *RedisClient) LoadInflight(ctx context.Context) ([]*scheduler.AdaptiveNotification, error) {
	entries, err := r.HGetAll(ctx, keyInflight).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load in-flight notifications: %w", err)
	}

	out := make([]*scheduler.AdaptiveNotification, 0, len(entries))
	for id, raw := range entries {
		var n scheduler.AdaptiveNotification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification %s: %w", id, err)
		}
		out = append(out, &n)
	}
	return out, nil
}

// SavePattern persists one behavior pattern bucket
func (r *RedisClient) SavePattern(ctx context.Context, key patterns.Key, p patterns.Pattern) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern %s: %w", key.String(), err)
	}
	return r.HSet(ctx, keyPatterns, key.String(), data).Err()
}

// LoadPatterns returns all persisted behavior pattern buckets. Corrupt
// entries are skipped: the engine treats them as zero samples.
func (r *RedisClient) LoadPatterns(ctx context.Context) (map[patterns.Key]patterns.Pattern, error) {
	entries, err := r.HGetAll(ctx, keyPatterns).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load behavior patterns: %w", err)
	}

	out := make(map[patterns.Key]patterns.Pattern, len(entries))
	for field, raw := range entries {
		notifType, bucket, ok := splitPatternKey(field)
		if !ok {
			continue
		}
		var p patterns.Pattern
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out[patterns.Key{Type: notifType, TimeOfDay: bucket}] = p
	}
	return out, nil
}

// SaveConfig persists the active scheduling config
func (r *RedisClient) SaveConfig(ctx context.Context, cfg scheduler.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduling config: %w", err)
	}
	return r.Set(ctx, keyConfig, data, 0).Err()
}

// LoadConfig returns the persisted scheduling config, or ok=false when none
// was ever saved
func (r *RedisClient) LoadConfig(ctx context.Context) (scheduler.Config, bool, error) {
	raw, err := r.Get(ctx, keyConfig).Result()
	if err == redis.Nil {
		return scheduler.Config{}, false, nil
	}
	if err != nil {
		return scheduler.Config{}, false, fmt.Errorf("failed to load scheduling config: %w", err)
	}

	var cfg scheduler.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return scheduler.Config{}, false, fmt.Errorf("failed to unmarshal scheduling config: %w", err)
	}
	return cfg, true, nil
}

// AppendTrace pushes one adaptation trace entry onto the bounded log
func (r *RedisClient) AppendTrace(ctx context.Context, entry string) error {
	pipe := r.Pipeline()
	pipe.LPush(ctx, keyTrace, entry)
	pipe.LTrim(ctx, keyTrace, 0, traceLogCap-1)
	_, err := pipe.Exec(ctx)
	return err
}

// RecentTraces returns up to limit trace entries, newest first
func (r *RedisClient) RecentTraces(ctx context.Context, limit int64) ([]string, error) {
	return r.LRange(ctx, keyTrace, 0, limit-1).Result()
}

// Sample reads the device context snapshot the companion app publishes to
// Redis. A missing or corrupt key is an error; the context provider keeps its
// last-known snapshot in that case.
func (r *RedisClient) Sample(ctx context.Context) (devicectx.NotificationContext, error) {
	raw, err := r.Get(ctx, keyContext).Result()
	if err == redis.Nil {
		return devicectx.NotificationContext{}, fmt.Errorf("no device context published")
	}
	if err != nil {
		return devicectx.NotificationContext{}, fmt.Errorf("failed to load device context: %w", err)
	}

	var snapshot devicectx.NotificationContext
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return devicectx.NotificationContext{}, fmt.Errorf("failed to unmarshal device context: %w", err)
	}
	return snapshot, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func splitPatternKey(field string) (string, devicectx.TimeOfDay, bool) {
	parts := strings.SplitN(field, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], devicectx.TimeOfDay(parts[1]), true
}
