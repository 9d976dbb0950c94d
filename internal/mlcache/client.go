// Package mlcache is the Redis write-behind cache for ML prediction
// serving. Transactions and predictions are cached in separate logical
// databases with a fixed TTL, and every cached key is queued for a daily
// batch drain into the warehouse.
package mlcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
)

const (
	dbTransactions = 0
	dbPredictions  = 1

	transactionPrefix = "tx:"
	predictionPrefix  = "pred:"

	// UploadQueue holds every cached key awaiting batch upload.
	UploadQueue = "upload_queue"

	// DefaultTTL keeps cached entries a week; the drain job runs daily.
	DefaultTTL = 7 * 24 * time.Hour
)

// kv is the subset of redis commands the cache uses, satisfied by
// *redis.Client and stubbed in tests.
type kv interface {
	SetEx(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LRem(ctx context.Context, key string, count int64, value any) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
}

// Client is the ML prediction cache.
type Client struct {
	tx   kv
	pred kv
	ttl  time.Duration
}

// LoadEnvFile reads connection settings from a dotenv file, typically
// .env.redis. A missing file is not an error.
func LoadEnvFile(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(ctx, "Could not load env file", tag.Path(path), tag.Error(err))
		}
		return
	}
	logger.Debug(ctx, "Loaded env file", tag.Path(path))
}

// New connects to Redis and returns a cache client with one connection per
// logical database.
func New(redisURL string, ttl time.Duration) (*Client, error) {
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	txOpts := *opts
	txOpts.DB = dbTransactions
	predOpts := *opts
	predOpts.DB = dbPredictions

	return &Client{
		tx:   redis.NewClient(&txOpts),
		pred: redis.NewClient(&predOpts),
		ttl:  ttl,
	}, nil
}

// CacheTransaction stores transaction data for batch upload and queues its
// key. The record gets a _timestamp stamp when the caller left it out.
func (c *Client) CacheTransaction(ctx context.Context, transactionID string, data map[string]any) error {
	if _, ok := data["_timestamp"]; !ok {
		data["_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	return c.cache(ctx, c.tx, transactionPrefix+transactionID, data)
}

// CachePrediction stores prediction data for batch upload and queues its
// key.
func (c *Client) CachePrediction(ctx context.Context, predictionID string, data map[string]any) error {
	if _, ok := data["prediction_timestamp"]; !ok {
		data["prediction_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	return c.cache(ctx, c.pred, predictionPrefix+predictionID, data)
}

// cache writes the blob to its database and queues the key. The upload
// queue always lives in the transactions database so the drain job reads
// one list.
func (c *Client) cache(ctx context.Context, db kv, key string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := db.SetEx(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	if err := c.tx.LPush(ctx, UploadQueue, key).Err(); err != nil {
		return fmt.Errorf("failed to queue %s for upload: %w", key, err)
	}
	logger.Debug(ctx, "Cached entry", tag.Key(key))
	return nil
}

// GetTransaction returns the cached transaction, or nil when absent.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (map[string]any, error) {
	return c.get(ctx, c.tx, transactionPrefix+transactionID)
}

// GetPrediction returns the cached prediction, or nil when absent.
func (c *Client) GetPrediction(ctx context.Context, predictionID string) (map[string]any, error) {
	return c.get(ctx, c.pred, predictionPrefix+predictionID)
}

func (c *Client) get(ctx context.Context, db kv, key string) (map[string]any, error) {
	raw, err := db.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return data, nil
}

// Stats reports cache state for monitoring.
type Stats struct {
	TransactionKeys int
	PredictionKeys  int
	UploadQueueSize int64
	MemoryUsed      string
	Timestamp       time.Time
}

// Stats collects key counts, queue depth and memory usage.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	txKeys, err := c.tx.Keys(ctx, transactionPrefix+"*").Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count transaction keys: %w", err)
	}
	predKeys, err := c.pred.Keys(ctx, predictionPrefix+"*").Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count prediction keys: %w", err)
	}
	queueSize, err := c.tx.LLen(ctx, UploadQueue).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read upload queue size: %w", err)
	}

	stats := Stats{
		TransactionKeys: len(txKeys),
		PredictionKeys:  len(predKeys),
		UploadQueueSize: queueSize,
		MemoryUsed:      "unknown",
		Timestamp:       time.Now().UTC(),
	}
	if info, err := c.tx.Info(ctx, "memory").Result(); err == nil {
		if v := infoField(info, "used_memory_human"); v != "" {
			stats.MemoryUsed = v
		}
	}
	return stats, nil
}

// Ping verifies both logical databases are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.tx.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("transaction cache unreachable: %w", err)
	}
	if err := c.pred.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("prediction cache unreachable: %w", err)
	}
	return nil
}

// infoField extracts one "key:value" line from INFO output.
func infoField(info, field string) string {
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), field+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
