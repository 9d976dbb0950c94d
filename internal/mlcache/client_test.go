package mlcache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubKV is an in-memory stand-in for one Redis logical database.
type stubKV struct {
	data    map[string]string
	lists   map[string][]string
	lastTTL time.Duration
	getErr  error
}

func newStubKV() *stubKV {
	return &stubKV{data: map[string]string{}, lists: map[string][]string{}}
}

func (s *stubKV) SetEx(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	s.data[key] = string(value.([]byte))
	s.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (s *stubKV) Get(_ context.Context, key string) *redis.StringCmd {
	if s.getErr != nil {
		return redis.NewStringResult("", s.getErr)
	}
	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (s *stubKV) LPush(_ context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		s.lists[key] = append([]string{v.(string)}, s.lists[key]...)
	}
	return redis.NewIntResult(int64(len(s.lists[key])), nil)
}

func (s *stubKV) LRange(_ context.Context, key string, _, _ int64) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(append([]string(nil), s.lists[key]...), nil)
}

func (s *stubKV) LRem(_ context.Context, key string, _ int64, value any) *redis.IntCmd {
	var kept []string
	removed := int64(0)
	for _, v := range s.lists[key] {
		if v == value.(string) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	s.lists[key] = kept
	return redis.NewIntResult(removed, nil)
}

func (s *stubKV) LLen(_ context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(s.lists[key])), nil)
}

func (s *stubKV) Keys(_ context.Context, pattern string) *redis.StringSliceCmd {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewStringSliceResult(keys, nil)
}

func (s *stubKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	deleted := int64(0)
	for _, k := range keys {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func (s *stubKV) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (s *stubKV) Info(_ context.Context, _ ...string) *redis.StringCmd {
	return redis.NewStringResult("# Memory\r\nused_memory_human:1.21M\r\n", nil)
}

func newTestClient() (*Client, *stubKV, *stubKV) {
	tx := newStubKV()
	pred := newStubKV()
	return &Client{tx: tx, pred: pred, ttl: DefaultTTL}, tx, pred
}

func TestCacheTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, tx, _ := newTestClient()
	err := client.CacheTransaction(ctx, "tx_123456", map[string]any{
		"transaction_id": "tx_123456",
		"customer_id":    "cust_789",
		"amount":         299.99,
	})
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, tx.lastTTL)
	assert.Equal(t, []string{"tx:tx_123456"}, tx.lists[UploadQueue])

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(tx.data["tx:tx_123456"]), &stored))
	assert.Equal(t, "cust_789", stored["customer_id"])
	assert.NotEmpty(t, stored["_timestamp"], "timestamp stamped when absent")
}

func TestCachePrediction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, tx, pred := newTestClient()
	err := client.CachePrediction(ctx, "pred_abc", map[string]any{
		"prediction_id":       "pred_abc",
		"selected_prediction": 0.234,
	})
	require.NoError(t, err)

	assert.Contains(t, pred.data, "pred:pred_abc")
	// The queue lives in the transactions database regardless of kind.
	assert.Equal(t, []string{"pred:pred_abc"}, tx.lists[UploadQueue])

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(pred.data["pred:pred_abc"]), &stored))
	assert.NotEmpty(t, stored["prediction_timestamp"])
}

func TestGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, _, _ := newTestClient()
	require.NoError(t, client.CacheTransaction(ctx, "tx_1", map[string]any{"amount": 10.5}))

	data, err := client.GetTransaction(ctx, "tx_1")
	require.NoError(t, err)
	assert.Equal(t, 10.5, data["amount"])

	missing, err := client.GetTransaction(ctx, "tx_none")
	require.NoError(t, err)
	assert.Nil(t, missing, "cache miss is not an error")
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, _, _ := newTestClient()
	require.NoError(t, client.CacheTransaction(ctx, "tx_1", map[string]any{}))
	require.NoError(t, client.CacheTransaction(ctx, "tx_2", map[string]any{}))
	require.NoError(t, client.CachePrediction(ctx, "pred_1", map[string]any{}))

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TransactionKeys)
	assert.Equal(t, 1, stats.PredictionKeys)
	assert.Equal(t, int64(3), stats.UploadQueueSize)
	assert.Equal(t, "1.21M", stats.MemoryUsed)
}

func TestPing(t *testing.T) {
	t.Parallel()

	client, _, _ := newTestClient()
	assert.NoError(t, client.Ping(context.Background()))
}
