package mlcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flit-data/flitpipe/internal/warehouse"
)

type captureUploader struct {
	loads   map[string][]warehouse.Document
	failFor string
}

func newCaptureUploader() *captureUploader {
	return &captureUploader{loads: map[string][]warehouse.Document{}}
}

func (u *captureUploader) EnsureTable(_ context.Context, spec warehouse.TableSpec) error {
	if !spec.Autodetect {
		return errors.New("drain tables must autodetect")
	}
	return nil
}

func (u *captureUploader) Load(_ context.Context, spec warehouse.TableSpec, docs []warehouse.Document) (warehouse.LoadResult, error) {
	if spec.Name == u.failFor {
		return warehouse.LoadResult{}, errors.New("load job failed")
	}
	u.loads[spec.Name] = append(u.loads[spec.Name], docs...)
	return warehouse.LoadResult{OutputRows: int64(len(docs))}, nil
}

func seedCache(t *testing.T, client *Client) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, client.CacheTransaction(ctx, "tx_1", map[string]any{"transaction_id": "tx_1", "amount": 100.0}))
	require.NoError(t, client.CacheTransaction(ctx, "tx_2", map[string]any{"transaction_id": "tx_2", "amount": 250.0}))
	require.NoError(t, client.CachePrediction(ctx, "pred_1", map[string]any{"prediction_id": "pred_1", "risk_level": "LOW"}))
}

func TestDrainUploadsAndCleansUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, tx, pred := newTestClient()
	seedCache(t, client)
	uploader := newCaptureUploader()

	result, err := NewDrainer(client, uploader, DrainConfig{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.PredictionsUploaded)
	assert.Equal(t, 2, result.TransactionsUploaded)
	assert.Empty(t, result.Errors)

	require.Len(t, uploader.loads["raw_bnpl_txs_json"], 2)
	require.Len(t, uploader.loads["raw_bnpl_prediction_logs"], 1)
	for _, doc := range uploader.loads["raw_bnpl_txs_json"] {
		assert.NotEmpty(t, doc["_ingestion_timestamp"])
	}

	assert.Empty(t, tx.data, "uploaded transaction blobs deleted")
	assert.Empty(t, pred.data, "uploaded prediction blobs deleted")
	assert.Empty(t, tx.lists[UploadQueue], "queue cleared after upload")
}

func TestDrainEmptyQueue(t *testing.T) {
	t.Parallel()

	client, _, _ := newTestClient()
	uploader := newCaptureUploader()

	result, err := NewDrainer(client, uploader, DrainConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.PredictionsUploaded)
	assert.Zero(t, result.TransactionsUploaded)
	assert.Empty(t, uploader.loads)
}

func TestDrainFailedKindStaysQueued(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, tx, pred := newTestClient()
	seedCache(t, client)
	uploader := newCaptureUploader()
	uploader.failFor = "raw_bnpl_txs_json"

	result, err := NewDrainer(client, uploader, DrainConfig{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.PredictionsUploaded)
	assert.Zero(t, result.TransactionsUploaded)
	require.Len(t, result.Errors, 1)

	// Failed transactions remain cached and queued for the next run.
	assert.Len(t, tx.data, 2)
	assert.ElementsMatch(t, []string{"tx:tx_1", "tx:tx_2"}, tx.lists[UploadQueue])
	assert.Empty(t, pred.data, "successful kind still drained")
}

func TestDrainSkipsExpiredKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, tx, _ := newTestClient()
	require.NoError(t, client.CacheTransaction(ctx, "tx_1", map[string]any{"transaction_id": "tx_1"}))
	// Simulate TTL expiry: blob gone, key still queued.
	delete(tx.data, "tx:tx_1")

	uploader := newCaptureUploader()
	result, err := NewDrainer(client, uploader, DrainConfig{}).Run(ctx)
	require.NoError(t, err)

	assert.Zero(t, result.TransactionsUploaded)
	assert.Empty(t, tx.lists[UploadQueue], "dead keys dropped from queue")
}

func TestRunOnScheduleRejectsBadExpression(t *testing.T) {
	t.Parallel()

	client, _, _ := newTestClient()
	err := NewDrainer(client, newCaptureUploader(), DrainConfig{}).RunOnSchedule(context.Background(), "not-a-schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid drain schedule")
}
