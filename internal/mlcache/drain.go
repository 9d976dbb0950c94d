package mlcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
	"github.com/flit-data/flitpipe/internal/warehouse"
)

// Uploader loads drained records into the warehouse.
type Uploader interface {
	EnsureTable(ctx context.Context, spec warehouse.TableSpec) error
	Load(ctx context.Context, spec warehouse.TableSpec, docs []warehouse.Document) (warehouse.LoadResult, error)
}

// DrainConfig names the destination tables for the two record kinds.
type DrainConfig struct {
	PredictionsTable  string
	TransactionsTable string
}

// DrainResult summarizes one drain run.
type DrainResult struct {
	PredictionsUploaded  int
	TransactionsUploaded int
	Elapsed              time.Duration
	Errors               []string
}

// Drainer moves queued cache entries into the warehouse.
type Drainer struct {
	cache    *Client
	uploader Uploader
	cfg      DrainConfig
}

func NewDrainer(cache *Client, uploader Uploader, cfg DrainConfig) *Drainer {
	if cfg.PredictionsTable == "" {
		cfg.PredictionsTable = "raw_bnpl_prediction_logs"
	}
	if cfg.TransactionsTable == "" {
		cfg.TransactionsTable = "raw_bnpl_txs_json"
	}
	return &Drainer{cache: cache, uploader: uploader, cfg: cfg}
}

// Run drains the upload queue once: predictions first, then transactions.
// A failed kind leaves its keys queued for the next run; the other kind
// still drains.
func (d *Drainer) Run(ctx context.Context) (DrainResult, error) {
	started := time.Now()
	logger.Info(ctx, "Starting cache drain", tag.Queue(UploadQueue))

	var result DrainResult

	queued, err := d.cache.tx.LRange(ctx, UploadQueue, 0, -1).Result()
	if err != nil {
		return result, fmt.Errorf("failed to read upload queue: %w", err)
	}
	if len(queued) == 0 {
		logger.Info(ctx, "Upload queue is empty")
		result.Elapsed = time.Since(started)
		return result, nil
	}

	predKeys := lo.Filter(queued, func(key string, _ int) bool {
		return strings.HasPrefix(key, predictionPrefix)
	})
	txKeys := lo.Filter(queued, func(key string, _ int) bool {
		return strings.HasPrefix(key, transactionPrefix)
	})

	n, err := d.drainKind(ctx, d.cache.pred, predKeys, d.cfg.PredictionsTable)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.PredictionsUploaded = n

	n, err = d.drainKind(ctx, d.cache.tx, txKeys, d.cfg.TransactionsTable)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.TransactionsUploaded = n

	result.Elapsed = time.Since(started)
	logger.Info(ctx, "Cache drain finished",
		tag.Records(result.PredictionsUploaded+result.TransactionsUploaded),
		tag.Duration(result.Elapsed))
	return result, nil
}

// drainKind fetches the keys' blobs, uploads them with an autodetected
// schema, then deletes the blobs and dequeues the keys.
func (d *Drainer) drainKind(ctx context.Context, db kv, keys []string, table string) (int, error) {
	if len(keys) == 0 {
		logger.Info(ctx, "No queued records for table", tag.Table(table))
		return 0, nil
	}

	docs := make([]warehouse.Document, 0, len(keys))
	found := make([]string, 0, len(keys))
	ingestionTime := time.Now().UTC()

	for _, key := range keys {
		raw, err := db.Get(ctx, key).Result()
		if err != nil {
			logger.Warn(ctx, "Key not found in cache", tag.Key(key), tag.Error(err))
			continue
		}
		var doc warehouse.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			logger.Warn(ctx, "Skipping corrupt cache entry", tag.Key(key), tag.Error(err))
			continue
		}
		doc["_ingestion_timestamp"] = ingestionTime.Format(time.RFC3339)
		docs = append(docs, doc)
		found = append(found, key)
	}

	if len(docs) == 0 {
		// Dead keys keep the queue growing; drop them.
		d.dequeue(ctx, keys)
		return 0, nil
	}

	spec := warehouse.TableSpec{Name: table, Autodetect: true}
	if err := d.uploader.EnsureTable(ctx, spec); err != nil {
		return 0, fmt.Errorf("failed to ensure table %s: %w", table, err)
	}
	result, err := d.uploader.Load(ctx, spec, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to upload to %s: %w", table, err)
	}

	logger.Info(ctx, "Uploaded drained records", tag.Table(table), tag.Rows(result.OutputRows))

	if deleted, err := db.Del(ctx, found...).Result(); err != nil {
		logger.Warn(ctx, "Failed to delete uploaded keys", tag.Error(err))
	} else {
		logger.Debug(ctx, "Deleted uploaded keys", tag.Records(int(deleted)))
	}
	d.dequeue(ctx, keys)
	return len(docs), nil
}

// dequeue removes uploaded keys from the queue list in the transactions
// database.
func (d *Drainer) dequeue(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := d.cache.tx.LRem(ctx, UploadQueue, 0, key).Err(); err != nil {
			logger.Warn(ctx, "Failed to dequeue key", tag.Key(key), tag.Error(err))
		}
	}
}

// RunOnSchedule runs the drain on a cron schedule until the context is
// canceled. Overlapping runs are prevented by cron's sequential job chain.
func (d *Drainer) RunOnSchedule(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if result, err := d.Run(ctx); err != nil {
			logger.Error(ctx, "Scheduled drain failed", tag.Error(err))
		} else if len(result.Errors) > 0 {
			logger.Errorf(ctx, "Scheduled drain completed with %d errors", len(result.Errors))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid drain schedule %q: %w", schedule, err)
	}

	logger.Infof(ctx, "Drain daemon started with schedule %q", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
