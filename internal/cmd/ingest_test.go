package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flit-data/flitpipe/internal/config"
)

func newTestContext(t *testing.T, flags []commandLineFlag, args []string) *Context {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	initFlags(cmd, flags...)
	require.NoError(t, cmd.Flags().Parse(args))

	return &Context{
		Context: context.Background(),
		Command: cmd,
		Config: &config.Config{
			Warehouse: config.Warehouse{
				TransactionsTable: "raw_bnpl_transactions",
			},
			Ingest: config.Ingest{
				BatchDays:       30,
				BaseDailyVolume: 5000,
				Seed:            42,
				FetchPolicy:     "per_date",
				BatchPause:      500 * time.Millisecond,
				ProgressFile:    "bnpl_ingestion_progress.json",
			},
		},
	}
}

func TestIngestConfigSingleDate(t *testing.T) {
	ctx := newTestContext(t, ingestFlags, []string{"--single-date", "2024-03-15"})

	cfg, err := ingestConfig(ctx)
	require.NoError(t, err)

	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, cfg.StartDate)
	assert.Equal(t, want, cfg.EndDate)
	assert.Equal(t, 5000, cfg.BaseDailyVolume)
	assert.Equal(t, "raw_bnpl_transactions", cfg.TableName)
}

func TestIngestConfigRequiresStart(t *testing.T) {
	ctx := newTestContext(t, ingestFlags, nil)

	_, err := ingestConfig(ctx)
	assert.ErrorIs(t, err, ErrStartDateRequired)
}

func TestIngestConfigFlagOverrides(t *testing.T) {
	ctx := newTestContext(t, ingestFlags, []string{
		"--start", "2023-01-01",
		"--end", "2023-01-31",
		"--volume", "2000",
		"--seed", "7",
		"--batch-days", "10",
		"--fetch-policy", "per_range",
		"--table", "raw_other",
	})

	cfg, err := ingestConfig(ctx)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, 2000, cfg.BaseDailyVolume)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 10, cfg.BatchDays)
	assert.Equal(t, "per_range", cfg.FetchPolicy)
	assert.Equal(t, "raw_other", cfg.TableName)
}

func TestIngestConfigEndDefaultsToYesterday(t *testing.T) {
	ctx := newTestContext(t, ingestFlags, []string{"--start", "2023-01-01"})

	cfg, err := ingestConfig(ctx)
	require.NoError(t, err)

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	assert.Equal(t, yesterday.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"))
}

func TestIngestConfigRejectsInvalidVolume(t *testing.T) {
	ctx := newTestContext(t, ingestFlags, []string{
		"--single-date", "2024-03-15",
		"--volume", "lots",
	})

	_, err := ingestConfig(ctx)
	assert.ErrorContains(t, err, "must be an integer")
}

func TestIngestConfigRejectsNonPositiveBatchDays(t *testing.T) {
	for _, value := range []string{"0", "-5"} {
		ctx := newTestContext(t, ingestFlags, []string{
			"--single-date", "2024-03-15",
			"--batch-days", value,
		})

		_, err := ingestConfig(ctx)
		assert.ErrorContains(t, err, "batch-days must be at least 1")
	}
}
