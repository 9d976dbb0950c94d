package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/flit-data/flitpipe/internal/ingest"
	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/progress"
)

// ErrStartDateRequired is returned when neither a range start nor a
// single date is provided.
var ErrStartDateRequired = errors.New("either --start or --single-date must be provided")

func CmdIngest() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "ingest [flags]",
			Short: "Backfill historical transactions into the warehouse",
			Long: `Fetch historical BNPL transactions from the simtom streaming API and load
them into the warehouse in date batches.

Progress is tracked per date in a local JSON file, so an interrupted or
partially failed run can be re-executed and will only process the dates that
have not completed yet.

Example:
  flitpipe ingest --start 2023-01-01 --end 2023-12-31
  flitpipe ingest --single-date 2024-03-15 --volume 2000
`,
		}, ingestFlags, runIngest,
	)
}

var ingestFlags = []commandLineFlag{
	{name: "start", shorthand: "s", usage: "start date (YYYY-MM-DD)"},
	{name: "end", shorthand: "e", usage: "end date (YYYY-MM-DD, default yesterday)"},
	{name: "single-date", usage: "ingest exactly one date (YYYY-MM-DD)"},
	{name: "volume", usage: "base daily record volume"},
	seedFlag,
	{name: "batch-days", usage: "number of dates per load batch"},
	{name: "progress-file", usage: "path of the progress tracking file"},
	{name: "fetch-policy", usage: "per_date or per_range fetching"},
	{name: "table", usage: "destination table name"},
}

func runIngest(ctx *Context, _ []string) error {
	cfg, err := ingestConfig(ctx)
	if err != nil {
		return err
	}

	runID, err := genRunID()
	if err != nil {
		return fmt.Errorf("failed to generate run ID: %w", err)
	}

	progressFile := ctx.Config.Ingest.ProgressFile
	if ctx.Changed("progress-file") {
		if progressFile, err = ctx.StringParam("progress-file"); err != nil {
			return err
		}
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx.Context = signalCtx

	logger.Info(ctx, "Starting historical ingestion",
		"runId", runID,
		"start", cfg.StartDate.Format("2006-01-02"),
		"end", cfg.EndDate.Format("2006-01-02"),
	)

	wh, err := ctx.OpenWarehouse()
	if err != nil {
		return err
	}
	defer func() {
		_ = wh.Close()
	}()

	tracker, err := progress.New(ctx, progressFile)
	if err != nil {
		return err
	}

	summary, err := ingest.New(cfg, ctx.APIClient(), wh, tracker).Run(ctx)
	if err != nil {
		return err
	}

	if !ctx.Quiet {
		printIngestSummary(runID, summary)
	}
	return nil
}

// ingestConfig resolves the run configuration from flags over file and
// environment settings.
func ingestConfig(ctx *Context) (ingest.Config, error) {
	base := ctx.Config.Ingest
	cfg := ingest.Config{
		BaseDailyVolume: base.BaseDailyVolume,
		Seed:            base.Seed,
		BatchDays:       base.BatchDays,
		FetchPolicy:     base.FetchPolicy,
		BatchPause:      base.BatchPause,
		TableName:       ctx.Config.Warehouse.TransactionsTable,
	}

	if ctx.Changed("single-date") {
		raw, err := ctx.StringParam("single-date")
		if err != nil {
			return cfg, err
		}
		date, err := progress.ParseDate(raw)
		if err != nil {
			return cfg, err
		}
		cfg.StartDate, cfg.EndDate = date, date
	} else {
		if !ctx.Changed("start") {
			return cfg, ErrStartDateRequired
		}
		raw, err := ctx.StringParam("start")
		if err != nil {
			return cfg, err
		}
		if cfg.StartDate, err = progress.ParseDate(raw); err != nil {
			return cfg, err
		}
		cfg.EndDate = time.Now().UTC().AddDate(0, 0, -1)
		if ctx.Changed("end") {
			raw, err := ctx.StringParam("end")
			if err != nil {
				return cfg, err
			}
			if cfg.EndDate, err = progress.ParseDate(raw); err != nil {
				return cfg, err
			}
		}
	}

	var err error
	if ctx.Changed("volume") {
		if cfg.BaseDailyVolume, err = ctx.IntParam("volume"); err != nil {
			return cfg, err
		}
	}
	if ctx.Changed("seed") {
		seed, err := ctx.IntParam("seed")
		if err != nil {
			return cfg, err
		}
		cfg.Seed = int64(seed)
	}
	if ctx.Changed("batch-days") {
		if cfg.BatchDays, err = ctx.IntParam("batch-days"); err != nil {
			return cfg, err
		}
		if cfg.BatchDays < 1 {
			return cfg, fmt.Errorf("batch-days must be at least 1, got %d", cfg.BatchDays)
		}
	}
	if ctx.Changed("fetch-policy") {
		if cfg.FetchPolicy, err = ctx.StringParam("fetch-policy"); err != nil {
			return cfg, err
		}
	}
	if ctx.Changed("table") {
		if cfg.TableName, err = ctx.StringParam("table"); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func printIngestSummary(runID string, summary ingest.Summary) {
	status := color.GreenString(summary.Status)
	if summary.Status == ingest.StatusPartial {
		status = color.YellowString(summary.Status)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Run ID", runID},
		{"Status", status},
		{"Successful batches", summary.SuccessfulBatches},
		{"Failed batches", summary.FailedBatches},
		{"Records ingested", summary.RecordsIngested},
		{"Cumulative records", summary.CumulativeRecords},
		{"Elapsed", summary.Elapsed.Round(time.Millisecond)},
		{"Records / second", fmt.Sprintf("%.1f", summary.RecordsPerSecond)},
	})
	if summary.Message != "" {
		t.AppendRow(table.Row{"Message", summary.Message})
	}
	t.Render()
}
