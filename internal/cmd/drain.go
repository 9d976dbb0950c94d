package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/mlcache"
)

func CmdDrain() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "drain [flags]",
			Short: "Drain the ML prediction cache into the warehouse",
			Long: `Move queued transactions and predictions from the Redis ML cache into their
warehouse tables, then delete the drained cache entries.

Without --schedule the queue is drained once and the command exits. With
--schedule the command keeps running and drains on the given cron schedule
until interrupted.

Example:
  flitpipe drain
  flitpipe drain --schedule "0 2 * * *"
`,
		}, drainFlags, runDrain,
	)
}

var drainFlags = []commandLineFlag{
	{name: "schedule", usage: "cron expression for periodic draining"},
}

func runDrain(ctx *Context, _ []string) error {
	cache, err := ctx.OpenCache()
	if err != nil {
		return err
	}
	wh, err := ctx.OpenWarehouse()
	if err != nil {
		return err
	}
	defer func() {
		_ = wh.Close()
	}()

	drainer := mlcache.NewDrainer(cache, wh, mlcache.DrainConfig{
		PredictionsTable:  ctx.Config.Warehouse.PredictionsTable,
		TransactionsTable: ctx.Config.Warehouse.CachedTransactionsTable,
	})

	schedule, err := ctx.StringParam("schedule")
	if err != nil {
		return err
	}
	if schedule != "" {
		signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger.Info(ctx, "Starting scheduled drain", "schedule", schedule)
		return drainer.RunOnSchedule(signalCtx, schedule)
	}

	result, err := drainer.Run(ctx)
	if err != nil {
		return err
	}
	if !ctx.Quiet {
		printDrainResult(result)
	}
	return nil
}

func printDrainResult(result mlcache.DrainResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Predictions uploaded", result.PredictionsUploaded},
		{"Transactions uploaded", result.TransactionsUploaded},
		{"Elapsed", result.Elapsed.Round(time.Millisecond)},
	})
	for _, e := range result.Errors {
		t.AppendRow(table.Row{color.RedString("Error"), e})
	}
	t.Render()
}
