package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/flit-data/flitpipe/internal/monitor"
	"github.com/flit-data/flitpipe/internal/progress"
)

func CmdStatus() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "status [flags]",
			Short: "Show pipeline health and ingestion progress",
			Long: `Run health checks against the ML cache and the warehouse upload tables and
show the state of the historical ingestion progress file.
`,
		}, statusFlags, runStatus,
	)
}

var statusFlags = []commandLineFlag{
	{name: "progress-file", usage: "path of the progress tracking file"},
}

func runStatus(ctx *Context, _ []string) error {
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

	mon := monitor.New(cache, wh, monitor.Config{
		PredictionsTable:  ctx.Config.Warehouse.PredictionsTable,
		TransactionsTable: ctx.Config.Warehouse.CachedTransactionsTable,
	})
	report := mon.GenerateReport(ctx)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Service", "Status", "Alerts"})
	for _, svc := range report.Services {
		alerts := ""
		for i, a := range svc.Alerts {
			if i > 0 {
				alerts += "; "
			}
			alerts += a
		}
		t.AppendRow(table.Row{svc.Service, colorStatus(svc.Status), alerts})
	}
	t.AppendFooter(table.Row{"overall", colorStatus(report.OverallStatus), ""})
	t.Render()

	printProgress(ctx)
	return nil
}

// printProgress shows the ingestion progress file if one exists.
func printProgress(ctx *Context) {
	progressFile := ctx.Config.Ingest.ProgressFile
	if ctx.Changed("progress-file") {
		if v, err := ctx.StringParam("progress-file"); err == nil {
			progressFile = v
		}
	}
	if _, err := os.Stat(progressFile); err != nil {
		return
	}

	tracker, err := progress.New(ctx, progressFile)
	if err != nil {
		return
	}
	state := tracker.Snapshot()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Completed dates", len(state.CompletedDates)},
		{"Failed dates", len(state.FailedDates)},
		{"Records ingested", state.TotalRecordsIngested},
	})
	if state.LastUpdated != nil {
		t.AppendRow(table.Row{"Last updated", state.LastUpdated.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}

func colorStatus(status string) string {
	switch status {
	case monitor.StatusHealthy:
		return color.GreenString(status)
	case monitor.StatusWarning:
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}
