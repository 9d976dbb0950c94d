package cmd

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/flit-data/flitpipe/internal/overlay"
	"github.com/flit-data/flitpipe/internal/progress"
	"github.com/flit-data/flitpipe/internal/synth"
	"github.com/flit-data/flitpipe/internal/warehouse"
)

func CmdOverlay() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "overlay [flags]",
			Short: "Overlay a treatment effect onto experiment data",
			Long: `Generate synthetic incremental activity for the treatment group of an A/B
experiment, sized to a target effect over the baseline rate, and load it into
a per-experiment warehouse table.

Treatment users are read from the experiment_assignments table, so run
"flitpipe generate" first.

Example:
  flitpipe overlay --experiment free_shipping_threshold --variant threshold_75 \
    --effect-size 0.20 --baseline-rate 2.0 --start 2023-06-05 --end 2023-07-02
`,
		}, overlayFlags, runOverlay,
	)
}

var overlayFlags = []commandLineFlag{
	{name: "experiment", usage: "experiment name (required)", required: true},
	{name: "variant", usage: "treatment variant name (required)", required: true},
	{name: "data-category", defaultValue: "orders", usage: "data category of the generated records"},
	{name: "granularity", defaultValue: "user_day", usage: "granularity of the generated records"},
	{name: "effect-size", defaultValue: "0.15", usage: "relative lift to synthesize, e.g. 0.15 for +15%"},
	{name: "baseline-rate", defaultValue: "2.0", usage: "baseline events per user over the period"},
	{name: "start", shorthand: "s", usage: "experiment period start (YYYY-MM-DD, required)", required: true},
	{name: "end", shorthand: "e", usage: "experiment period end (YYYY-MM-DD, required)", required: true},
	{name: "daily-eligible-users", defaultValue: "0", usage: "daily eligible users cap; 0 disables the sample size constraint"},
	seedFlag,
}

func runOverlay(ctx *Context, _ []string) error {
	cfg, seed, err := overlayConfig(ctx)
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

	assignments, err := loadAssignments(ctx, wh, cfg.ExperimentName)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return fmt.Errorf("no assignments found for experiment %s; run generate first", cfg.ExperimentName)
	}

	rng := rand.New(rand.NewSource(seed))
	result, err := overlay.New(cfg, wh).Run(ctx, assignments, rng)
	if err != nil {
		return err
	}

	if !ctx.Quiet {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendRows([]table.Row{
			{"Table", result.Table},
			{"Treatment users", result.TreatmentUsers},
			{"Records generated", result.RecordsGenerated},
		})
		t.Render()
	}
	return nil
}

func overlayConfig(ctx *Context) (overlay.Config, int64, error) {
	cfg := overlay.Config{}

	var err error
	if cfg.ExperimentName, err = ctx.StringParam("experiment"); err != nil {
		return cfg, 0, err
	}
	if cfg.TreatmentVariant, err = ctx.StringParam("variant"); err != nil {
		return cfg, 0, err
	}
	if cfg.DataCategory, err = ctx.StringParam("data-category"); err != nil {
		return cfg, 0, err
	}
	if cfg.Granularity, err = ctx.StringParam("granularity"); err != nil {
		return cfg, 0, err
	}
	if cfg.EffectSize, err = ctx.Float64Param("effect-size"); err != nil {
		return cfg, 0, err
	}
	if cfg.BaselineRate, err = ctx.Float64Param("baseline-rate"); err != nil {
		return cfg, 0, err
	}
	if cfg.DailyEligibleUsers, err = ctx.IntParam("daily-eligible-users"); err != nil {
		return cfg, 0, err
	}

	start, err := ctx.StringParam("start")
	if err != nil {
		return cfg, 0, err
	}
	if cfg.StartDate, err = progress.ParseDate(start); err != nil {
		return cfg, 0, err
	}
	end, err := ctx.StringParam("end")
	if err != nil {
		return cfg, 0, err
	}
	if cfg.EndDate, err = progress.ParseDate(end); err != nil {
		return cfg, 0, err
	}
	if cfg.EndDate.Before(cfg.StartDate) {
		return cfg, 0, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	seed := ctx.Config.Ingest.Seed
	if ctx.Changed("seed") {
		n, err := ctx.IntParam("seed")
		if err != nil {
			return cfg, 0, err
		}
		seed = int64(n)
	}
	return cfg, seed, nil
}

// loadAssignments reads the experiment's assignment rows out of the
// payload column of the assignments table.
func loadAssignments(ctx *Context, wh *warehouse.Client, experiment string) ([]synth.Assignment, error) {
	query := fmt.Sprintf(
		`SELECT payload->>'user_id' AS user_id, payload->>'variant' AS variant
		 FROM %q.experiment_assignments
		 WHERE payload->>'experiment_name' = $1`,
		wh.Schema(),
	)
	docs, err := wh.QueryDocuments(ctx, query, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}

	assignments := make([]synth.Assignment, 0, len(docs))
	for _, doc := range docs {
		userID, _ := doc["user_id"].(string)
		variant, _ := doc["variant"].(string)
		if userID == "" || variant == "" {
			continue
		}
		assignments = append(assignments, synth.Assignment{
			UserID:         userID,
			ExperimentName: experiment,
			Variant:        variant,
		})
	}
	return assignments, nil
}
