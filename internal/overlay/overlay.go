// Package overlay synthesizes treatment-effect behavioral data for running
// experiments: extra events for treatment-variant users, distributed across
// the experiment period with realistic day-of-week weighting, and loaded
// into a per-experiment synthetic table that analytics unions with real
// data. Synthetic rows never replace real rows.
package overlay

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/flit-data/flitpipe/internal/logger"
	"github.com/flit-data/flitpipe/internal/logger/tag"
	"github.com/flit-data/flitpipe/internal/synth"
	"github.com/flit-data/flitpipe/internal/warehouse"
)

// bufferMultiplier inflates the generated effect above the target so that
// dilution from ineligible traffic still leaves a detectable lift.
const bufferMultiplier = 1.2

// Config parameterizes one overlay generation run.
type Config struct {
	ExperimentName   string
	DataCategory     string
	Granularity      string
	TreatmentVariant string
	// EffectSize is the relative lift the experiment is designed to detect.
	EffectSize float64
	// BaselineRate is historical events per user over the period.
	BaselineRate float64
	StartDate    time.Time
	EndDate      time.Time
	// DailyEligibleUsers caps the treatment sample per the experimental
	// design; zero means no constraint.
	DailyEligibleUsers int
}

// Uploader loads the synthetic rows into the warehouse.
type Uploader interface {
	EnsureTable(ctx context.Context, spec warehouse.TableSpec) error
	Load(ctx context.Context, spec warehouse.TableSpec, docs []warehouse.Document) (warehouse.LoadResult, error)
}

// Result summarizes one overlay run.
type Result struct {
	Table            string
	TreatmentUsers   int
	RecordsGenerated int
}

// Generator builds and uploads overlay data.
type Generator struct {
	cfg      Config
	uploader Uploader
}

func New(cfg Config, uploader Uploader) *Generator {
	return &Generator{cfg: cfg, uploader: uploader}
}

// TableName is the per-experiment destination following the
// synthetic_{experiment}_{category} convention.
func (g *Generator) TableName() string {
	return fmt.Sprintf("synthetic_%s_%s", g.cfg.ExperimentName, g.cfg.DataCategory)
}

// Run filters the assignments to treatment users, generates their extra
// events and uploads them with an autodetected schema.
func (g *Generator) Run(ctx context.Context, assignments []synth.Assignment, rng *rand.Rand) (Result, error) {
	treatment := g.treatmentUsers(ctx, assignments, rng)
	if len(treatment) == 0 {
		logger.Warn(ctx, "No treatment users found for variant",
			tag.Experiment(g.cfg.ExperimentName), tag.Variant(g.cfg.TreatmentVariant))
		return Result{Table: g.TableName()}, nil
	}

	docs := g.generateRecords(ctx, treatment, rng)
	result := Result{
		Table:            g.TableName(),
		TreatmentUsers:   len(treatment),
		RecordsGenerated: len(docs),
	}
	if len(docs) == 0 {
		logger.Warn(ctx, "No overlay data to upload", tag.Table(result.Table))
		return result, nil
	}

	spec := warehouse.TableSpec{Name: result.Table, Autodetect: true}
	if err := g.uploader.EnsureTable(ctx, spec); err != nil {
		return result, err
	}
	if _, err := g.uploader.Load(ctx, spec, docs); err != nil {
		return result, fmt.Errorf("failed to upload overlay records: %w", err)
	}

	logger.Info(ctx, "Uploaded overlay records",
		tag.Table(result.Table), tag.Records(result.RecordsGenerated))
	return result, nil
}

// treatmentUsers filters to the treatment variant and applies the sample
// size constraint from the experimental design.
func (g *Generator) treatmentUsers(ctx context.Context, assignments []synth.Assignment, rng *rand.Rand) []string {
	var users []string
	for _, a := range assignments {
		if a.ExperimentName == g.cfg.ExperimentName && a.Variant == g.cfg.TreatmentVariant {
			users = append(users, a.UserID)
		}
	}

	if g.cfg.DailyEligibleUsers > 0 {
		// Assumes a 50/50 treatment/control split.
		limit := g.cfg.DailyEligibleUsers * g.durationDays() / 2
		if len(users) > limit {
			rng.Shuffle(len(users), func(i, j int) {
				users[i], users[j] = users[j], users[i]
			})
			users = users[:limit]
			logger.Infof(ctx, "Applied sample size constraint: %d treatment users", limit)
		}
	}
	return users
}

func (g *Generator) durationDays() int {
	return int(g.cfg.EndDate.Sub(g.cfg.StartDate).Hours()/24) + 1
}

func (g *Generator) generateRecords(ctx context.Context, users []string, rng *rand.Rand) []warehouse.Document {
	days := g.durationDays()
	weights := dailyWeights(g.cfg.StartDate, days)

	targetRate := g.cfg.BaselineRate * (1 + g.cfg.EffectSize*bufferMultiplier)
	additionalPerUser := targetRate - g.cfg.BaselineRate
	logger.Infof(ctx, "Baseline rate: %.4f, target rate: %.4f, additional events per user: %.4f",
		g.cfg.BaselineRate, targetRate, additionalPerUser)

	var docs []warehouse.Document
	for _, userID := range users {
		total := poisson(rng, additionalPerUser)
		if total == 0 {
			continue
		}
		for day, count := range multinomial(rng, total, weights) {
			date := g.cfg.StartDate.AddDate(0, 0, day)
			for i := 0; i < count; i++ {
				docs = append(docs, g.syntheticRecord(userID, date, rng))
			}
		}
	}

	logger.Info(ctx, "Generated synthetic overlay records", tag.Records(len(docs)))
	return docs
}

func (g *Generator) syntheticRecord(userID string, date time.Time, rng *rand.Rand) warehouse.Document {
	doc := warehouse.Document{
		g.cfg.Granularity: fmt.Sprintf("%d%04d", date.Unix(), randInt(rng, 1000, 9999)),
		"user_id":         userID,
		"status":          "Complete",
		"num_of_item":     randInt(rng, 1, 3),
		"created_at":      date.Format("2006-01-02 15:04:05"),
		"shipped_at":      date.AddDate(0, 0, randInt(rng, 1, 3)).Format("2006-01-02 15:04:05"),
		"delivered_at":    date.AddDate(0, 0, randInt(rng, 3, 7)).Format("2006-01-02 15:04:05"),
		"experiment_name": g.cfg.ExperimentName,
		"variant":         g.cfg.TreatmentVariant,
	}
	return doc
}

// dailyWeights builds the normalized multinomial weights for the period:
// weekends 1.2, Mondays 1.1, other weekdays 1.0.
func dailyWeights(start time.Time, days int) []float64 {
	weights := make([]float64, days)
	total := 0.0
	for i := range weights {
		switch start.AddDate(0, 0, i).Weekday() {
		case time.Saturday, time.Sunday:
			weights[i] = 1.2
		case time.Monday:
			weights[i] = 1.1
		default:
			weights[i] = 1.0
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// poisson draws from a Poisson distribution with Knuth's method; the rates
// here are small so the multiplicative loop stays short.
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	threshold := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= threshold {
			return k
		}
		k++
	}
}

// multinomial distributes n draws across the weight buckets.
func multinomial(rng *rand.Rand, n int, weights []float64) []int {
	counts := make([]int, len(weights))
	for i := 0; i < n; i++ {
		p := rng.Float64()
		cumulative := 0.0
		bucket := len(weights) - 1
		for j, w := range weights {
			cumulative += w
			if p <= cumulative {
				bucket = j
				break
			}
		}
		counts[bucket]++
	}
	return counts
}

func randInt(rng *rand.Rand, low, high int) int {
	return low + rng.Intn(high-low+1)
}
