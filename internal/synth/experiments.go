package synth

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"time"

	"github.com/flit-data/flitpipe/internal/warehouse"
)

// Experiment describes one A/B test and its variant allocation.
type Experiment struct {
	Name          string
	Variants      []string
	Allocation    []float64
	StartDate     time.Time
	EndDate       time.Time
	Description   string
	SuccessMetric string
}

// Assignment is one user-to-variant row.
type Assignment struct {
	UserID              string
	ExperimentName      string
	Variant             string
	AssignedDate        time.Time
	ExperimentStartDate time.Time
	ExperimentEndDate   time.Time
	Description         string
	SuccessMetric       string
	AssignmentMethod    string
}

// Document renders the assignment for warehouse upload.
func (a Assignment) Document() warehouse.Document {
	return warehouse.Document{
		"user_id":                a.UserID,
		"experiment_name":        a.ExperimentName,
		"variant":                a.Variant,
		"assigned_date":          a.AssignedDate.Format("2006-01-02"),
		"experiment_start_date":  a.ExperimentStartDate.Format("2006-01-02"),
		"experiment_end_date":    a.ExperimentEndDate.Format("2006-01-02"),
		"experiment_description": a.Description,
		"success_metric":         a.SuccessMetric,
		"assignment_method":      a.AssignmentMethod,
	}
}

func expDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DefaultExperiments is the standard e-commerce experiment catalog.
func DefaultExperiments() []Experiment {
	return []Experiment{
		{
			Name:          "checkout_button_color",
			Variants:      []string{"blue_button", "green_button", "orange_button"},
			Allocation:    []float64{0.33, 0.33, 0.34},
			StartDate:     expDate(2023, 1, 15),
			EndDate:       expDate(2023, 12, 31),
			Description:   "Testing checkout button color impact on conversion",
			SuccessMetric: "conversion_rate",
		},
		{
			Name:          "free_shipping_threshold",
			Variants:      []string{"threshold_50", "threshold_75", "threshold_100"},
			Allocation:    []float64{0.33, 0.33, 0.34},
			StartDate:     expDate(2023, 2, 1),
			EndDate:       expDate(2023, 12, 31),
			Description:   "Testing free shipping threshold on average order value",
			SuccessMetric: "average_order_value",
		},
		{
			Name:          "product_recommendations",
			Variants:      []string{"collaborative_filtering", "content_based", "hybrid"},
			Allocation:    []float64{0.33, 0.33, 0.34},
			StartDate:     expDate(2023, 3, 1),
			EndDate:       expDate(2023, 12, 31),
			Description:   "Testing recommendation algorithm effectiveness",
			SuccessMetric: "click_through_rate",
		},
		{
			Name:          "email_frequency",
			Variants:      []string{"weekly", "biweekly", "monthly"},
			Allocation:    []float64{0.33, 0.33, 0.34},
			StartDate:     expDate(2023, 4, 1),
			EndDate:       expDate(2023, 12, 31),
			Description:   "Testing email marketing frequency impact on engagement",
			SuccessMetric: "email_engagement_rate",
		},
	}
}

// AssignVariant deterministically buckets an entity into a variant. The MD5
// of "{id}_{experiment}" mod 1e6 maps to [0,1) and a walk over the
// cumulative allocation picks the bucket, so the same entity always lands
// on the same variant regardless of processing order.
func AssignVariant(entityID, experiment string, variants []string, allocation []float64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s", entityID, experiment)))

	hashValue := new(big.Int).SetBytes(sum[:])
	bucket := new(big.Int).Mod(hashValue, big.NewInt(1000000)).Int64()
	probability := float64(bucket) / 1000000

	cumulative := 0.0
	for i, alloc := range allocation {
		cumulative += alloc
		if probability <= cumulative {
			return variants[i]
		}
	}
	return variants[0]
}

// GenerateAssignments produces one assignment per user per experiment the
// user is eligible for. Users who registered after an experiment started
// are excluded from it.
func GenerateAssignments(users []User, experiments []Experiment) []Assignment {
	var assignments []Assignment
	for _, user := range users {
		for _, exp := range experiments {
			if user.RegistrationDate.After(exp.StartDate) {
				continue
			}
			assignments = append(assignments, Assignment{
				UserID:              user.ID,
				ExperimentName:      exp.Name,
				Variant:             AssignVariant(user.ID, exp.Name, exp.Variants, exp.Allocation),
				AssignedDate:        exp.StartDate,
				ExperimentStartDate: exp.StartDate,
				ExperimentEndDate:   exp.EndDate,
				Description:         exp.Description,
				SuccessMetric:       exp.SuccessMetric,
				AssignmentMethod:    "deterministic_hash",
			})
		}
	}
	return assignments
}
