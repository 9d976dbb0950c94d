package synth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignVariant(t *testing.T) {
	t.Parallel()

	variants := []string{"blue_button", "green_button", "orange_button"}
	allocation := []float64{0.33, 0.33, 0.34}

	t.Run("Deterministic", func(t *testing.T) {
		first := AssignVariant("user_42", "checkout_button_color", variants, allocation)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, AssignVariant("user_42", "checkout_button_color", variants, allocation))
		}
	})

	t.Run("IndependentAcrossExperiments", func(t *testing.T) {
		// Different experiments hash differently; verify at least one user
		// out of many lands on different variants across experiments.
		differs := false
		for i := 0; i < 50; i++ {
			id := fmt.Sprintf("user_%d", i)
			a := AssignVariant(id, "checkout_button_color", variants, allocation)
			b := AssignVariant(id, "email_frequency", variants, allocation)
			if a != b {
				differs = true
				break
			}
		}
		assert.True(t, differs)
	})

	t.Run("AllocationFidelity", func(t *testing.T) {
		counts := map[string]int{}
		for i := 0; i < 1000; i++ {
			v := AssignVariant(fmt.Sprintf("user_%d", i), "free_shipping_threshold", variants, allocation)
			counts[v]++
		}
		require.Len(t, counts, 3, "every variant receives traffic")
		for variant, n := range counts {
			share := float64(n) / 1000
			assert.GreaterOrEqual(t, share, 0.25, "variant %s underallocated: %.3f", variant, share)
			assert.LessOrEqual(t, share, 0.40, "variant %s overallocated: %.3f", variant, share)
		}
	})
}

func TestGenerateAssignments(t *testing.T) {
	t.Parallel()

	experiments := DefaultExperiments()
	users := []User{
		{ID: "user_1", RegistrationDate: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "user_2", RegistrationDate: time.Date(2023, 2, 15, 0, 0, 0, 0, time.UTC)},
	}

	assignments := GenerateAssignments(users, experiments)

	t.Run("RegistrationGating", func(t *testing.T) {
		byUser := map[string]int{}
		for _, a := range assignments {
			byUser[a.UserID]++
		}
		assert.Equal(t, 4, byUser["user_1"], "early registrant joins every experiment")
		// user_2 registered after checkout_button_color and
		// free_shipping_threshold started.
		assert.Equal(t, 2, byUser["user_2"])
	})

	t.Run("RowShape", func(t *testing.T) {
		require.NotEmpty(t, assignments)
		first := assignments[0]
		assert.Equal(t, "deterministic_hash", first.AssignmentMethod)
		assert.Equal(t, first.ExperimentStartDate, first.AssignedDate)

		doc := first.Document()
		assert.Equal(t, first.UserID, doc["user_id"])
		assert.Equal(t, first.Variant, doc["variant"])
		assert.Equal(t, "2023-01-15", doc["assigned_date"])
	})
}
