package synth

import (
	"fmt"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeOrders(n int, itemsPerOrder int) []Order {
	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, Order{
			ID:        fmt.Sprintf("ord_%d", i),
			UserID:    fmt.Sprintf("user_%d", i%50),
			OrderDate: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
			NumItems:  itemsPerOrder,
		})
	}
	return orders
}

func TestGenerateLogistics(t *testing.T) {
	t.Parallel()

	t.Run("OneRecordPerOrder", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		records := GenerateLogistics(makeOrders(200, 2), rng)
		require.Len(t, records, 200)

		trackingFormat := regexp.MustCompile(`^\d{2}[A-Z]{2}\d{8}$`)
		validWarehouses := map[string]bool{
			"WH_NYC": true, "WH_LAX": true, "WH_CHI": true, "WH_DFW": true, "WH_ATL": true,
		}
		for _, r := range records {
			assert.True(t, validWarehouses[r.WarehouseID])
			assert.Contains(t, carriers, r.ShippingCarrier)
			assert.GreaterOrEqual(t, r.ShippingCost, 0.0)
			assert.Equal(t, r.ProcessingDays+r.TransitDays, r.TotalDeliveryDays)
			assert.GreaterOrEqual(t, r.ProcessingDays, 1)
			assert.LessOrEqual(t, r.ProcessingDays, 3)
			assert.GreaterOrEqual(t, r.TransitDays, 1)
			assert.LessOrEqual(t, r.TransitDays, 7)
			assert.Regexp(t, trackingFormat, r.TrackingNumber)
			assert.GreaterOrEqual(t, r.InsuranceCost, 0.0)
			assert.LessOrEqual(t, r.InsuranceCost, 5.0)
		}
	})

	t.Run("PackageTypeFollowsItemCount", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		cases := []struct {
			items   int
			allowed []string
		}{
			{1, []string{"envelope", "small_box"}},
			{3, []string{"small_box", "medium_box"}},
			{6, []string{"medium_box", "large_box"}},
			{10, []string{"oversized"}},
		}
		for _, tc := range cases {
			for _, r := range GenerateLogistics(makeOrders(50, tc.items), rng) {
				assert.Contains(t, tc.allowed, r.PackageType, "items=%d", tc.items)
			}
		}
	})

	t.Run("ReproducibleFromSeed", func(t *testing.T) {
		orders := makeOrders(30, 2)
		a := GenerateLogistics(orders, rand.New(rand.NewSource(99)))
		b := GenerateLogistics(orders, rand.New(rand.NewSource(99)))
		assert.Equal(t, a, b)
	})

	t.Run("ExpeditedShareIsRoughly15Percent", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		records := GenerateLogistics(makeOrders(2000, 2), rng)
		expedited := 0
		for _, r := range records {
			if r.IsExpedited {
				expedited++
			}
		}
		share := float64(expedited) / float64(len(records))
		assert.InDelta(t, 0.15, share, 0.05)
	})
}
