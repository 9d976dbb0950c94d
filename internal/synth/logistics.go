package synth

import (
	"math/rand"

	"github.com/flit-data/flitpipe/internal/warehouse"
)

// FulfillmentWarehouse is one physical shipping origin.
type FulfillmentWarehouse struct {
	ID       string
	Location string
	Region   string
}

var fulfillmentWarehouses = []FulfillmentWarehouse{
	{ID: "WH_NYC", Location: "New York, NY", Region: "Northeast"},
	{ID: "WH_LAX", Location: "Los Angeles, CA", Region: "West"},
	{ID: "WH_CHI", Location: "Chicago, IL", Region: "Midwest"},
	{ID: "WH_DFW", Location: "Dallas, TX", Region: "South"},
	{ID: "WH_ATL", Location: "Atlanta, GA", Region: "Southeast"},
}

var carriers = []string{"FedEx", "UPS", "USPS", "DHL", "Amazon Logistics"}

var packageBaseCosts = map[string]float64{
	"envelope":   4.99,
	"small_box":  8.99,
	"medium_box": 12.99,
	"large_box":  18.99,
	"oversized":  29.99,
}

var carrierMultipliers = map[string]float64{
	"USPS":             0.8,
	"FedEx":            1.1,
	"UPS":              1.0,
	"DHL":              1.3,
	"Amazon Logistics": 0.9,
}

var deliveryInstructions = []string{
	"", "Leave at door", "Ring doorbell", "Signature required",
}

// LogisticsRecord is the fulfillment row generated for one order.
type LogisticsRecord struct {
	OrderID              string
	UserID               string
	WarehouseID          string
	WarehouseLocation    string
	WarehouseRegion      string
	ShippingCarrier      string
	PackageType          string
	ShippingCost         float64
	ProcessingDays       int
	TransitDays          int
	TotalDeliveryDays    int
	TrackingNumber       string
	InsuranceCost        float64
	IsExpedited          bool
	DeliveryInstructions string
}

// Document renders the record for warehouse upload.
func (r LogisticsRecord) Document() warehouse.Document {
	return warehouse.Document{
		"order_id":              r.OrderID,
		"user_id":               r.UserID,
		"warehouse_id":          r.WarehouseID,
		"warehouse_location":    r.WarehouseLocation,
		"warehouse_region":      r.WarehouseRegion,
		"shipping_carrier":      r.ShippingCarrier,
		"package_type":          r.PackageType,
		"shipping_cost":         r.ShippingCost,
		"processing_days":       r.ProcessingDays,
		"transit_days":          r.TransitDays,
		"total_delivery_days":   r.TotalDeliveryDays,
		"tracking_number":       r.TrackingNumber,
		"insurance_cost":        r.InsuranceCost,
		"is_expedited":          r.IsExpedited,
		"delivery_instructions": r.DeliveryInstructions,
	}
}

// GenerateLogistics produces one fulfillment record per order. Package type
// follows the item count, shipping cost follows package type and carrier
// with uniform noise.
func GenerateLogistics(orders []Order, rng *rand.Rand) []LogisticsRecord {
	records := make([]LogisticsRecord, 0, len(orders))
	for _, order := range orders {
		origin := fulfillmentWarehouses[rng.Intn(len(fulfillmentWarehouses))]
		carrier := carriers[rng.Intn(len(carriers))]
		packageType := packageTypeFor(order.NumItems, rng)

		cost := packageBaseCosts[packageType] * carrierMultipliers[carrier]
		cost = round2(cost + uniform(rng, -2, 2))
		if cost < 0 {
			cost = 0
		}

		processingDays := randInt(rng, 1, 3)
		transitDays := randInt(rng, 1, 7)

		records = append(records, LogisticsRecord{
			OrderID:              order.ID,
			UserID:               order.UserID,
			WarehouseID:          origin.ID,
			WarehouseLocation:    origin.Location,
			WarehouseRegion:      origin.Region,
			ShippingCarrier:      carrier,
			PackageType:          packageType,
			ShippingCost:         cost,
			ProcessingDays:       processingDays,
			TransitDays:          transitDays,
			TotalDeliveryDays:    processingDays + transitDays,
			TrackingNumber:       trackingNumber(rng),
			InsuranceCost:        round2(uniform(rng, 0, 5)),
			IsExpedited:          chance(rng, 15),
			DeliveryInstructions: deliveryInstructions[rng.Intn(len(deliveryInstructions))],
		})
	}
	return records
}

func packageTypeFor(numItems int, rng *rand.Rand) string {
	switch {
	case numItems <= 1:
		return []string{"envelope", "small_box"}[rng.Intn(2)]
	case numItems <= 3:
		return []string{"small_box", "medium_box"}[rng.Intn(2)]
	case numItems <= 6:
		return []string{"medium_box", "large_box"}[rng.Intn(2)]
	default:
		return "oversized"
	}
}

// trackingNumber follows the "##??########" carrier format: two digits,
// two uppercase letters, eight digits.
func trackingNumber(rng *rand.Rand) string {
	const digits = "0123456789"
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	buf := make([]byte, 12)
	for i := 0; i < 2; i++ {
		buf[i] = digits[rng.Intn(len(digits))]
	}
	for i := 2; i < 4; i++ {
		buf[i] = letters[rng.Intn(len(letters))]
	}
	for i := 4; i < 12; i++ {
		buf[i] = digits[rng.Intn(len(digits))]
	}
	return string(buf)
}
