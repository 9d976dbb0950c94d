package synth

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/flit-data/flitpipe/internal/warehouse"
)

var issueCategories = []string{
	"shipping_delay", "product_defect", "return_request",
	"billing_question", "account_issue", "general_inquiry",
}
var issueWeights = []float64{0.25, 0.20, 0.18, 0.15, 0.12, 0.10}

var priorityOptions = []string{"low", "medium", "high"}
var priorityWeights = []float64{0.50, 0.35, 0.15}

var statusOptions = []string{"resolved", "closed", "in_progress", "open"}
var statusWeights = []float64{0.70, 0.20, 0.08, 0.02}

var supportAgents = []string{
	"Sarah Johnson", "Mike Chen", "Lisa Rodriguez",
	"David Kim", "Emma Thompson", "Alex Martinez",
}

var contactChannels = []string{"email", "live_chat", "phone", "contact_form"}
var contactChannelWeights = []float64{0.45, 0.30, 0.15, 0.10}

var resolutionBaseHours = map[string]float64{
	"shipping_delay":   12,
	"product_defect":   24,
	"return_request":   8,
	"billing_question": 6,
	"account_issue":    4,
	"general_inquiry":  2,
}

var priorityResolutionMultipliers = map[string]float64{
	"high":   0.5,
	"medium": 1.0,
	"low":    1.5,
}

var channelResponseMinutes = map[string]float64{
	"live_chat":    5,
	"phone":        2,
	"email":        120,
	"contact_form": 180,
}

var priorityResponseAdjustments = map[string]float64{
	"high":   0.3,
	"medium": 1.0,
	"low":    2.0,
}

var ticketDescriptions = map[string][]string{
	"shipping_delay": {
		"My order was supposed to arrive 3 days ago but tracking shows it's still in transit",
		"Package has been stuck at shipping facility for over a week",
		"Expected delivery date has passed, need update on my order status",
		"Tracking information hasn't updated in 5 days, is my package lost?",
	},
	"product_defect": {
		"Received item with manufacturing defect, requesting replacement",
		"Product arrived damaged in packaging, multiple scratches visible",
		"Item doesn't match description on website, wrong specifications",
		"Quality issue with product, stopped working after 2 days of use",
	},
	"return_request": {
		"Would like to return item, doesn't fit as expected",
		"Product not suitable for my needs, requesting return authorization",
		"Received wrong size, need to exchange for correct size",
		"Item doesn't meet expectations, would like full refund",
	},
	"billing_question": {
		"Charged twice for the same order, need refund for duplicate charge",
		"Discount code didn't apply at checkout, can you adjust my bill?",
		"Subscription billing question, unexpected charge on my account",
		"Payment method was charged but order shows as pending",
	},
	"account_issue": {
		"Cannot log into my account, password reset not working",
		"Account was suspended, need help reactivating",
		"Email preferences not saving, still receiving unwanted newsletters",
		"Unable to update shipping address in account settings",
	},
	"general_inquiry": {
		"Question about product compatibility with other items",
		"When will this item be back in stock?",
		"Do you ship to my location? Need shipping information",
		"Looking for product recommendations for my specific needs",
	},
}

// Ticket is one customer support interaction.
type Ticket struct {
	ID                       string
	UserID                   string
	CreatedDate              time.Time
	IssueCategory            string
	Priority                 string
	Status                   string
	AssignedAgent            string
	ContactChannel           string
	Description              string
	ResolutionTimeHours      *float64
	SatisfactionScore        int
	IsEscalated              bool
	FollowUpRequired         bool
	ResolvedDate             *time.Time
	FirstResponseTimeMinutes int
}

// Document renders the ticket for warehouse upload.
func (t Ticket) Document() warehouse.Document {
	doc := warehouse.Document{
		"ticket_id":                   t.ID,
		"user_id":                     t.UserID,
		"created_date":                t.CreatedDate.Format("2006-01-02"),
		"issue_category":              t.IssueCategory,
		"priority":                    t.Priority,
		"status":                      t.Status,
		"assigned_agent":              t.AssignedAgent,
		"contact_channel":             t.ContactChannel,
		"ticket_description":          t.Description,
		"satisfaction_score":          t.SatisfactionScore,
		"is_escalated":                t.IsEscalated,
		"follow_up_required":          t.FollowUpRequired,
		"first_response_time_minutes": t.FirstResponseTimeMinutes,
	}
	if t.ResolutionTimeHours != nil {
		doc["resolution_time_hours"] = *t.ResolutionTimeHours
	}
	if t.ResolvedDate != nil {
		doc["resolved_date"] = t.ResolvedDate.Format("2006-01-02")
	}
	return doc
}

// GenerateTickets produces support tickets for roughly a quarter of the
// user base. Ticket counts, categories, priorities and outcomes follow the
// observed support distributions, with priority conditioned on category and
// satisfaction conditioned on status.
func GenerateTickets(users []User, now time.Time, rng *rand.Rand) []Ticket {
	var tickets []Ticket
	for _, user := range users {
		if rng.Float64() >= 0.25 {
			continue
		}

		numTickets := weightedChoice(rng, []int{1, 2, 3, 4}, []float64{0.5, 0.3, 0.15, 0.05})
		for i := 0; i < numTickets; i++ {
			tickets = append(tickets, generateTicket(user, now, rng))
		}
	}
	return tickets
}

func generateTicket(user User, now time.Time, rng *rand.Rand) Ticket {
	createdDate := dateBetween(rng, user.RegistrationDate, now)
	category := weightedChoice(rng, issueCategories, issueWeights)

	// Shipping delays and defects skew toward higher priority.
	var priority string
	switch category {
	case "shipping_delay":
		priority = weightedChoice(rng, []string{"medium", "high"}, []float64{0.6, 0.4})
	case "product_defect":
		priority = weightedChoice(rng, []string{"medium", "high"}, []float64{0.5, 0.5})
	default:
		priority = weightedChoice(rng, priorityOptions, priorityWeights)
	}

	status := weightedChoice(rng, statusOptions, statusWeights)
	resolutionHours := resolutionTime(category, priority, status, rng)

	var satisfaction int
	switch status {
	case "resolved", "closed":
		satisfaction = weightedChoice(rng, []int{3, 4, 5}, []float64{0.2, 0.5, 0.3})
	case "in_progress":
		satisfaction = weightedChoice(rng, []int{2, 3, 4}, []float64{0.3, 0.5, 0.2})
	default:
		satisfaction = weightedChoice(rng, []int{1, 2, 3}, []float64{0.4, 0.4, 0.2})
	}

	channel := weightedChoice(rng, contactChannels, contactChannelWeights)
	descriptions := ticketDescriptions[category]

	return Ticket{
		ID:                       fmt.Sprintf("TICK_%d", randInt(rng, 100000, 999999)),
		UserID:                   user.ID,
		CreatedDate:              createdDate,
		IssueCategory:            category,
		Priority:                 priority,
		Status:                   status,
		AssignedAgent:            supportAgents[rng.Intn(len(supportAgents))],
		ContactChannel:           channel,
		Description:              descriptions[rng.Intn(len(descriptions))],
		ResolutionTimeHours:      resolutionHours,
		SatisfactionScore:        satisfaction,
		IsEscalated:              chance(rng, 15),
		FollowUpRequired:         chance(rng, 25),
		ResolvedDate:             resolvedDate(createdDate, resolutionHours, status),
		FirstResponseTimeMinutes: firstResponseTime(priority, channel, rng),
	}
}

// resolutionTime returns nil for tickets that are still open.
func resolutionTime(category, priority, status string, rng *rand.Rand) *float64 {
	if status == "open" || status == "in_progress" {
		return nil
	}
	hours := resolutionBaseHours[category] * priorityResolutionMultipliers[priority] * uniform(rng, 0.7, 1.3)
	hours = math.Round(hours*10) / 10
	return &hours
}

func resolvedDate(created time.Time, resolutionHours *float64, status string) *time.Time {
	if status == "open" || status == "in_progress" || resolutionHours == nil {
		return nil
	}
	resolved := created.Add(time.Duration(*resolutionHours * float64(time.Hour)))
	return &resolved
}

func firstResponseTime(priority, channel string, rng *rand.Rand) int {
	minutes := channelResponseMinutes[channel] * priorityResponseAdjustments[priority] * uniform(rng, 0.5, 1.5)
	rounded := int(math.Round(minutes))
	if rounded < 1 {
		return 1
	}
	return rounded
}

func dateBetween(rng *rand.Rand, start, end time.Time) time.Time {
	days := int(end.Sub(start).Hours() / 24)
	if days <= 0 {
		return start
	}
	return start.AddDate(0, 0, rng.Intn(days+1))
}
