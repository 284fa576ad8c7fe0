package subscription

import (
	"strings"
	"time"
)

// Subscription mirrors the Stripe subscription for a user. Billing
// webhooks keep it current; tool grants sourced from a plan are written
// alongside status transitions.
type Subscription struct {
	ID                   string    `json:"id" db:"id"`
	UserID               string    `json:"userId" db:"user_id"`
	StripeCustomerID     string    `json:"stripeCustomerId" db:"stripe_customer_id"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId" db:"stripe_subscription_id"`
	StripePriceID        string    `json:"stripePriceId" db:"stripe_price_id"`
	Status               string    `json:"status" db:"status"`
	CurrentPeriodEnd     time.Time `json:"currentPeriodEnd" db:"current_period_end"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`
}

// Active reports whether the subscription currently confers its plan
// benefits. Stripe keeps past_due subscriptions usable until the
// retry window closes, so both count.
func (s *Subscription) Active() bool {
	return s.Status == "active" || s.Status == "trialing" || s.Status == "past_due"
}

// PlanTools maps a Stripe price to the tool IDs its plan includes.
// Configured via PLAN_TOOLS ("price_x:tool_a,tool_b;price_y:tool_c")
// and parsed at startup.
type PlanTools map[string][]string

// ParsePlanTools parses the PLAN_TOOLS environment value. Malformed
// segments are skipped rather than failing startup.
func ParsePlanTools(raw string) PlanTools {
	plans := make(PlanTools)
	for _, segment := range strings.Split(raw, ";") {
		priceID, toolList, ok := strings.Cut(strings.TrimSpace(segment), ":")
		if !ok || priceID == "" {
			continue
		}
		var tools []string
		for _, tool := range strings.Split(toolList, ",") {
			if tool = strings.TrimSpace(tool); tool != "" {
				tools = append(tools, tool)
			}
		}
		if len(tools) > 0 {
			plans[priceID] = tools
		}
	}
	return plans
}
