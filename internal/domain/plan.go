package domain

import "strings"

// Plan identifies a pricing tier.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPlus  Plan = "plus"
	PlanPro   Plan = "pro"
	// PlanTest exists purely to exercise the billing loop on the 1-minute
	// test cycle.
	PlanTest Plan = "test"
)

// planPrices maps plan and cycle to the charge amount in KRW. Amounts are
// integral won; the gateway does not accept fractional amounts.
var planPrices = map[Plan]map[BillingCycle]int64{
	PlanBasic: {CycleMonthly: 9_900, CycleYearly: 99_000},
	PlanPlus:  {CycleMonthly: 19_900, CycleYearly: 199_000},
	PlanPro:   {CycleMonthly: 49_900, CycleYearly: 499_000},
	PlanTest:  {CycleTest: 1_000},
}

// planUsageLimits holds the monthly AI-call quota per plan.
var planUsageLimits = map[Plan]int{
	PlanFree:  5,
	PlanBasic: 100,
	PlanPlus:  330,
	PlanPro:   2_200,
	PlanTest:  330,
}

// planAliases normalizes legacy plan names still present in older account
// documents.
var planAliases = map[string]Plan{
	"free":     PlanFree,
	"basic":    PlanBasic,
	"standard": PlanPlus,
	"plus":     PlanPlus,
	"pro":      PlanPro,
	"ultra":    PlanPro,
	"test":     PlanTest,
}

// ParsePlan normalizes a stored plan value, falling back to PlanFree for
// anything unrecognized.
func ParsePlan(value string) Plan {
	if p, ok := planAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return p
	}
	return PlanFree
}

// Title returns the customer-facing plan name used on receipts.
func (p Plan) Title() string {
	switch p {
	case PlanBasic:
		return "Basic"
	case PlanPlus:
		return "Plus"
	case PlanPro:
		return "Pro"
	case PlanTest:
		return "Test"
	default:
		return "Free"
	}
}

// Price returns the charge amount for the plan on the given cycle.
func (p Plan) Price(cycle BillingCycle) (int64, bool) {
	cycles, ok := planPrices[p]
	if !ok {
		return 0, false
	}
	amount, ok := cycles[cycle]
	return amount, ok
}

// UsageLimit returns the monthly usage quota for the plan.
func (p Plan) UsageLimit() int {
	if limit, ok := planUsageLimits[p]; ok {
		return limit
	}
	return planUsageLimits[PlanFree]
}

// PlanForAmount derives the plan and billing cycle from a charged amount.
// The checkout confirm path relies on this mapping being injective: every
// price in the catalog identifies exactly one (plan, cycle) pair.
func PlanForAmount(amount int64) (Plan, BillingCycle, bool) {
	for plan, cycles := range planPrices {
		for cycle, price := range cycles {
			if price == amount {
				return plan, cycle, true
			}
		}
	}
	return "", "", false
}
