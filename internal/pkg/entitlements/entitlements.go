package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPremiumMax Plan = "premium_max"
)

// NormalizePlan maps arbitrary input to a known plan, defaulting to free.
func NormalizePlan(raw string) Plan {
	switch p := Plan(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlanPremium, PlanPremiumMax:
		return p
	default:
		return PlanFree
	}
}

// MaxAlerts returns how many alerts a user on the given plan may hold
func MaxAlerts(plan Plan) int {
	switch plan {
	case PlanPremiumMax:
		return 100
	case PlanPremium:
		return 20
	default:
		return 1
	}
}

// CanAddAlert reports whether a user with count existing alerts may add one more.
func CanAddAlert(count int64, plan string) bool {
	return count < int64(MaxAlerts(NormalizePlan(plan)))
}
