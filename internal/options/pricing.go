package options

import (
	"math"
	"time"

	"github.com/lifestock/lifestock-api/internal/types"
)

const (
	// TimeValueFactor scales the linear time-decay component of the premium.
	TimeValueFactor = 0.1
	// MinimumPremium is the price floor applied to every quote.
	MinimumPremium = 1.0

	hoursPerDay = 24.0
)

// Premium quotes an option at time now: intrinsic value plus a linearly
// decaying time value, floored at MinimumPremium.
//
// Intrinsic is max(0, S-K) for calls and max(0, K-S) for puts. Time value is
// TimeValueFactor x S x daysToExpiry/totalContractDays, with total contract
// days floored at one day and days to expiry floored at zero so the quote is
// defined for expired or same-day contracts.
func Premium(underlying, strike float64, optionType string, createdAt, expiry, now time.Time) float64 {
	var intrinsic float64
	switch optionType {
	case types.OptionTypeCE:
		intrinsic = math.Max(0, underlying-strike)
	case types.OptionTypePE:
		intrinsic = math.Max(0, strike-underlying)
	}

	totalDays := expiry.Sub(createdAt).Hours() / hoursPerDay
	if totalDays < 1 {
		totalDays = 1
	}
	daysLeft := expiry.Sub(now).Hours() / hoursPerDay
	if daysLeft < 0 {
		daysLeft = 0
	}
	if daysLeft > totalDays {
		daysLeft = totalDays
	}

	timeValue := TimeValueFactor * underlying * (daysLeft / totalDays)

	return math.Max(MinimumPremium, intrinsic+timeValue)
}

// Payoff is the per-unit settlement value of a contract at the given
// underlying: max(0, S-K) for calls, max(0, K-S) for puts.
func Payoff(underlying, strike float64, optionType string) float64 {
	if optionType == types.OptionTypeCE {
		return math.Max(0, underlying-strike)
	}
	return math.Max(0, strike-underlying)
}
