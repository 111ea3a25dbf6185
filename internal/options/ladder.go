package options

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lifestock/lifestock-api/internal/types"
)

const (
	ladderStrikeStep  = 100.0
	ladderStrikeSpan  = 2 // strikes either side of the base
	ladderStrikeCount = 2*ladderStrikeSpan + 1
)

// WeekBounds returns the Monday 00:00:00 and Sunday 23:59:59 of the calendar
// week containing t, in t's location. Weeks start on Monday.
func WeekBounds(t time.Time) (monday, sunday time.Time) {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started 6 days earlier
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	monday = midnight.AddDate(0, 0, -(weekday - 1))
	sunday = monday.AddDate(0, 0, 6).Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	return monday, sunday
}

// LadderStrikes rounds the underlying to the nearest 100 and returns five
// strikes centered on it, 100 apart.
func LadderStrikes(underlying float64) []float64 {
	base := math.Round(underlying/ladderStrikeStep) * ladderStrikeStep
	strikes := make([]float64, 0, ladderStrikeCount)
	for i := -ladderStrikeSpan; i <= ladderStrikeSpan; i++ {
		strikes = append(strikes, base+float64(i)*ladderStrikeStep)
	}
	return strikes
}

// GenerateLadder builds the ten weekly contracts (5 strikes x CE/PE) for the
// week containing t, stamped with the underlying value at generation time.
// The caller persists them idempotently on (strike, expiry, type).
func GenerateLadder(underlying float64, t time.Time) []types.OptionContract {
	monday, sunday := WeekBounds(t)

	contracts := make([]types.OptionContract, 0, 2*ladderStrikeCount)
	for _, strike := range LadderStrikes(underlying) {
		for _, optionType := range []string{types.OptionTypeCE, types.OptionTypePE} {
			contracts = append(contracts, types.OptionContract{
				ContractID:           "OPT_" + uuid.New().String(),
				StrikePrice:          strike,
				ExpiryDate:           sunday,
				OptionType:           optionType,
				UnderlyingAtCreation: underlying,
				CreatedAt:            monday,
			})
		}
	}
	return contracts
}
