package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lifestock/lifestock-api/internal/types"
)

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
	}{
		{name: "monday", in: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		{name: "midweek", in: time.Date(2025, 6, 4, 15, 30, 0, 0, time.UTC)},
		{name: "sunday maps to the same week", in: time.Date(2025, 6, 8, 23, 0, 0, 0, time.UTC)},
	}

	wantMonday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	wantSunday := time.Date(2025, 6, 8, 23, 59, 59, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monday, sunday := WeekBounds(tt.in)
			assert.Equal(t, wantMonday, monday)
			assert.Equal(t, wantSunday, sunday)
		})
	}
}

func TestLadderStrikes(t *testing.T) {
	assert.Equal(t, []float64{9600, 9700, 9800, 9900, 10000}, LadderStrikes(9800))

	// Rounding to the nearest hundred, both directions.
	assert.Equal(t, []float64{9600, 9700, 9800, 9900, 10000}, LadderStrikes(9849))
	assert.Equal(t, []float64{9700, 9800, 9900, 10000, 10100}, LadderStrikes(9851))
}

func TestGenerateLadder(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	contracts := GenerateLadder(9800, now)

	assert.Len(t, contracts, 10)

	monday, sunday := WeekBounds(now)
	calls, puts := 0, 0
	strikes := make(map[float64]bool)
	for _, contract := range contracts {
		assert.Equal(t, monday, contract.CreatedAt)
		assert.Equal(t, sunday, contract.ExpiryDate)
		assert.Equal(t, 9800.0, contract.UnderlyingAtCreation)
		assert.NotEmpty(t, contract.ContractID)
		strikes[contract.StrikePrice] = true
		switch contract.OptionType {
		case types.OptionTypeCE:
			calls++
		case types.OptionTypePE:
			puts++
		}
	}

	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, puts)
	assert.Len(t, strikes, 5)
}
