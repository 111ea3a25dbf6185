package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifestock/lifestock-api/internal/types"
)

func TestBrokerage(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   float64
	}{
		{name: "small trade hits the floor", amount: 1000, want: 20},
		{name: "floor boundary", amount: 20/0.0003 - 1, want: 20},
		{name: "large trade pays the rate", amount: 1_000_000, want: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Brokerage(tt.amount, DefaultBrokerageFloor, DefaultBrokerageRate), 1e-9)
		})
	}
}

func TestApplyBuy(t *testing.T) {
	pos := ApplyBuy(Position{}, 10, 100)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgCost)

	// 10 @ 100 + 10 @ 200 averages to 150
	pos = ApplyBuy(pos, 10, 200)
	assert.Equal(t, 20.0, pos.Quantity)
	assert.InDelta(t, 150.0, pos.AvgCost, 1e-9)

	// uneven lots use the quantity-weighted mean
	pos = ApplyBuy(Position{Quantity: 3, AvgCost: 90}, 1, 130)
	assert.InDelta(t, 100.0, pos.AvgCost, 1e-9)
}

func TestApplySell(t *testing.T) {
	pos := Position{Quantity: 10, AvgCost: 100}

	remaining, err := ApplySell(pos, 4)
	assert.NoError(t, err)
	assert.Equal(t, 6.0, remaining.Quantity)
	assert.Equal(t, 100.0, remaining.AvgCost, "selling must not move the average")

	closed, err := ApplySell(remaining, 6)
	assert.NoError(t, err)
	assert.Zero(t, closed.Quantity)

	_, err = ApplySell(remaining, 7)
	assert.ErrorIs(t, err, types.ErrInsufficientHolding)
}

func TestValidateOrder(t *testing.T) {
	assert.NoError(t, ValidateOrder(1, 100))
	assert.Error(t, ValidateOrder(0, 100))
	assert.Error(t, ValidateOrder(-1, 100))
	assert.Error(t, ValidateOrder(1, 0))
	assert.True(t, types.IsValidation(ValidateOrder(0, 100)))
}
