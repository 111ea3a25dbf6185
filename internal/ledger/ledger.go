// Package ledger holds the weighted-average position arithmetic shared by the
// equity and option ledgers.
package ledger

import "github.com/lifestock/lifestock-api/internal/types"

// Brokerage fee parameters (defaults; overridable via config).
const (
	DefaultBrokerageFloor = 20.0
	DefaultBrokerageRate  = 0.0003
)

// Position is a quantity held at a running weighted-average unit cost. The
// same math applies whether the unit cost is an equity price or an option
// premium.
type Position struct {
	Quantity float64
	AvgCost  float64
}

// Brokerage returns max(floor, amount x rate). Applied to both buy and sell
// legs of equity trades.
func Brokerage(amount, floor, rate float64) float64 {
	fee := amount * rate
	if fee < floor {
		return floor
	}
	return fee
}

// ApplyBuy folds a new lot into the position: the quantity grows and the
// average cost becomes the quantity-weighted mean of the old lot and the new.
func ApplyBuy(p Position, quantity, unitCost float64) Position {
	newQty := p.Quantity + quantity
	newAvg := (p.Quantity*p.AvgCost + quantity*unitCost) / newQty
	return Position{Quantity: newQty, AvgCost: newAvg}
}

// ApplySell reduces the position. Sold units are costed at the existing
// average, so the remaining lot keeps its pre-sale average; realized P&L is
// implicit. Returns ErrInsufficientHolding when quantity exceeds the held
// amount. A fully closed position comes back with Quantity == 0 and the
// caller deletes the row.
func ApplySell(p Position, quantity float64) (Position, error) {
	if quantity > p.Quantity {
		return p, types.ErrInsufficientHolding
	}
	remaining := p.Quantity - quantity
	if remaining == 0 {
		return Position{}, nil
	}
	return Position{Quantity: remaining, AvgCost: p.AvgCost}, nil
}

// ValidateOrder rejects non-positive quantity or unit cost.
func ValidateOrder(quantity, unitCost float64) error {
	if quantity <= 0 {
		return types.NewValidationError("quantity", "must be greater than zero")
	}
	if unitCost <= 0 {
		return types.NewValidationError("price", "must be greater than zero")
	}
	return nil
}
