package types

import (
	"time"

	"gorm.io/gorm"
)

// Option contract types
const (
	OptionTypeCE = "CE" // call-equivalent
	OptionTypePE = "PE" // put-equivalent
)

// Option position types
const (
	PositionLongCE  = "long_ce"
	PositionLongPE  = "long_pe"
	PositionShortCE = "short_ce"
	PositionShortPE = "short_pe"
)

// Equity transaction types
const (
	TransactionBuy     = "BUY"
	TransactionSell    = "SELL"
	TransactionDeposit = "DEPOSIT"
)

// Option transaction actions
const (
	OptionActionBuy    = "BUY"
	OptionActionWrite  = "WRITE"
	OptionActionExit   = "EXIT"
	OptionActionSettle = "SETTLE"
)

// CashAccount holds the single cash balance for a user. It is created lazily
// with the configured starting balance on first access.
type CashAccount struct {
	gorm.Model `json:"-"`
	UserID     string    `gorm:"uniqueIndex" json:"user_id"`
	Balance    float64   `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LifeStock is a user-defined life category whose score behaves like an
// equity price. Score is kept in the 0-100 range; the traded per-unit price
// is Score x 100.
type LifeStock struct {
	gorm.Model `json:"-"`
	StockID    string    `gorm:"uniqueIndex" json:"stock_id"`
	UserID     string    `gorm:"index" json:"user_id"`
	Name       string    `json:"name"`
	Weight     float64   `json:"weight"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IndexSnapshot records the weighted index value at a point in time. Expiry
// settlement uses the latest snapshot at or before the contract expiry.
type IndexSnapshot struct {
	gorm.Model `json:"-"`
	UserID     string    `gorm:"index" json:"user_id"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

// Holding is an equity position: quantity held and the running weighted
// average buy price. The row is deleted when quantity reaches zero.
type Holding struct {
	gorm.Model  `json:"-"`
	UserID      string    `gorm:"index:idx_holdings_user_stock,unique" json:"user_id"`
	StockID     string    `gorm:"index:idx_holdings_user_stock,unique" json:"stock_id"`
	Quantity    float64   `json:"quantity"`
	AvgBuyPrice float64   `json:"avg_buy_price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transaction is the append-only equity trade log.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string    `gorm:"uniqueIndex" json:"transaction_id"`
	UserID        string    `gorm:"index" json:"user_id"`
	StockID       string    `json:"stock_id,omitempty"`
	Type          string    `json:"type"` // BUY, SELL or DEPOSIT
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	BrokerageFee  float64   `json:"brokerage_fee"`
	CreatedAt     time.Time `json:"created_at"`
}

// OptionContract is one strike of the weekly ladder. Immutable after
// creation; unique on (strike, expiry, type).
type OptionContract struct {
	gorm.Model           `json:"-"`
	ContractID           string    `gorm:"uniqueIndex" json:"contract_id"`
	StrikePrice          float64   `gorm:"index:idx_contracts_ladder,unique" json:"strike_price"`
	ExpiryDate           time.Time `gorm:"index:idx_contracts_ladder,unique" json:"expiry_date"`
	OptionType           string    `gorm:"index:idx_contracts_ladder,unique" json:"option_type"` // CE or PE
	UnderlyingAtCreation float64   `json:"underlying_at_creation"`
	CreatedAt            time.Time `json:"created_at"`
}

// OptionHolding is an open option position keyed by user, contract and
// position type, with the running weighted average premium. Short positions
// imply reserved collateral of strike x quantity.
type OptionHolding struct {
	gorm.Model   `json:"-"`
	UserID       string    `gorm:"index:idx_option_holdings_pos,unique" json:"user_id"`
	ContractID   string    `gorm:"index:idx_option_holdings_pos,unique" json:"contract_id"`
	PositionType string    `gorm:"index:idx_option_holdings_pos,unique" json:"position_type"`
	Quantity     float64   `json:"quantity"`
	AvgPremium   float64   `json:"avg_premium"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OptionTransaction is the append-only option trade log. CashDelta is the
// signed net cash effect of the action, PremiumPerUnit the realized premium
// at the time the action executed.
type OptionTransaction struct {
	gorm.Model     `json:"-"`
	TransactionID  string    `gorm:"uniqueIndex" json:"transaction_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	ContractID     string    `json:"contract_id"`
	Action         string    `json:"action"` // BUY, WRITE, EXIT or SETTLE
	PositionType   string    `json:"position_type"`
	Quantity       float64   `json:"quantity"`
	PremiumPerUnit float64   `json:"premium_per_unit"`
	CashDelta      float64   `json:"cash_delta"`
	CreatedAt      time.Time `json:"created_at"`
}

// OptionSettlement is the audit record written when an expired holding is
// settled and closed.
type OptionSettlement struct {
	gorm.Model   `json:"-"`
	SettlementID string    `gorm:"uniqueIndex" json:"settlement_id"`
	UserID       string    `gorm:"index" json:"user_id"`
	ContractID   string    `json:"contract_id"`
	PositionType string    `json:"position_type"`
	Quantity     float64   `json:"quantity"`
	SettleValue  float64   `json:"settle_value"`
	Payoff       float64   `json:"payoff"`
	CashCredit   float64   `json:"cash_credit"`
	CreatedAt    time.Time `json:"created_at"`
}

// IdempotencyRecord maps an Idempotency-Key header to the resource it
// produced so replayed requests return the original result.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SchemaMigration tracks which ordered migration steps have been applied.
type SchemaMigration struct {
	Version   int    `gorm:"primaryKey"`
	Name      string `json:"name"`
	AppliedAt time.Time
}
