package types

import "time"

// TradeResponse is returned by the equity buy and sell endpoints.
type TradeResponse struct {
	TransactionID string    `json:"transaction_id"`
	StockID       string    `json:"stock_id"`
	Type          string    `json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	BrokerageFee  float64   `json:"brokerage_fee"`
	CashBalance   float64   `json:"cash_balance"`
	Holding       *Holding  `json:"holding,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// OptionTradeResponse is returned by the option buy, write and exit
// endpoints.
type OptionTradeResponse struct {
	TransactionID  string         `json:"transaction_id"`
	ContractID     string         `json:"contract_id"`
	Action         string         `json:"action"`
	PositionType   string         `json:"position_type"`
	Quantity       float64        `json:"quantity"`
	PremiumPerUnit float64        `json:"premium_per_unit"`
	CashDelta      float64        `json:"cash_delta"`
	CashBalance    float64        `json:"cash_balance"`
	Holding        *OptionHolding `json:"holding,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ChainStrike is one rung of the option chain response: both contract types
// at a strike, priced at the current index value.
type ChainStrike struct {
	StrikePrice float64         `json:"strike_price"`
	Call        *QuotedContract `json:"call"`
	Put         *QuotedContract `json:"put"`
}

// QuotedContract pairs a persisted contract with its current premium.
type QuotedContract struct {
	ContractID string    `json:"contract_id"`
	OptionType string    `json:"option_type"`
	ExpiryDate time.Time `json:"expiry_date"`
	Premium    float64   `json:"premium"`
}

// ChainResponse is the weekly ladder quoted against the current index.
type ChainResponse struct {
	IndexValue float64       `json:"index_value"`
	ExpiryDate time.Time     `json:"expiry_date"`
	Strikes    []ChainStrike `json:"strikes"`
}

// PortfolioResponse aggregates cash, equity holdings and open option
// positions for a user.
type PortfolioResponse struct {
	CashBalance     float64         `json:"cash_balance"`
	IndexValue      float64         `json:"index_value"`
	Holdings        []HoldingView   `json:"holdings"`
	OptionPositions []OptionHolding `json:"option_positions"`
	TotalValue      float64         `json:"total_value"`
}

// HoldingView is an equity holding enriched with its current market value.
type HoldingView struct {
	Holding
	StockName    string  `json:"stock_name"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
}

// SettlementSweepResponse summarizes one expiry settlement run.
type SettlementSweepResponse struct {
	ContractsExpired int       `json:"contracts_expired"`
	HoldingsSettled  int       `json:"holdings_settled"`
	TotalCashCredit  float64   `json:"total_cash_credit"`
	Timestamp        time.Time `json:"timestamp"`
}
