package trading

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lifestock/lifestock-api/internal/auth"
	"github.com/lifestock/lifestock-api/internal/ledger"
	"github.com/lifestock/lifestock-api/internal/types"
	"github.com/lifestock/lifestock-api/pkg/response"
)

// Accounts provides lazy cash account creation. Implemented by the portfolio
// service.
type Accounts interface {
	EnsureCashAccount(userID string) (*types.CashAccount, error)
}

// Service handles the equity ledger: buys, sells and deposits against the
// user's cash account.
type Service struct {
	db             *Database
	accounts       Accounts
	brokerageFloor float64
	brokerageRate  float64
}

// NewService creates an equity trading service with the given database
// connection and brokerage schedule.
func NewService(gormDB *gorm.DB, accounts Accounts, brokerageFloor, brokerageRate float64) *Service {
	return &Service{
		db:             NewDatabase(gormDB),
		accounts:       accounts,
		brokerageFloor: brokerageFloor,
		brokerageRate:  brokerageRate,
	}
}

// Buy purchases quantity units of a life stock at the given price. The cash
// account is debited cost plus brokerage and the holding's weighted average
// is recomputed; all writes commit atomically. Replays under the same
// idempotency key return the original trade.
func (s *Service) Buy(userID, stockID string, quantity, price float64, idempotencyKey string) (*types.TradeResponse, error) {
	if replay, err := s.replayTrade(userID, idempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	if err := ledger.ValidateOrder(quantity, price); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("user_id", userID).
		Str("stock_id", stockID).
		Str("service", "trading").
		Logger()

	stock, err := s.db.GetStock(userID, stockID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock: %w", err)
	}
	if stock == nil {
		return nil, types.ErrNotFound
	}

	account, err := s.accounts.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}

	cost := quantity * price
	fee := ledger.Brokerage(cost, s.brokerageFloor, s.brokerageRate)
	total := cost + fee
	if total > account.Balance {
		logger.Warn().
			Float64("total", total).
			Float64("balance", account.Balance).
			Msg("buy rejected, insufficient funds")
		return nil, types.ErrInsufficientFunds
	}

	holding, err := s.db.GetHolding(userID, stockID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holding: %w", err)
	}
	if holding == nil {
		holding = &types.Holding{
			UserID:      userID,
			StockID:     stockID,
			Quantity:    quantity,
			AvgBuyPrice: price,
			CreatedAt:   time.Now(),
		}
	} else {
		pos := ledger.ApplyBuy(
			ledger.Position{Quantity: holding.Quantity, AvgCost: holding.AvgBuyPrice},
			quantity, price,
		)
		holding.Quantity = pos.Quantity
		holding.AvgBuyPrice = pos.AvgCost
	}
	holding.UpdatedAt = time.Now()

	account.Balance -= total
	account.UpdatedAt = time.Now()

	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		StockID:       stockID,
		Type:          types.TransactionBuy,
		Quantity:      quantity,
		Price:         price,
		BrokerageFee:  fee,
		CreatedAt:     time.Now(),
	}

	if err := s.db.SaveTrade(account, holding, false, txn, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to save buy: %w", err)
	}

	logger.Info().
		Str("transaction_id", txn.TransactionID).
		Float64("quantity", quantity).
		Float64("price", price).
		Float64("brokerage_fee", fee).
		Float64("cash_balance", account.Balance).
		Msg("buy executed")

	return &types.TradeResponse{
		TransactionID: txn.TransactionID,
		StockID:       stockID,
		Type:          txn.Type,
		Quantity:      quantity,
		Price:         price,
		BrokerageFee:  fee,
		CashBalance:   account.Balance,
		Holding:       holding,
		Timestamp:     txn.CreatedAt,
	}, nil
}

// Sell disposes quantity units at the given price. Proceeds net of brokerage
// are credited; the remaining position keeps its pre-sale average cost, and
// the holding row is removed when fully closed.
func (s *Service) Sell(userID, stockID string, quantity, price float64, idempotencyKey string) (*types.TradeResponse, error) {
	if replay, err := s.replayTrade(userID, idempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	if err := ledger.ValidateOrder(quantity, price); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("user_id", userID).
		Str("stock_id", stockID).
		Str("service", "trading").
		Logger()

	holding, err := s.db.GetHolding(userID, stockID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holding: %w", err)
	}
	if holding == nil {
		return nil, types.ErrInsufficientHolding
	}

	pos, err := ledger.ApplySell(
		ledger.Position{Quantity: holding.Quantity, AvgCost: holding.AvgBuyPrice},
		quantity,
	)
	if err != nil {
		logger.Warn().
			Float64("quantity", quantity).
			Float64("held", holding.Quantity).
			Msg("sell rejected, insufficient holding")
		return nil, err
	}

	account, err := s.accounts.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}

	proceeds := quantity * price
	fee := ledger.Brokerage(proceeds, s.brokerageFloor, s.brokerageRate)
	net := proceeds - fee

	account.Balance += net
	account.UpdatedAt = time.Now()

	removeHolding := pos.Quantity == 0
	holding.Quantity = pos.Quantity
	if !removeHolding {
		holding.AvgBuyPrice = pos.AvgCost
	}
	holding.UpdatedAt = time.Now()

	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		StockID:       stockID,
		Type:          types.TransactionSell,
		Quantity:      quantity,
		Price:         price,
		BrokerageFee:  fee,
		CreatedAt:     time.Now(),
	}

	if err := s.db.SaveTrade(account, holding, removeHolding, txn, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to save sell: %w", err)
	}

	logger.Info().
		Str("transaction_id", txn.TransactionID).
		Float64("quantity", quantity).
		Float64("price", price).
		Float64("net_proceeds", net).
		Float64("cash_balance", account.Balance).
		Bool("position_closed", removeHolding).
		Msg("sell executed")

	resp := &types.TradeResponse{
		TransactionID: txn.TransactionID,
		StockID:       stockID,
		Type:          txn.Type,
		Quantity:      quantity,
		Price:         price,
		BrokerageFee:  fee,
		CashBalance:   account.Balance,
		Timestamp:     txn.CreatedAt,
	}
	if !removeHolding {
		resp.Holding = holding
	}
	return resp, nil
}

// AddFunds credits the cash account and logs a DEPOSIT transaction for the
// audit trail.
func (s *Service) AddFunds(userID string, amount float64, idempotencyKey string) (*types.TradeResponse, error) {
	if replay, err := s.replayTrade(userID, idempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	if amount <= 0 {
		return nil, types.NewValidationError("amount", "must be greater than zero")
	}

	account, err := s.accounts.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}

	account.Balance += amount
	account.UpdatedAt = time.Now()

	txn := &types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		Type:          types.TransactionDeposit,
		Quantity:      1,
		Price:         amount,
		CreatedAt:     time.Now(),
	}

	if err := s.db.SaveTrade(account, nil, false, txn, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to save deposit: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("transaction_id", txn.TransactionID).
		Float64("amount", amount).
		Float64("cash_balance", account.Balance).
		Msg("funds added")

	return &types.TradeResponse{
		TransactionID: txn.TransactionID,
		Type:          txn.Type,
		Quantity:      1,
		Price:         amount,
		CashBalance:   account.Balance,
		Timestamp:     txn.CreatedAt,
	}, nil
}

// ListTransactions returns the user's equity trade log, newest first.
func (s *Service) ListTransactions(userID string) ([]types.Transaction, error) {
	return s.db.ListTransactions(userID)
}

// replayTrade returns the original trade response when the idempotency key
// has been seen before and has not expired.
func (s *Service) replayTrade(userID, idempotencyKey string) (*types.TradeResponse, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil || record == nil {
		return nil, err
	}
	if record.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}

	txn, err := s.db.GetTransaction(record.ResourceID)
	if err != nil {
		return nil, err
	}

	account, err := s.db.GetCashAccount(userID)
	if err != nil {
		return nil, err
	}
	balance := 0.0
	if account != nil {
		balance = account.Balance
	}

	resp := &types.TradeResponse{
		TransactionID: txn.TransactionID,
		StockID:       txn.StockID,
		Type:          txn.Type,
		Quantity:      txn.Quantity,
		Price:         txn.Price,
		BrokerageFee:  txn.BrokerageFee,
		CashBalance:   balance,
		Timestamp:     txn.CreatedAt,
	}
	if txn.StockID != "" {
		if holding, err := s.db.GetHolding(userID, txn.StockID); err == nil && holding != nil {
			resp.Holding = holding
		}
	}
	return resp, nil
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type tradeRequest struct {
	StockID  string  `json:"stock_id" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
	Price    float64 `json:"price" binding:"required"`
}

type addFundsRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// BuyHandler handles POST requests to buy life stock units
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, idempotencyKey, ok := tradeContext(c)
		if !ok {
			return
		}

		var req tradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Buy(userID, req.StockID, req.Quantity, req.Price, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// SellHandler handles POST requests to sell life stock units
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) SellHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, idempotencyKey, ok := tradeContext(c)
		if !ok {
			return
		}

		var req tradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Sell(userID, req.StockID, req.Quantity, req.Price, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// AddFundsHandler handles POST requests to credit the cash account
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) AddFundsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, idempotencyKey, ok := tradeContext(c)
		if !ok {
			return
		}

		var req addFundsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.AddFunds(userID, req.Amount, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// ListTransactionsHandler handles GET requests for the equity trade log
func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		txns, err := h.service.ListTransactions(userID)
		response.Handle(c, txns, err)
	}
}

// tradeContext pulls the authenticated user and idempotency key from the
// request, writing the error response itself when either is missing.
func tradeContext(c *gin.Context) (userID, idempotencyKey string, ok bool) {
	userID = auth.UserIDFromContext(c)
	if userID == "" {
		response.Unauthorized(c, "Invalid user ID in token")
		return "", "", false
	}

	idempotencyKey = c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		response.BadRequest(c, "Idempotency-Key header is required")
		return "", "", false
	}

	return userID, idempotencyKey, true
}
