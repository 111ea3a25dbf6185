package options

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

// Portfolio supplies the pieces of the portfolio service the option ledger
// needs: lazy cash accounts and the current index value as the underlying.
type Portfolio interface {
	EnsureCashAccount(userID string) (*types.CashAccount, error)
	IndexValue(userID string) (float64, error)
}

// Service handles the option ledger: the weekly contract ladder and
// buy/write/exit position keeping.
type Service struct {
	db        *Database
	portfolio Portfolio
}

// NewService creates an options trading service.
func NewService(gormDB *gorm.DB, portfolio Portfolio) *Service {
	return &Service{
		db:        NewDatabase(gormDB),
		portfolio: portfolio,
	}
}

// EnsureLadder generates and persists this week's contract ladder for the
// given underlying. Insertion is idempotent on (strike, expiry, type), so
// regenerating on every chain fetch never duplicates contracts. Returns the
// number of newly persisted contracts.
func (s *Service) EnsureLadder(underlying float64, now time.Time) (int, error) {
	inserted := 0
	for _, contract := range GenerateLadder(underlying, now) {
		contract := contract
		ok, err := s.db.InsertContractIfAbsent(&contract)
		if err != nil {
			return inserted, fmt.Errorf("failed to persist contract: %w", err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// GetChain returns this week's ladder quoted at the user's current index
// value, generating any missing contracts first.
func (s *Service) GetChain(userID string) (*types.ChainResponse, error) {
	underlying, err := s.portfolio.IndexValue(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := s.EnsureLadder(underlying, now); err != nil {
		return nil, err
	}

	monday, sunday := WeekBounds(now)
	contracts, err := s.db.ListContractsExpiring(monday, sunday)
	if err != nil {
		return nil, err
	}

	byStrike := make(map[float64]*types.ChainStrike)
	order := make([]float64, 0, ladderStrikeCount)
	for _, contract := range contracts {
		rung, ok := byStrike[contract.StrikePrice]
		if !ok {
			rung = &types.ChainStrike{StrikePrice: contract.StrikePrice}
			byStrike[contract.StrikePrice] = rung
			order = append(order, contract.StrikePrice)
		}

		quoted := &types.QuotedContract{
			ContractID: contract.ContractID,
			OptionType: contract.OptionType,
			ExpiryDate: contract.ExpiryDate,
			Premium:    Premium(underlying, contract.StrikePrice, contract.OptionType, contract.CreatedAt, contract.ExpiryDate, now),
		}
		if contract.OptionType == types.OptionTypeCE {
			rung.Call = quoted
		} else {
			rung.Put = quoted
		}
	}

	strikes := make([]types.ChainStrike, 0, len(order))
	for _, strike := range order {
		strikes = append(strikes, *byStrike[strike])
	}

	return &types.ChainResponse{
		IndexValue: underlying,
		ExpiryDate: sunday,
		Strikes:    strikes,
	}, nil
}

// Buy opens or extends a long position at the quoted premium. The full
// premium is debited from cash and the position's weighted average premium
// recomputed.
func (s *Service) Buy(userID, contractID string, quantity, premium float64, idempotencyKey string) (*types.OptionTradeResponse, error) {
	if replay, err := s.replayTrade(userID, idempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	if err := ledger.ValidateOrder(quantity, premium); err != nil {
		return nil, err
	}

	contract, err := s.db.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, types.ErrNotFound
	}

	account, err := s.portfolio.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}

	totalPremium := premium * quantity
	if totalPremium > account.Balance {
		return nil, types.ErrInsufficientFunds
	}

	positionType := types.PositionLongCE
	if contract.OptionType == types.OptionTypePE {
		positionType = types.PositionLongPE
	}

	holding, err := s.upsertHolding(userID, contractID, positionType, quantity, premium)
	if err != nil {
		return nil, err
	}

	account.Balance -= totalPremium
	account.UpdatedAt = time.Now()

	return s.commitTrade(account, holding, false, &types.OptionTransaction{
		TransactionID:  "OTX_" + uuid.New().String(),
		UserID:         userID,
		ContractID:     contractID,
		Action:         types.OptionActionBuy,
		PositionType:   positionType,
		Quantity:       quantity,
		PremiumPerUnit: premium,
		CashDelta:      -totalPremium,
		CreatedAt:      time.Now(),
	}, idempotencyKey)
}

// Write opens or extends a short position. The full notional collateral
// (strike x quantity) is reserved from cash and the premium credited, as one
// atomic cash movement.
func (s *Service) Write(userID, contractID string, quantity, premium float64, idempotencyKey string) (*types.OptionTradeResponse, error) {
	if replay, err := s.replayTrade(userID, idempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	if err := ledger.ValidateOrder(quantity, premium); err != nil {
		return nil, err
	}

	contract, err := s.db.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, types.ErrNotFound
	}

	account, err := s.portfolio.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}

	collateral := contract.StrikePrice * quantity
	if collateral > account.Balance {
		log.Warn().
			Str("user_id", userID).
			Str("contract_id", contractID).
			Float64("collateral", collateral).
			Float64("balance", account.Balance).
			Msg("write rejected, insufficient collateral")
		return nil, types.ErrInsufficientFunds
	}

	positionType := types.PositionShortCE
	if contract.OptionType == types.OptionTypePE {
		positionType = types.PositionShortPE
	}

	holding, err := s.upsertHolding(userID, contractID, positionType, quantity, premium)
	if err != nil {
		return nil, err
	}

	cashDelta := -collateral + premium*quantity
	account.Balance += cashDelta
	account.UpdatedAt = time.Now()

	return s.commitTrade(account, holding, false, &types.OptionTransaction{
		TransactionID:  "OTX_" + uuid.New().String(),
		UserID:         userID,
		ContractID:     contractID,
		Action:         types.OptionActionWrite,
		PositionType:   positionType,
		Quantity:       quantity,
		PremiumPerUnit: premium,
		CashDelta:      cashDelta,
		CreatedAt:      time.Now(),
	}, idempotencyKey)
}

// Exit closes part or all of a position. Short exits release the reserved
// collateral; long exits realize the current premium quoted off the latest
// index value. The trade log records the realized exit premium per unit.
func (s *Service) Exit(userID, contractID, positionType string, quantity float64, idempotencyKey string) (*types.OptionTradeResponse, error) {
	if replay, err := s.replayTrade(userID, idempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	if quantity <= 0 {
		return nil, types.NewValidationError("quantity", "must be greater than zero")
	}

	contract, err := s.db.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, types.ErrNotFound
	}

	holding, err := s.db.GetHolding(userID, contractID, positionType)
	if err != nil {
		return nil, err
	}
	if holding == nil || quantity > holding.Quantity {
		return nil, types.ErrInsufficientHolding
	}

	underlying, err := s.portfolio.IndexValue(userID)
	if err != nil {
		return nil, err
	}
	currentPremium := Premium(underlying, contract.StrikePrice, contract.OptionType, contract.CreatedAt, contract.ExpiryDate, time.Now())

	var cashDelta float64
	switch positionType {
	case types.PositionShortCE, types.PositionShortPE:
		cashDelta = contract.StrikePrice * quantity
	default:
		cashDelta = currentPremium * quantity
	}

	account, err := s.portfolio.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}
	account.Balance += cashDelta
	account.UpdatedAt = time.Now()

	holding.Quantity -= quantity
	holding.UpdatedAt = time.Now()
	removeHolding := holding.Quantity == 0

	return s.commitTrade(account, holding, removeHolding, &types.OptionTransaction{
		TransactionID:  "OTX_" + uuid.New().String(),
		UserID:         userID,
		ContractID:     contractID,
		Action:         types.OptionActionExit,
		PositionType:   positionType,
		Quantity:       quantity,
		PremiumPerUnit: currentPremium,
		CashDelta:      cashDelta,
		CreatedAt:      time.Now(),
	}, idempotencyKey)
}

// DeleteContract removes a ladder strike. Rejected while any open position
// still references the contract, so settlement never finds a dangling
// holding.
func (s *Service) DeleteContract(contractID string) error {
	held, err := s.db.CountHoldingsForContract(contractID)
	if err != nil {
		return err
	}
	if held > 0 {
		return types.ErrContractInUse
	}
	return s.db.DeleteContract(contractID)
}

// ListPositions returns the user's open option holdings.
func (s *Service) ListPositions(userID string) ([]types.OptionHolding, error) {
	return s.db.ListHoldings(userID)
}

// ListTransactions returns the user's option trade log, newest first.
func (s *Service) ListTransactions(userID string) ([]types.OptionTransaction, error) {
	return s.db.ListTransactions(userID)
}

// GenerateWeeklyLadders refreshes the current week's ladder for every user
// that owns life stocks. Run by the Monday cron job.
func (s *Service) GenerateWeeklyLadders() error {
	userIDs, err := s.db.ListStockUsers()
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		underlying, err := s.portfolio.IndexValue(userID)
		if err != nil {
			return err
		}
		inserted, err := s.EnsureLadder(underlying, time.Now())
		if err != nil {
			return err
		}
		log.Info().
			Str("user_id", userID).
			Float64("underlying", underlying).
			Int("contracts_created", inserted).
			Msg("weekly ladder generated")
	}
	return nil
}

// upsertHolding folds a new lot into the (user, contract, type) position
// using the shared weighted-average math.
func (s *Service) upsertHolding(userID, contractID, positionType string, quantity, premium float64) (*types.OptionHolding, error) {
	holding, err := s.db.GetHolding(userID, contractID, positionType)
	if err != nil {
		return nil, err
	}
	if holding == nil {
		return &types.OptionHolding{
			UserID:       userID,
			ContractID:   contractID,
			PositionType: positionType,
			Quantity:     quantity,
			AvgPremium:   premium,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}, nil
	}

	pos := ledger.ApplyBuy(
		ledger.Position{Quantity: holding.Quantity, AvgCost: holding.AvgPremium},
		quantity, premium,
	)
	holding.Quantity = pos.Quantity
	holding.AvgPremium = pos.AvgCost
	holding.UpdatedAt = time.Now()
	return holding, nil
}

func (s *Service) commitTrade(account *types.CashAccount, holding *types.OptionHolding, removeHolding bool, txn *types.OptionTransaction, idempotencyKey string) (*types.OptionTradeResponse, error) {
	if err := s.db.SaveOptionTrade(account, holding, removeHolding, txn, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to save option trade: %w", err)
	}

	log.Info().
		Str("user_id", txn.UserID).
		Str("transaction_id", txn.TransactionID).
		Str("contract_id", txn.ContractID).
		Str("action", txn.Action).
		Str("position_type", txn.PositionType).
		Float64("quantity", txn.Quantity).
		Float64("premium_per_unit", txn.PremiumPerUnit).
		Float64("cash_delta", txn.CashDelta).
		Float64("cash_balance", account.Balance).
		Msg("option trade executed")

	resp := &types.OptionTradeResponse{
		TransactionID:  txn.TransactionID,
		ContractID:     txn.ContractID,
		Action:         txn.Action,
		PositionType:   txn.PositionType,
		Quantity:       txn.Quantity,
		PremiumPerUnit: txn.PremiumPerUnit,
		CashDelta:      txn.CashDelta,
		CashBalance:    account.Balance,
		Timestamp:      txn.CreatedAt,
	}
	if !removeHolding {
		resp.Holding = holding
	}
	return resp, nil
}

// replayTrade returns the original option trade response when the
// idempotency key has been seen before and has not expired.
func (s *Service) replayTrade(userID, idempotencyKey string) (*types.OptionTradeResponse, error) {
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

	balance := 0.0
	if account, err := s.db.GetCashAccount(userID); err == nil && account != nil {
		balance = account.Balance
	}

	resp := &types.OptionTradeResponse{
		TransactionID:  txn.TransactionID,
		ContractID:     txn.ContractID,
		Action:         txn.Action,
		PositionType:   txn.PositionType,
		Quantity:       txn.Quantity,
		PremiumPerUnit: txn.PremiumPerUnit,
		CashDelta:      txn.CashDelta,
		CashBalance:    balance,
		Timestamp:      txn.CreatedAt,
	}
	if holding, err := s.db.GetHolding(userID, txn.ContractID, txn.PositionType); err == nil && holding != nil {
		resp.Holding = holding
	}
	return resp, nil
}

// GinHandlers contains HTTP handlers for options endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for options endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type optionOrderRequest struct {
	ContractID string  `json:"contract_id" binding:"required"`
	Quantity   float64 `json:"quantity" binding:"required"`
	Premium    float64 `json:"premium" binding:"required"`
}

type exitRequest struct {
	ContractID   string  `json:"contract_id" binding:"required"`
	PositionType string  `json:"position_type" binding:"required,oneof=long_ce long_pe short_ce short_pe"`
	Quantity     float64 `json:"quantity" binding:"required"`
}

// GetChainHandler handles GET requests for the weekly option chain
func (h *GinHandlers) GetChainHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		chain, err := h.service.GetChain(userID)
		response.Handle(c, chain, err)
	}
}

// BuyHandler handles POST requests to open long option positions
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, idempotencyKey, ok := optionContext(c)
		if !ok {
			return
		}

		var req optionOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Buy(userID, req.ContractID, req.Quantity, req.Premium, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// WriteHandler handles POST requests to open short option positions
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) WriteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, idempotencyKey, ok := optionContext(c)
		if !ok {
			return
		}

		var req optionOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Write(userID, req.ContractID, req.Quantity, req.Premium, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// ExitHandler handles POST requests to close option positions
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) ExitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, idempotencyKey, ok := optionContext(c)
		if !ok {
			return
		}

		var req exitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Exit(userID, req.ContractID, req.PositionType, req.Quantity, idempotencyKey)
		response.Handle(c, trade, err)
	}
}

// DeleteContractHandler handles DELETE requests for ladder strikes
// URL parameter: contract_id
func (h *GinHandlers) DeleteContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.DeleteContract(c.Param("contract_id")); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "contract deleted"})
	}
}

// ListPositionsHandler handles GET requests for open option positions
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		holdings, err := h.service.ListPositions(userID)
		response.Handle(c, holdings, err)
	}
}

// ListTransactionsHandler handles GET requests for the option trade log
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

func optionContext(c *gin.Context) (userID, idempotencyKey string, ok bool) {
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
