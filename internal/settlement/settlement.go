package settlement

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lifestock/lifestock-api/internal/options"
	"github.com/lifestock/lifestock-api/internal/types"
	"github.com/lifestock/lifestock-api/pkg/response"
)

// Service settles expired option positions against the index value recorded
// at expiry.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetDB exposes the settlement database for the background processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// SettleExpired closes every holding on every contract whose expiry has
// passed. Long positions receive the exercise payoff; short positions get
// their reserved collateral back net of the assigned payoff (the premium was
// already credited when the position was written). Each settled holding is
// removed and leaves an audit record.
func (s *Service) SettleExpired(now time.Time) (*types.SettlementSweepResponse, error) {
	logger := log.With().Str("service", "settlement").Logger()

	contracts, err := s.db.ListExpiredContracts(now)
	if err != nil {
		return nil, err
	}

	sweep := &types.SettlementSweepResponse{
		ContractsExpired: len(contracts),
		Timestamp:        now,
	}

	for _, contract := range contracts {
		holdings, err := s.db.ListHoldingsForContract(contract.ContractID)
		if err != nil {
			return nil, err
		}

		for i := range holdings {
			credit, err := s.settleHolding(&contract, &holdings[i])
			if err != nil {
				logger.Error().
					Err(err).
					Str("contract_id", contract.ContractID).
					Str("user_id", holdings[i].UserID).
					Msg("failed to settle holding")
				return nil, err
			}
			sweep.HoldingsSettled++
			sweep.TotalCashCredit += credit
		}
	}

	if sweep.HoldingsSettled > 0 {
		logger.Info().
			Int("contracts_expired", sweep.ContractsExpired).
			Int("holdings_settled", sweep.HoldingsSettled).
			Float64("total_cash_credit", sweep.TotalCashCredit).
			Msg("expiry settlement sweep completed")
	}

	return sweep, nil
}

func (s *Service) settleHolding(contract *types.OptionContract, holding *types.OptionHolding) (float64, error) {
	settleValue, err := s.settlementValue(holding.UserID, contract)
	if err != nil {
		return 0, err
	}

	payoff := options.Payoff(settleValue, contract.StrikePrice, contract.OptionType)

	var credit float64
	switch holding.PositionType {
	case types.PositionLongCE, types.PositionLongPE:
		credit = payoff * holding.Quantity
	case types.PositionShortCE, types.PositionShortPE:
		// Collateral back net of the assigned payoff. Deep in-the-money
		// assignments can exceed the collateral and debit the account.
		credit = (contract.StrikePrice - payoff) * holding.Quantity
	default:
		return 0, fmt.Errorf("unknown position type %q", holding.PositionType)
	}

	account, err := s.db.GetCashAccount(holding.UserID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, fmt.Errorf("cash account not found for user %s", holding.UserID)
	}

	account.Balance += credit
	account.UpdatedAt = time.Now()

	record := &types.OptionSettlement{
		SettlementID: "STL_" + uuid.New().String(),
		UserID:       holding.UserID,
		ContractID:   contract.ContractID,
		PositionType: holding.PositionType,
		Quantity:     holding.Quantity,
		SettleValue:  settleValue,
		Payoff:       payoff,
		CashCredit:   credit,
		CreatedAt:    time.Now(),
	}

	txn := &types.OptionTransaction{
		TransactionID:  "OTX_" + uuid.New().String(),
		UserID:         holding.UserID,
		ContractID:     contract.ContractID,
		Action:         types.OptionActionSettle,
		PositionType:   holding.PositionType,
		Quantity:       holding.Quantity,
		PremiumPerUnit: payoff,
		CashDelta:      credit,
		CreatedAt:      time.Now(),
	}

	if err := s.db.SettleHolding(account, holding, record, txn); err != nil {
		return 0, fmt.Errorf("failed to persist settlement: %w", err)
	}

	log.Info().
		Str("settlement_id", record.SettlementID).
		Str("user_id", holding.UserID).
		Str("contract_id", contract.ContractID).
		Str("position_type", holding.PositionType).
		Float64("quantity", holding.Quantity).
		Float64("settle_value", settleValue).
		Float64("payoff", payoff).
		Float64("cash_credit", credit).
		Msg("holding settled")

	return credit, nil
}

// settlementValue is the latest index value recorded at or before the
// contract's expiry, falling back to the underlying captured when the
// contract was created.
func (s *Service) settlementValue(userID string, contract *types.OptionContract) (float64, error) {
	snapshot, err := s.db.LatestSnapshotAt(userID, contract.ExpiryDate)
	if err != nil {
		return 0, err
	}
	if snapshot == nil {
		return contract.UnderlyingAtCreation, nil
	}
	return snapshot.Value, nil
}

// ListSettlements returns all settlement audit records.
func (s *Service) ListSettlements() ([]types.OptionSettlement, error) {
	return s.db.ListSettlements()
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RunSweepHandler handles POST requests to trigger an expiry settlement
// sweep. Protected by internal authentication.
func (h *GinHandlers) RunSweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sweep, err := h.service.SettleExpired(time.Now())
		response.Handle(c, sweep, err)
	}
}

// ListSettlementsHandler handles GET requests for settlement audit records.
// Protected by internal authentication.
func (h *GinHandlers) ListSettlementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlements, err := h.service.ListSettlements()
		response.Handle(c, settlements, err)
	}
}
