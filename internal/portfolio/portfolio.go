package portfolio

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/lifestock/lifestock-api/internal/auth"
	"github.com/lifestock/lifestock-api/internal/types"
	"github.com/lifestock/lifestock-api/pkg/response"
	"gorm.io/gorm"
)

// ScorePriceMultiplier converts a 0-100 life score into a traded per-unit
// price, and the weighted mean score into the index value.
const ScorePriceMultiplier = 100.0

// Service manages life stocks, the weighted index and its snapshots.
type Service struct {
	db           *Database
	indexCache   *cache.Cache
	startingCash float64
}

// NewService creates a portfolio service. New cash accounts are seeded with
// startingCash; computed index values are cached for indexTTL.
func NewService(gormDB *gorm.DB, startingCash float64, indexTTL, cleanupInterval time.Duration) *Service {
	return &Service{
		db:           NewDatabase(gormDB),
		indexCache:   cache.New(indexTTL, cleanupInterval),
		startingCash: startingCash,
	}
}

// CreateStock registers a new life category for the user.
func (s *Service) CreateStock(userID, name string, weight, score float64) (*types.LifeStock, error) {
	if name == "" {
		return nil, types.NewValidationError("name", "must not be empty")
	}
	if weight <= 0 {
		return nil, types.NewValidationError("weight", "must be greater than zero")
	}
	if score < 0 || score > 100 {
		return nil, types.NewValidationError("score", "must be between 0 and 100")
	}

	stock := &types.LifeStock{
		StockID:   "STK_" + uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Weight:    weight,
		Score:     score,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateStock(stock); err != nil {
		return nil, fmt.Errorf("failed to create stock: %w", err)
	}

	if err := s.recordSnapshot(userID); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("stock_id", stock.StockID).
		Str("name", name).
		Float64("weight", weight).
		Msg("life stock created")

	return stock, nil
}

// ListStocks returns the user's life stocks.
func (s *Service) ListStocks(userID string) ([]types.LifeStock, error) {
	return s.db.ListStocks(userID)
}

// UpdateScore sets a stock's score, recomputes the index and appends an
// index snapshot.
func (s *Service) UpdateScore(userID, stockID string, score float64) (*types.LifeStock, error) {
	if score < 0 || score > 100 {
		return nil, types.NewValidationError("score", "must be between 0 and 100")
	}

	stock, err := s.db.GetStock(userID, stockID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, types.ErrNotFound
	}

	stock.Score = score
	stock.UpdatedAt = time.Now()
	if err := s.db.UpdateStock(stock); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	if err := s.recordSnapshot(userID); err != nil {
		return nil, err
	}

	return stock, nil
}

// DeleteStock removes a life stock. Rejected while an equity holding still
// references it, so positions can never point at a missing stock.
func (s *Service) DeleteStock(userID, stockID string) error {
	stock, err := s.db.GetStock(userID, stockID)
	if err != nil {
		return err
	}
	if stock == nil {
		return types.ErrNotFound
	}

	held, err := s.db.CountHoldingsForStock(userID, stockID)
	if err != nil {
		return err
	}
	if held > 0 {
		return types.ErrStockInUse
	}

	if err := s.db.DeleteStock(userID, stockID); err != nil {
		return fmt.Errorf("failed to delete stock: %w", err)
	}
	s.indexCache.Delete(userID)
	return s.recordSnapshot(userID)
}

// IndexValue returns the current weighted index: the weight-averaged score of
// all stocks scaled by ScorePriceMultiplier. Served from a short TTL cache.
func (s *Service) IndexValue(userID string) (float64, error) {
	if cached, found := s.indexCache.Get(userID); found {
		return cached.(float64), nil
	}

	stocks, err := s.db.ListStocks(userID)
	if err != nil {
		return 0, err
	}

	value := computeIndex(stocks)
	s.indexCache.Set(userID, value, cache.DefaultExpiration)
	return value, nil
}

// IndexValueAt returns the index value recorded at or before t, falling back
// to fallback when no snapshot exists.
func (s *Service) IndexValueAt(userID string, t time.Time, fallback float64) (float64, error) {
	snapshot, err := s.db.LatestSnapshotAt(userID, t)
	if err != nil {
		return 0, err
	}
	if snapshot == nil {
		return fallback, nil
	}
	return snapshot.Value, nil
}

// EnsureCashAccount returns the user's cash account, creating it with the
// configured starting balance on first use.
func (s *Service) EnsureCashAccount(userID string) (*types.CashAccount, error) {
	account, err := s.db.GetCashAccount(userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = &types.CashAccount{
		UserID:    userID,
		Balance:   s.startingCash,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateCashAccount(account); err != nil {
		return nil, fmt.Errorf("failed to create cash account: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Float64("starting_cash", s.startingCash).
		Msg("cash account created")

	return account, nil
}

// GetPortfolio aggregates cash, equity holdings at current prices and open
// option positions.
func (s *Service) GetPortfolio(userID string) (*types.PortfolioResponse, error) {
	account, err := s.EnsureCashAccount(userID)
	if err != nil {
		return nil, err
	}

	stocks, err := s.db.ListStocks(userID)
	if err != nil {
		return nil, err
	}
	stockByID := make(map[string]types.LifeStock, len(stocks))
	for _, stock := range stocks {
		stockByID[stock.StockID] = stock
	}

	holdings, err := s.db.ListHoldings(userID)
	if err != nil {
		return nil, err
	}

	views := make([]types.HoldingView, 0, len(holdings))
	totalValue := account.Balance
	for _, holding := range holdings {
		view := types.HoldingView{Holding: holding}
		if stock, ok := stockByID[holding.StockID]; ok {
			view.StockName = stock.Name
			view.CurrentPrice = stock.Score * ScorePriceMultiplier
		}
		view.MarketValue = view.CurrentPrice * holding.Quantity
		totalValue += view.MarketValue
		views = append(views, view)
	}

	optionHoldings, err := s.db.ListOptionHoldings(userID)
	if err != nil {
		return nil, err
	}

	indexValue := computeIndex(stocks)

	return &types.PortfolioResponse{
		CashBalance:     account.Balance,
		IndexValue:      indexValue,
		Holdings:        views,
		OptionPositions: optionHoldings,
		TotalValue:      totalValue,
	}, nil
}

// recordSnapshot recomputes the index and appends a snapshot row. Called on
// every change to the stock set or a score.
func (s *Service) recordSnapshot(userID string) error {
	stocks, err := s.db.ListStocks(userID)
	if err != nil {
		return err
	}

	value := computeIndex(stocks)
	s.indexCache.Set(userID, value, cache.DefaultExpiration)

	snapshot := &types.IndexSnapshot{
		UserID:     userID,
		Value:      value,
		RecordedAt: time.Now(),
	}
	if err := s.db.CreateSnapshot(snapshot); err != nil {
		return fmt.Errorf("failed to record index snapshot: %w", err)
	}
	return nil
}

func computeIndex(stocks []types.LifeStock) float64 {
	var weightedSum, totalWeight float64
	for _, stock := range stocks {
		weightedSum += stock.Score * stock.Weight
		totalWeight += stock.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight * ScorePriceMultiplier
}

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createStockRequest struct {
	Name   string  `json:"name" binding:"required"`
	Weight float64 `json:"weight" binding:"required"`
	Score  float64 `json:"score"`
}

type updateScoreRequest struct {
	Score float64 `json:"score"`
}

// CreateStockHandler handles POST requests to register a life stock
func (h *GinHandlers) CreateStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		var req createStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		stock, err := h.service.CreateStock(userID, req.Name, req.Weight, req.Score)
		response.Handle(c, stock, err)
	}
}

// ListStocksHandler handles GET requests for the user's life stocks
func (h *GinHandlers) ListStocksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		stocks, err := h.service.ListStocks(userID)
		response.Handle(c, stocks, err)
	}
}

// UpdateScoreHandler handles PUT requests to update a stock's score
// URL parameter: stock_id
func (h *GinHandlers) UpdateScoreHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		var req updateScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		stock, err := h.service.UpdateScore(userID, c.Param("stock_id"), req.Score)
		response.Handle(c, stock, err)
	}
}

// DeleteStockHandler handles DELETE requests for a life stock
// URL parameter: stock_id
func (h *GinHandlers) DeleteStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		if err := h.service.DeleteStock(userID, c.Param("stock_id")); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "stock deleted"})
	}
}

// GetIndexHandler handles GET requests for the current index value
func (h *GinHandlers) GetIndexHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		value, err := h.service.IndexValue(userID)
		response.Handle(c, gin.H{"index_value": value}, err)
	}
}

// GetPortfolioHandler handles GET requests for the aggregated portfolio
func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		portfolio, err := h.service.GetPortfolio(userID)
		response.Handle(c, portfolio, err)
	}
}
