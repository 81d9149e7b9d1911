package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/outbox"
	"github.com/ksred/exchange-api/internal/types"
	"github.com/ksred/exchange-api/pkg/response"
)

// Service handles order intake and the read paths against the ledger.
type Service struct {
	db *Database
}

// NewService creates a new intake service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// PlaceOrder validates the request and applies its synchronous ledger
// effect in one exclusive transaction: a sell debits the user's balance,
// a buy upserts a resting order aggregated per (user, currency, exact
// price). The order event is written to the outbox in the same
// transaction; the relay owns delivery, so a commit is never stranded
// without its event.
func (s *Service) PlaceOrder(ctx context.Context, req *OrderRequest) error {
	if err := validateOrder(req); err != nil {
		return err
	}

	logger := log.With().
		Str("service", "intake").
		Int("user_id", req.UserID).
		Str("order_type", req.OrderType).
		Str("currency_symbol", req.CurrencySymbol).
		Logger()

	timestamp := time.Now()

	tx := s.db.Begin(ctx)
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	switch req.OrderType {
	case types.OrderTypeSell:
		balance, err := s.db.GetBalanceForUpdate(tx, req.UserID, req.CurrencySymbol)
		if err != nil {
			tx.Rollback()
			return err
		}
		if balance == nil || balance.Balance.LessThan(req.Quantity) {
			tx.Rollback()
			return ErrInsufficientBalance
		}
		if err := s.db.DebitBalance(tx, balance, req.Quantity); err != nil {
			tx.Rollback()
			return err
		}

	case types.OrderTypeBuy:
		existing, err := s.db.GetPendingBuyOrderForUpdate(tx, req.UserID, req.CurrencySymbol, req.Price)
		if err != nil {
			tx.Rollback()
			return err
		}
		if existing != nil {
			if err := s.db.IncrementOrderQuantity(tx, existing, req.Quantity); err != nil {
				tx.Rollback()
				return err
			}
		} else {
			order := &types.Order{
				UserID:         req.UserID,
				OrderType:      types.OrderTypeBuy,
				CurrencySymbol: req.CurrencySymbol,
				Price:          req.Price,
				Quantity:       req.Quantity,
				FilledQuantity: decimal.Zero,
				Status:         types.OrderStatusPending,
				Timestamp:      timestamp,
			}
			if err := s.db.CreateOrder(tx, order); err != nil {
				tx.Rollback()
				return err
			}
		}
	}

	event := types.OrderEvent{
		EventID:        outbox.NewEventID(),
		UserID:         req.UserID,
		OrderType:      req.OrderType,
		CurrencySymbol: req.CurrencySymbol,
		Price:          req.Price,
		Quantity:       req.Quantity,
		Timestamp:      timestamp,
	}
	if _, err := outbox.Enqueue(tx, event.EventID, strconv.Itoa(req.UserID), event); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	logger.Info().Str("event_id", event.EventID).Msg("order placed")
	return nil
}

// GetBalances returns a user's balances, optionally filtered by symbol.
func (s *Service) GetBalances(userID int, symbol string) ([]types.Balance, error) {
	return s.db.GetBalances(userID, symbol)
}

// GetOrders returns orders newest first, optionally filtered.
func (s *Service) GetOrders(userID int, symbol string) ([]types.Order, error) {
	return s.db.GetOrders(userID, symbol)
}

// GinHandlers contains HTTP handlers for the intake endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the intake endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceOrderHandler handles POST /api/orders
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		if err := h.service.PlaceOrder(c.Request.Context(), &req); err != nil {
			var invalid *InvalidOrderError
			switch {
			case errors.As(err, &invalid):
				response.BadRequest(c, invalid.Reason)
			case errors.Is(err, ErrInsufficientBalance):
				response.BadRequest(c, "Insufficient balance")
			default:
				log.Error().Err(err).Msg("failed to place order")
				response.InternalError(c, "Failed to place order")
			}
			return
		}

		response.Created(c, "Order placed")
	}
}

// GetBalancesHandler handles GET /api/balances/:userId
func (h *GinHandlers) GetBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.Atoi(c.Param("userId"))
		if err != nil || userID < types.MinUserID || userID > types.MaxUserID {
			response.BadRequest(c, fmt.Sprintf("Invalid userId (%d-%d)", types.MinUserID, types.MaxUserID))
			return
		}

		symbol := c.Query("symbol")
		if symbol != "" && !types.ValidCurrency(symbol) {
			response.BadRequest(c, "Invalid currency symbol (BTC or ETH)")
			return
		}

		balances, err := h.service.GetBalances(userID, symbol)
		if err != nil {
			log.Error().Err(err).Int("user_id", userID).Msg("failed to fetch balances")
			response.InternalError(c, "Failed to fetch balance")
			return
		}

		response.OK(c, types.BalancesResponse{Balances: balances})
	}
}

// GetOrdersHandler handles GET /api/orders
func (h *GinHandlers) GetOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID int
		if raw := c.Query("userId"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				response.BadRequest(c, "Invalid userId")
				return
			}
			userID = parsed
		}

		symbol := c.Query("symbol")
		if symbol != "" && !types.ValidCurrency(symbol) {
			response.BadRequest(c, "Invalid currency symbol (BTC or ETH)")
			return
		}

		orders, err := h.service.GetOrders(userID, symbol)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch orders")
			response.InternalError(c, "Failed to fetch orders")
			return
		}

		response.OK(c, types.OrdersResponse{Orders: orders})
	}
}
