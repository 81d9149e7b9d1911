package intake

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ksred/exchange-api/internal/types"
)

// ErrInsufficientBalance is returned when a sell exceeds the user's
// available balance. The intake transaction rolls back and no event is
// published.
var ErrInsufficientBalance = errors.New("insufficient balance")

// InvalidOrderError carries the field-level reason a request was
// rejected. Validation failures have no side effects.
type InvalidOrderError struct {
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return e.Reason
}

// OrderRequest is the body of POST /api/orders.
type OrderRequest struct {
	UserID         int             `json:"userId"`
	OrderType      string          `json:"order_type"`
	CurrencySymbol string          `json:"currency_symbol"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
}

func validateOrder(req *OrderRequest) error {
	if req.UserID < types.MinUserID || req.UserID > types.MaxUserID {
		return &InvalidOrderError{Reason: fmt.Sprintf("Invalid userId (%d-%d)", types.MinUserID, types.MaxUserID)}
	}
	if req.OrderType != types.OrderTypeBuy && req.OrderType != types.OrderTypeSell {
		return &InvalidOrderError{Reason: "Invalid order_type"}
	}
	if !types.ValidCurrency(req.CurrencySymbol) {
		return &InvalidOrderError{Reason: "Invalid currency_symbol"}
	}
	if req.Price.LessThan(types.MinPrice) || req.Price.GreaterThan(types.MaxPrice) {
		return &InvalidOrderError{Reason: "Invalid price"}
	}
	if req.Quantity.Sign() <= 0 {
		return &InvalidOrderError{Reason: "Invalid quantity"}
	}
	return nil
}
