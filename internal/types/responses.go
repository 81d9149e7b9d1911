package types

// BalancesResponse wraps the balance list returned by GET /api/balances/:userId
type BalancesResponse struct {
	Balances []Balance `json:"balances"`
}

// OrdersResponse wraps the order list returned by GET /api/orders
type OrdersResponse struct {
	Orders []Order `json:"orders"`
}
