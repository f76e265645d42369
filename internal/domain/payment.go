package domain

// Payment records a completed charge against an order. Owned by the
// payments service.
type Payment struct {
	ID      string  `json:"id"`
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
	Version int     `json:"version"`
}
