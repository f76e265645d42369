package domain

import "time"

type OrderStatus string

const (
	OrderCreated         OrderStatus = "created"
	OrderAwaitingPayment OrderStatus = "awaiting_payment"
	OrderComplete        OrderStatus = "complete"
	OrderCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderComplete || s == OrderCancelled
}

// Active reports whether the order still holds its ticket reservation.
// Complete counts: a sold ticket is not available either.
func (s OrderStatus) Active() bool {
	return s == OrderCreated || s == OrderAwaitingPayment || s == OrderComplete
}

// Order is the reservation of one ticket by one user. The orders service
// owns it; the payments service holds a reduced mirror. TicketID/TicketPrice
// are a snapshot of the ticket at reservation time.
type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Status      OrderStatus `json:"status"`
	ExpiresAt   time.Time   `json:"expires_at"`
	TicketID    string      `json:"ticket_id"`
	TicketPrice float64     `json:"ticket_price"`
	Version     int         `json:"version"`
}

// OrderMirror is the payments service's reduced copy of an Order: just
// enough to validate a charge. Version tracks the owning service's version
// so order events can be applied with the version guard.
type OrderMirror struct {
	ID      string      `json:"id"`
	UserID  string      `json:"user_id"`
	Price   float64     `json:"price"`
	Status  OrderStatus `json:"status"`
	Version int         `json:"version"`
}
