package domain

// Ticket is the purchasable item. The tickets service owns it; the orders
// service holds a read-only mirror replicated through ticket events.
// Version is monotonic and bumped on every owner mutation.
type Ticket struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	OrderID string  `json:"order_id,omitempty"`
	Version int     `json:"version"`
}

// Reserved reports whether an order currently holds the ticket. A reserved
// ticket rejects title/price edits.
func (t *Ticket) Reserved() bool {
	return t.OrderID != ""
}
