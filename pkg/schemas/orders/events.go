// Package orders defines the order.events family.
package orders

import "time"

const (
	Exchange = "order.events"

	EventCreated   = "order.created"
	EventCancelled = "order.cancelled"
	EventUpdated   = "order.updated"
)

// CreatedItem is one line of an order.created payload.
type CreatedItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Subtotal    float64 `json:"subtotal"`
}

// CreatedData is the order snapshot published after a successful create.
type CreatedData struct {
	ID          string        `json:"id"`
	UserID      int64         `json:"user_id"`
	OrderNumber string        `json:"order_number"`
	Status      string        `json:"status"`
	TotalAmount float64       `json:"total_amount"`
	Items       []CreatedItem `json:"items"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CancelledItem carries just enough to restore reserved stock.
type CancelledItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CancelledData struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Items       []CancelledItem `json:"items"`
	CancelledAt time.Time       `json:"cancelled_at"`
}

type UpdatedData struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}
