package models

import "time"

// Product lifecycle event types, also used as routing keys.
const (
	ProductCreated = "product.created"
	ProductUpdated = "product.updated"
	ProductDeleted = "product.deleted"
)

// ProductEvent is published after a product mutation has been committed.
type ProductEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	ProductID  uint      `json:"product_id"`
	Product    Product   `json:"product"`
	OccurredAt time.Time `json:"occurred_at"`
}
