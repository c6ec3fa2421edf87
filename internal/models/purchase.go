package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is an immutable purchase record. Amount is always computed
// server-side as qty times the authoritative product price at purchase
// time; a client-supplied amount is never trusted.
type Purchase struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"ts"`
}
