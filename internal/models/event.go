package models

import (
	"fmt"
	"time"
)

// EventType enumerates the behavioral event taxonomy.
type EventType string

const (
	EventView           EventType = "view"
	EventClick          EventType = "click"
	EventAddToCart      EventType = "add_to_cart"
	EventRemoveFromCart EventType = "remove_from_cart"
	EventCheckoutStart  EventType = "checkout_start"
	EventSearch         EventType = "search"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventView, EventClick, EventAddToCart, EventRemoveFromCart, EventCheckoutStart, EventSearch:
		return true
	}
	return false
}

// Event is a single raw behavioral event. Rows are immutable once written,
// except that a null UserID may be back-filled exactly once when an
// anonymous session is linked to an authenticated user.
type Event struct {
	ID        string                 `json:"id"`
	UserID    *string                `json:"user_id,omitempty"`
	SessionID *string                `json:"session_id,omitempty"`
	ProductID string                 `json:"product_id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"ts"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Validate checks the ingestion-time invariants on a single event.
func (e *Event) Validate() error {
	if e.ProductID == "" {
		return fmt.Errorf("product_id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.UserID == nil && e.SessionID == nil {
		return fmt.Errorf("either user_id or session_id must be set")
	}
	return nil
}
