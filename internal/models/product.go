package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the catalog visibility state of a product.
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// Valid reports whether s is a known product status.
func (s ProductStatus) Valid() bool {
	return s == ProductActive || s == ProductInactive
}

// Product is a catalog entry.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Status      ProductStatus   `json:"status"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Category    string          `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ProductPatch carries the optional fields of a partial product update.
type ProductPatch struct {
	Name        *string
	Price       *decimal.Decimal
	Status      *ProductStatus
	Description *string
	ImageURL    *string
	Category    *string
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.Status == nil &&
		p.Description == nil && p.ImageURL == nil && p.Category == nil
}
