package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayFormat is the wire and storage format for calendar dates.
const DayFormat = "2006-01-02"

// Today returns the current UTC calendar date in DayFormat. Rollups are
// keyed by this value, matching Postgres current_date on a UTC server.
func Today() string {
	return time.Now().UTC().Format(DayFormat)
}

// ProductDailyStat is one full-recomputation snapshot row per
// (product_id, day). The aggregator overwrites every counter on conflict;
// no other path writes these rows.
type ProductDailyStat struct {
	ProductID      string          `json:"product_id"`
	Day            string          `json:"day"`
	Views          int64           `json:"views"`
	Clicks         int64           `json:"clicks"`
	AddToCarts     int64           `json:"add_to_carts"`
	CheckoutStarts int64           `json:"checkout_starts"`
	Purchases      int64           `json:"purchases"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// UserDailyStat is one snapshot row per (user_id, day).
type UserDailyStat struct {
	UserID    string          `json:"user_id"`
	Day       string          `json:"day"`
	Views     int64           `json:"views"`
	Purchases int64           `json:"purchases"`
	Spend     decimal.Decimal `json:"spend"`
}

// TopProduct is one entry of the ranked top-products response.
type TopProduct struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Views          int64           `json:"views"`
	Clicks         int64           `json:"clicks"`
	AddToCarts     int64           `json:"add_to_carts"`
	CheckoutStarts int64           `json:"checkout_starts"`
	Purchases      int64           `json:"purchases"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// TimeseriesPoint is one day of aggregate counters, either for a single
// product or summed across all products.
type TimeseriesPoint struct {
	Day            string          `json:"day"`
	Views          int64           `json:"views"`
	Clicks         int64           `json:"clicks"`
	AddToCarts     int64           `json:"add_to_carts"`
	CheckoutStarts int64           `json:"checkout_starts"`
	Purchases      int64           `json:"purchases"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// OverviewTotals holds the summed counters for one time window.
type OverviewTotals struct {
	Views          int64           `json:"views"`
	Clicks         int64           `json:"clicks"`
	AddToCarts     int64           `json:"add_to_carts"`
	CheckoutStarts int64           `json:"checkout_starts"`
	Purchases      int64           `json:"purchases"`
	Revenue        decimal.Decimal `json:"revenue"`
	ActiveProducts int64           `json:"active_products"`
}

// OverviewDeltas holds the period-over-period percent change for each
// counter, rounded to the nearest integer percent.
type OverviewDeltas struct {
	Views          int64 `json:"views"`
	Clicks         int64 `json:"clicks"`
	AddToCarts     int64 `json:"add_to_carts"`
	CheckoutStarts int64 `json:"checkout_starts"`
	Purchases      int64 `json:"purchases"`
	Revenue        int64 `json:"revenue"`
}

// Overview is the current-period totals plus deltas against the
// immediately preceding period of equal length.
type Overview struct {
	Days   int            `json:"days"`
	Totals OverviewTotals `json:"totals"`
	Deltas OverviewDeltas `json:"deltas"`
}

// UserSummary is the aggregate activity of a single user over a window.
type UserSummary struct {
	UserID    string          `json:"user_id"`
	Days      int             `json:"days"`
	Views     int64           `json:"views"`
	Purchases int64           `json:"purchases"`
	Spend     decimal.Decimal `json:"spend"`
}
