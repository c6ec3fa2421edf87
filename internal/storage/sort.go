package storage

// SortColumn is an allow-listed aggregate expression used to order
// product stats queries. Caller-supplied strings are resolved through
// ParseSortColumn and never interpolated into SQL directly.
type SortColumn string

const (
	SortViews          SortColumn = "views"
	SortClicks         SortColumn = "clicks"
	SortAddToCarts     SortColumn = "add_to_carts"
	SortCheckoutStarts SortColumn = "checkout_starts"
	SortPurchases      SortColumn = "purchases"
	SortRevenue        SortColumn = "revenue"
)

var sortExprs = map[SortColumn]string{
	SortViews:          "sum(s.views)",
	SortClicks:         "sum(s.clicks)",
	SortAddToCarts:     "sum(s.add_to_carts)",
	SortCheckoutStarts: "sum(s.checkout_starts)",
	SortPurchases:      "sum(s.purchases)",
	SortRevenue:        "sum(s.revenue)",
}

// ParseSortColumn resolves a caller-supplied sort name. Anything outside
// the allow-list silently falls back to views.
func ParseSortColumn(s string) SortColumn {
	c := SortColumn(s)
	if _, ok := sortExprs[c]; ok {
		return c
	}
	return SortViews
}

// Expr returns the SQL aggregate expression for the column.
func (c SortColumn) Expr() string {
	if expr, ok := sortExprs[c]; ok {
		return expr
	}
	return sortExprs[SortViews]
}
