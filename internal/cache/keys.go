package cache

import "fmt"

// Key builders. Readers and the invalidation path must agree on these
// shapes, so every key used anywhere in the service is built here.

func TopProductsKey(days, limit int, sortBy string) string {
	return fmt.Sprintf("top_products:%d:%d:%s", days, limit, sortBy)
}

func ProductKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func ProductStatsKey(days, page, limit int, sortBy, sortDir, search string) string {
	return fmt.Sprintf("product_stats:%d:%d:%d:%s:%s:%s", days, page, limit, sortBy, sortDir, search)
}

func UserSummaryKey(userID string, days int) string {
	return fmt.Sprintf("user_summary:%s:%d", userID, days)
}

func OverviewKey(days int) string {
	return fmt.Sprintf("overview:%d", days)
}

func OverallTimeseriesKey(days int) string {
	return fmt.Sprintf("overall_ts:%d", days)
}

func ProductTimeseriesKey(productID string, days int) string {
	return fmt.Sprintf("product_ts:%s:%d", productID, days)
}

// AnalyticsPatterns are the key patterns holding derived analytics. The
// rollup invalidates all of them after each recompute. Product detail
// keys are deliberately absent: catalog rows are not derived from stats
// and stay cached until the product itself changes.
func AnalyticsPatterns() []string {
	return []string{
		"top_products:*",
		"product_stats:*",
		"user_summary:*",
		"overview:*",
		"overall_ts:*",
		"product_ts:*",
	}
}
