package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cartpulse/cartpulse/internal/models"
)

func seedEvent(t *testing.T, s *MemoryStore, userID, sessionID, productID string, typ models.EventType) {
	t.Helper()
	e := &models.Event{ProductID: productID, Type: typ, Timestamp: time.Now().UTC()}
	if userID != "" {
		e.UserID = &userID
	}
	if sessionID != "" {
		e.SessionID = &sessionID
	}
	if _, err := s.InsertEvent(context.Background(), e); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
}

func TestMemoryStoreRecomputeDayCountsByType(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	today := models.Today()

	seedEvent(t, s, "u1", "", "p1", models.EventView)
	seedEvent(t, s, "u1", "", "p1", models.EventClick)
	seedEvent(t, s, "u1", "", "p1", models.EventAddToCart)
	seedEvent(t, s, "u1", "", "p1", models.EventCheckoutStart)
	// search and remove_from_cart are stored but not rolled up per product
	seedEvent(t, s, "u1", "", "p1", models.EventSearch)
	seedEvent(t, s, "u1", "", "p1", models.EventRemoveFromCart)

	if err := s.RecomputeDay(ctx, today); err != nil {
		t.Fatalf("RecomputeDay: %v", err)
	}

	row, err := s.GetProductDay(ctx, "p1", today)
	if err != nil {
		t.Fatalf("GetProductDay: %v", err)
	}
	if row.Views != 1 || row.Clicks != 1 || row.AddToCarts != 1 || row.CheckoutStarts != 1 {
		t.Errorf("row = %+v, want one of each rolled-up counter", row)
	}
	if row.Purchases != 0 || !row.Revenue.IsZero() {
		t.Errorf("row = %+v, want zero purchases and revenue", row)
	}
}

func TestMemoryStoreRecomputeDayIgnoresOtherDays(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	yesterday := time.Now().UTC().AddDate(0, 0, -1)

	uid := "u1"
	if _, err := s.InsertEvent(ctx, &models.Event{
		UserID:    &uid,
		ProductID: "p1",
		Type:      models.EventView,
		Timestamp: yesterday,
	}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	if err := s.RecomputeDay(ctx, models.Today()); err != nil {
		t.Fatalf("RecomputeDay: %v", err)
	}
	row, _ := s.GetProductDay(ctx, "p1", models.Today())
	if row != nil {
		t.Errorf("yesterday's event produced today's row: %+v", row)
	}

	if err := s.RecomputeDay(ctx, yesterday.Format(models.DayFormat)); err != nil {
		t.Fatalf("RecomputeDay(yesterday): %v", err)
	}
	row, _ = s.GetProductDay(ctx, "p1", yesterday.Format(models.DayFormat))
	if row == nil || row.Views != 1 {
		t.Errorf("yesterday's row = %+v, want 1 view", row)
	}
}

func TestMemoryStoreLinkSessionSkipsAttributed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	seedEvent(t, s, "", "sess", "p1", models.EventView)
	seedEvent(t, s, "", "sess", "p1", models.EventView)
	seedEvent(t, s, "owner", "sess", "p1", models.EventView)
	seedEvent(t, s, "", "other-sess", "p1", models.EventView)

	linked, err := s.LinkSession(ctx, "sess", "claimer")
	if err != nil {
		t.Fatalf("LinkSession: %v", err)
	}
	if linked != 2 {
		t.Errorf("linked = %d, want 2", linked)
	}

	again, _ := s.LinkSession(ctx, "sess", "someone-else")
	if again != 0 {
		t.Errorf("second link touched %d events, want 0", again)
	}
}

func TestMemoryStoreTopProductsWindowAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	today := models.Today()
	old := time.Now().UTC().AddDate(0, 0, -30).Format(models.DayFormat)

	uid := "u1"
	for i := 0; i < 3; i++ {
		if _, err := s.InsertEvent(ctx, &models.Event{
			UserID: &uid, ProductID: "hot", Type: models.EventView, Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.InsertEvent(ctx, &models.Event{
		UserID: &uid, ProductID: "warm", Type: models.EventView, Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertEvent(ctx, &models.Event{
		UserID: &uid, ProductID: "stale", Type: models.EventView,
		Timestamp: time.Now().UTC().AddDate(0, 0, -30),
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RecomputeDay(ctx, today); err != nil {
		t.Fatal(err)
	}
	if err := s.RecomputeDay(ctx, old); err != nil {
		t.Fatal(err)
	}

	items, err := s.TopProducts(ctx, 7, 10, SortViews)
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 inside the window", len(items))
	}
	if items[0].ProductID != "hot" || items[1].ProductID != "warm" {
		t.Errorf("order = %s, %s; want hot, warm", items[0].ProductID, items[1].ProductID)
	}
}

func TestMemoryStorePurchaseRollupAggregates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	today := models.Today()

	for _, amount := range []string{"10.00", "15.50"} {
		if err := s.InsertPurchase(ctx, &models.Purchase{
			UserID:    "u1",
			ProductID: "p1",
			Qty:       1,
			Amount:    decimal.RequireFromString(amount),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("InsertPurchase: %v", err)
		}
	}

	if err := s.RecomputeDay(ctx, today); err != nil {
		t.Fatalf("RecomputeDay: %v", err)
	}

	row, _ := s.GetProductDay(ctx, "p1", today)
	if row == nil || row.Purchases != 2 {
		t.Fatalf("row = %+v, want 2 purchases", row)
	}
	if want := decimal.RequireFromString("25.50"); !row.Revenue.Equal(want) {
		t.Errorf("revenue = %s, want %s", row.Revenue, want)
	}

	user, _ := s.GetUserDay(ctx, "u1", today)
	if user == nil || user.Purchases != 2 {
		t.Fatalf("user row = %+v, want 2 purchases", user)
	}
	if want := decimal.RequireFromString("25.50"); !user.Spend.Equal(want) {
		t.Errorf("spend = %s, want %s", user.Spend, want)
	}
}
