package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore provides in-memory storage backing every repository
// interface. It mirrors the Postgres implementations closely enough to
// exercise the rollup and analytics paths without a database, and serves
// as the fixture for the package tests.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[string]*models.Event
	purchases   map[string]*models.Purchase
	products    map[string]*models.Product
	users       map[string]*models.User
	productDays map[string]*models.ProductDailyStat // product_id|day
	userDays    map[string]*models.UserDailyStat    // user_id|day
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string]*models.Event),
		purchases:   make(map[string]*models.Purchase),
		products:    make(map[string]*models.Product),
		users:       make(map[string]*models.User),
		productDays: make(map[string]*models.ProductDailyStat),
		userDays:    make(map[string]*models.UserDailyStat),
	}
}

func statKey(id, day string) string { return id + "|" + day }

// =============================================
// EventRepo
// =============================================

func (s *MemoryStore) InsertEvent(ctx context.Context, e *models.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	s.events[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemoryStore) InsertEventsBulk(ctx context.Context, events []*models.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		cp := *e
		s.events[cp.ID] = &cp
	}
	return len(events), nil
}

func (s *MemoryStore) LinkSession(ctx context.Context, sessionID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var linked int64
	for _, e := range s.events {
		if e.SessionID != nil && *e.SessionID == sessionID && e.UserID == nil {
			uid := userID
			e.UserID = &uid
			linked++
		}
	}
	return linked, nil
}

// =============================================
// PurchaseRepo
// =============================================

func (s *MemoryStore) InsertPurchase(ctx context.Context, p *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	s.purchases[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, opts PurchaseListOptions) (int64, []*models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Purchase
	for _, p := range s.purchases {
		if p.UserID == userID {
			cp := *p
			all = append(all, &cp)
		}
	}

	asc := opts.SortDir == "asc"
	sort.Slice(all, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case "amount":
			less = all[i].Amount.Cmp(all[j].Amount) < 0
		case "qty":
			less = all[i].Qty < all[j].Qty
		default:
			less = all[i].Timestamp.Before(all[j].Timestamp)
		}
		if asc {
			return less
		}
		return !less
	})

	total := int64(len(all))
	return total, paginate(all, opts.Offset, opts.Limit), nil
}

// =============================================
// ProductRepo
// =============================================

func (s *MemoryStore) List(ctx context.Context, opts ProductListOptions) (int64, []*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Product
	for _, p := range s.products {
		if opts.Status != "" && string(p.Status) != opts.Status {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(opts.Search)) {
			continue
		}
		if opts.Category != "" && p.Category != opts.Category {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}

	asc := opts.SortDir == "asc"
	sort.Slice(all, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case "name":
			less = all[i].Name < all[j].Name
		case "price":
			less = all[i].Price.Cmp(all[j].Price) < 0
		default:
			less = all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})

	total := int64(len(all))
	return total, paginate(all, opts.Offset, opts.Limit), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Create(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.products[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	return true, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, p := range s.products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// =============================================
// UserRepo
// =============================================

func (s *MemoryStore) CreateUser(ctx context.Context, email, passwordHash string, role models.Role) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return nil, ErrDuplicateEmail
		}
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// =============================================
// StatsRepo
// =============================================

// RecomputeDay mirrors the Postgres upsert: counters for the day are
// summed from scratch and overwrite whatever row exists for the key.
func (s *MemoryStore) RecomputeDay(ctx context.Context, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	productRows := make(map[string]*models.ProductDailyStat)
	userRows := make(map[string]*models.UserDailyStat)

	for _, e := range s.events {
		if e.Timestamp.UTC().Format(models.DayFormat) != day {
			continue
		}

		ps, ok := productRows[e.ProductID]
		if !ok {
			ps = &models.ProductDailyStat{ProductID: e.ProductID, Day: day, Revenue: decimal.Zero}
			productRows[e.ProductID] = ps
		}
		switch e.Type {
		case models.EventView:
			ps.Views++
		case models.EventClick:
			ps.Clicks++
		case models.EventAddToCart:
			ps.AddToCarts++
		case models.EventCheckoutStart:
			ps.CheckoutStarts++
		}

		if e.UserID != nil && e.Type == models.EventView {
			us, ok := userRows[*e.UserID]
			if !ok {
				us = &models.UserDailyStat{UserID: *e.UserID, Day: day, Spend: decimal.Zero}
				userRows[*e.UserID] = us
			}
			us.Views++
		}
	}

	for _, p := range s.purchases {
		if p.Timestamp.UTC().Format(models.DayFormat) != day {
			continue
		}

		ps, ok := productRows[p.ProductID]
		if !ok {
			ps = &models.ProductDailyStat{ProductID: p.ProductID, Day: day, Revenue: decimal.Zero}
			productRows[p.ProductID] = ps
		}
		ps.Purchases++
		ps.Revenue = ps.Revenue.Add(p.Amount)

		us, ok := userRows[p.UserID]
		if !ok {
			us = &models.UserDailyStat{UserID: p.UserID, Day: day, Spend: decimal.Zero}
			userRows[p.UserID] = us
		}
		us.Purchases++
		us.Spend = us.Spend.Add(p.Amount)
	}

	for id, row := range productRows {
		s.productDays[statKey(id, day)] = row
	}
	for id, row := range userRows {
		s.userDays[statKey(id, day)] = row
	}
	return nil
}

func (s *MemoryStore) TopProducts(ctx context.Context, days, limit int, sortBy SortColumn) ([]*models.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.sumProductWindow(days, "")
	sortTopProducts(items, sortBy, "desc")
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) ProductStats(ctx context.Context, opts ProductStatsOptions) (int64, []*models.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.sumProductWindow(opts.Days, opts.Search)
	sortTopProducts(items, opts.SortBy, opts.SortDir)

	total := int64(len(items))
	return total, paginate(items, opts.Offset, opts.Limit), nil
}

func (s *MemoryStore) Overview(ctx context.Context, days int) (*models.OverviewTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sumOverview(windowStart(days), models.Today()), nil
}

func (s *MemoryStore) OverviewPrevious(ctx context.Context, days int) (*models.OverviewTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := windowStart(days) // exclusive
	start := windowStartFrom(end, days)
	t := s.sumOverviewBefore(start, end)
	return t, nil
}

func (s *MemoryStore) OverallTimeseries(ctx context.Context, days int) ([]*models.TimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := windowStart(days)
	byDay := make(map[string]*models.TimeseriesPoint)
	for _, row := range s.productDays {
		if row.Day < start {
			continue
		}
		pt, ok := byDay[row.Day]
		if !ok {
			pt = &models.TimeseriesPoint{Day: row.Day, Revenue: decimal.Zero}
			byDay[row.Day] = pt
		}
		pt.Views += row.Views
		pt.Clicks += row.Clicks
		pt.AddToCarts += row.AddToCarts
		pt.CheckoutStarts += row.CheckoutStarts
		pt.Purchases += row.Purchases
		pt.Revenue = pt.Revenue.Add(row.Revenue)
	}

	var points []*models.TimeseriesPoint
	for _, pt := range byDay {
		points = append(points, pt)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day < points[j].Day })
	return points, nil
}

func (s *MemoryStore) ProductTimeseries(ctx context.Context, productID string, days int) ([]*models.TimeseriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := windowStart(days)
	var points []*models.TimeseriesPoint
	for _, row := range s.productDays {
		if row.ProductID != productID || row.Day < start {
			continue
		}
		points = append(points, &models.TimeseriesPoint{
			Day:            row.Day,
			Views:          row.Views,
			Clicks:         row.Clicks,
			AddToCarts:     row.AddToCarts,
			CheckoutStarts: row.CheckoutStarts,
			Purchases:      row.Purchases,
			Revenue:        row.Revenue,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day < points[j].Day })
	return points, nil
}

func (s *MemoryStore) UserSummary(ctx context.Context, userID string, days int) (*models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := windowStart(days)
	summary := &models.UserSummary{UserID: userID, Days: days, Spend: decimal.Zero}
	for _, row := range s.userDays {
		if row.UserID != userID || row.Day < start {
			continue
		}
		summary.Views += row.Views
		summary.Purchases += row.Purchases
		summary.Spend = summary.Spend.Add(row.Spend)
	}
	return summary, nil
}

func (s *MemoryStore) GetProductDay(ctx context.Context, productID, day string) (*models.ProductDailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.productDays[statKey(productID, day)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryStore) GetUserDay(ctx context.Context, userID, day string) (*models.UserDailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.userDays[statKey(userID, day)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

// =============================================
// helpers
// =============================================

func (s *MemoryStore) sumProductWindow(days int, search string) []*models.TopProduct {
	start := windowStart(days)
	byProduct := make(map[string]*models.TopProduct)
	for _, row := range s.productDays {
		if row.Day < start {
			continue
		}
		tp, ok := byProduct[row.ProductID]
		if !ok {
			name := row.ProductID
			if p, exists := s.products[row.ProductID]; exists {
				name = p.Name
			}
			tp = &models.TopProduct{ProductID: row.ProductID, ProductName: name, Revenue: decimal.Zero}
			byProduct[row.ProductID] = tp
		}
		tp.Views += row.Views
		tp.Clicks += row.Clicks
		tp.AddToCarts += row.AddToCarts
		tp.CheckoutStarts += row.CheckoutStarts
		tp.Purchases += row.Purchases
		tp.Revenue = tp.Revenue.Add(row.Revenue)
	}

	var items []*models.TopProduct
	for _, tp := range byProduct {
		if search != "" && !strings.Contains(strings.ToLower(tp.ProductName), strings.ToLower(search)) {
			continue
		}
		items = append(items, tp)
	}
	return items
}

func (s *MemoryStore) sumOverview(start, _ string) *models.OverviewTotals {
	t := &models.OverviewTotals{Revenue: decimal.Zero}
	seen := make(map[string]bool)
	for _, row := range s.productDays {
		if row.Day < start {
			continue
		}
		t.Views += row.Views
		t.Clicks += row.Clicks
		t.AddToCarts += row.AddToCarts
		t.CheckoutStarts += row.CheckoutStarts
		t.Purchases += row.Purchases
		t.Revenue = t.Revenue.Add(row.Revenue)
		if !seen[row.ProductID] {
			seen[row.ProductID] = true
			t.ActiveProducts++
		}
	}
	return t
}

func (s *MemoryStore) sumOverviewBefore(start, end string) *models.OverviewTotals {
	t := &models.OverviewTotals{Revenue: decimal.Zero}
	for _, row := range s.productDays {
		if row.Day < start || row.Day >= end {
			continue
		}
		t.Views += row.Views
		t.Clicks += row.Clicks
		t.AddToCarts += row.AddToCarts
		t.CheckoutStarts += row.CheckoutStarts
		t.Purchases += row.Purchases
		t.Revenue = t.Revenue.Add(row.Revenue)
	}
	return t
}

// windowStart returns the first day (inclusive) of a window of the given
// length ending today. ISO dates compare lexicographically.
func windowStart(days int) string {
	return time.Now().UTC().AddDate(0, 0, -(days - 1)).Format(models.DayFormat)
}

func windowStartFrom(endExclusive string, days int) string {
	end, _ := time.Parse(models.DayFormat, endExclusive)
	return end.AddDate(0, 0, -days).Format(models.DayFormat)
}

func sortTopProducts(items []*models.TopProduct, sortBy SortColumn, dir string) {
	asc := dir == "asc"
	sort.Slice(items, func(i, j int) bool {
		var less bool
		switch sortBy {
		case SortClicks:
			less = items[i].Clicks < items[j].Clicks
		case SortAddToCarts:
			less = items[i].AddToCarts < items[j].AddToCarts
		case SortCheckoutStarts:
			less = items[i].CheckoutStarts < items[j].CheckoutStarts
		case SortPurchases:
			less = items[i].Purchases < items[j].Purchases
		case SortRevenue:
			less = items[i].Revenue.Cmp(items[j].Revenue) < 0
		default:
			less = items[i].Views < items[j].Views
		}
		if asc {
			return less
		}
		return !less
	})
}

func paginate[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
