package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/auth"
	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/commerce"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/database"
	"github.com/cartpulse/cartpulse/internal/geo"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/middleware"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/queue"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and the commerce services.
type Server struct {
	authService      *commerce.AuthService
	eventService     *commerce.EventService
	purchaseService  *commerce.PurchaseService
	productService   *commerce.ProductService
	analyticsService *commerce.AnalyticsService
	logger           *zap.Logger
	config           *config.Config
	metrics          *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize repositories
	var eventRepo storage.EventRepo
	var purchaseRepo storage.PurchaseRepo
	var productRepo storage.ProductRepo
	var userRepo storage.UserRepo
	var statsRepo storage.StatsRepo

	if deps.DB != nil {
		eventRepo = storage.NewPostgresEventRepo(deps.DB.Pool)
		purchaseRepo = storage.NewPostgresPurchaseRepo(deps.DB.Pool)
		productRepo = storage.NewPostgresProductRepo(deps.DB.Pool)
		userRepo = storage.NewPostgresUserRepo(deps.DB.Pool)
		statsRepo = storage.NewPostgresStatsRepo(deps.DB.Pool)
	} else {
		mem := storage.NewMemoryStore()
		eventRepo = mem
		purchaseRepo = mem
		productRepo = mem
		userRepo = mem
		statsRepo = mem
	}

	var c cache.Cache
	var q queue.Queue
	if deps.Redis != nil {
		c = cache.NewRedisCache(deps.Redis.Client, deps.Logger)
		q = queue.NewRedisQueue(deps.Redis.Client, deps.Config.Worker.QueueName, deps.Logger)
	} else {
		c = cache.NewMemoryCache()
		q = queue.NewMemoryQueue()
	}

	var resolver geo.Resolver
	if deps.Config.Geo.Enabled {
		r, err := geo.NewMaxMindResolver(deps.Config.Geo.DatabasePath, deps.Config.Geo.CacheTTL)
		if err != nil {
			deps.Logger.Warn("failed to initialize geo resolver, enrichment disabled", zap.Error(err))
		} else {
			resolver = r
		}
	}

	tokens := auth.NewTokenManager(deps.Config.Auth.JWTSecret, deps.Config.Auth.TokenTTL)

	s := &Server{
		authService:      commerce.NewAuthService(userRepo, tokens, deps.Logger),
		eventService:     commerce.NewEventService(eventRepo, q, resolver, deps.Metrics, deps.Logger),
		purchaseService:  commerce.NewPurchaseService(purchaseRepo, productRepo, q, deps.Metrics, deps.Logger),
		productService:   commerce.NewProductService(productRepo, c, deps.Config.Cache, deps.Metrics, deps.Logger),
		analyticsService: commerce.NewAnalyticsService(statsRepo, productRepo, c, deps.Config.Cache, deps.Metrics, deps.Logger),
		logger:           deps.Logger,
		config:           deps.Config,
		metrics:          deps.Metrics,
	}

	am := middleware.NewAuthMiddleware(tokens, deps.Logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Auth
	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)

	// Event ingestion
	mux.Handle("/events", am.Optional(http.HandlerFunc(s.handleEvents)))
	mux.Handle("/events/bulk", am.Optional(http.HandlerFunc(s.handleEventsBulk)))
	mux.Handle("/events/link-session", am.Require(http.HandlerFunc(s.handleLinkSession)))

	// Purchases
	mux.Handle("/purchases", am.Require(http.HandlerFunc(s.handlePurchases)))

	// Product catalog
	mux.Handle("/products", am.Optional(http.HandlerFunc(s.handleProducts)))
	mux.Handle("/products/", am.Optional(http.HandlerFunc(s.handleProductByID)))

	// Analytics
	mux.HandleFunc("/analytics/overview", s.handleOverview)
	mux.HandleFunc("/analytics/timeseries", s.handleOverallTimeseries)
	mux.HandleFunc("/analytics/products/top", s.handleTopProducts)
	mux.HandleFunc("/analytics/products/stats", s.handleProductStats)
	mux.HandleFunc("/analytics/products/", s.handleProductTimeseries)
	mux.Handle("/analytics/users/me/summary", am.Require(http.HandlerFunc(s.handleUserSummary)))

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Auth ----

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("invalid json"))
		return
	}

	user, token, err := s.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]interface{}{"token": token, "user": user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("invalid json"))
		return
	}

	user, token, err := s.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

// ---- Event Ingestion ----

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var e models.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		s.writeError(w, apperr.Validation("invalid json"))
		return
	}

	// An authenticated caller always tracks as themselves.
	if identity := auth.IdentityFrom(r.Context()); identity != nil {
		e.UserID = &identity.UserID
	}

	id, err := s.eventService.IngestEvent(r.Context(), &e, middleware.ClientIP(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "id": id})
}

func (s *Server) handleEventsBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Events []*models.Event `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("invalid json"))
		return
	}

	if identity := auth.IdentityFrom(r.Context()); identity != nil {
		for _, e := range req.Events {
			if e != nil && e.UserID == nil {
				uid := identity.UserID
				e.UserID = &uid
			}
		}
	}

	inserted, err := s.eventService.IngestEventsBulk(r.Context(), req.Events, middleware.ClientIP(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "inserted": inserted})
}

func (s *Server) handleLinkSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("invalid json"))
		return
	}

	identity := auth.IdentityFrom(r.Context())
	linked, err := s.eventService.LinkSession(r.Context(), req.SessionID, identity.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"linked": linked})
}

// ---- Purchases ----

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	switch r.Method {
	case http.MethodPost:
		var req struct {
			ProductID string `json:"product_id"`
			Qty       int    `json:"qty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperr.Validation("invalid json"))
			return
		}
		if req.Qty == 0 {
			req.Qty = 1
		}

		purchase, err := s.purchaseService.TrackPurchase(r.Context(), identity.UserID, req.ProductID, req.Qty)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusCreated, purchase)

	case http.MethodGet:
		q := r.URL.Query()
		total, items, err := s.purchaseService.PurchaseHistory(r.Context(), identity.UserID,
			queryInt(q, "page", 1), queryInt(q, "limit", 20), q.Get("sort_by"), q.Get("sort_dir"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		if items == nil {
			items = []*models.Purchase{}
		}
		s.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"total": total,
			"page":  queryInt(q, "page", 1),
			"limit": queryInt(q, "limit", 20),
			"items": items,
		})

	default:
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
	}
}

// ---- Product Catalog ----

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		page := queryInt(q, "page", 1)
		limit := queryInt(q, "limit", 20)

		total, items, err := s.productService.ListProducts(r.Context(), storage.ProductListOptions{
			Status:   q.Get("status"),
			Search:   q.Get("search"),
			Category: q.Get("category"),
			SortBy:   q.Get("sort_by"),
			SortDir:  q.Get("sort_dir"),
		}, page, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if items == nil {
			items = []*models.Product{}
		}
		s.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"total": total,
			"page":  page,
			"limit": limit,
			"items": items,
		})

	case http.MethodPost:
		if !s.requireAdmin(w, r) {
			return
		}

		var req productRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperr.Validation("invalid json"))
			return
		}

		product, err := s.productService.CreateProduct(r.Context(), req.toProduct())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusCreated, product)

	default:
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/products/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if id == "categories" {
		s.handleCategories(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := s.productService.GetProduct(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, product)

	case http.MethodPatch:
		if !s.requireAdmin(w, r) {
			return
		}

		var req productPatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperr.Validation("invalid json"))
			return
		}

		product, err := s.productService.UpdateProduct(r.Context(), id, req.toPatch())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, product)

	case http.MethodDelete:
		if !s.requireAdmin(w, r) {
			return
		}

		if err := s.productService.DeleteProduct(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	categories, err := s.productService.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// ---- Analytics ----

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	items, err := s.analyticsService.TopProducts(r.Context(),
		queryInt(q, "days", 0), queryInt(q, "limit", 0), q.Get("sort_by"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleProductStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	page, err := s.analyticsService.ProductStats(r.Context(),
		queryInt(q, "days", 0), queryInt(q, "page", 1), queryInt(q, "limit", 20),
		q.Get("sort_by"), q.Get("sort_dir"), q.Get("search"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	overview, err := s.analyticsService.Overview(r.Context(), queryInt(r.URL.Query(), "days", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, overview)
}

func (s *Server) handleOverallTimeseries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	points, err := s.analyticsService.OverallTimeseries(r.Context(), queryInt(r.URL.Query(), "days", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"points": points})
}

// handleProductTimeseries serves /analytics/products/{id}/timeseries.
func (s *Server) handleProductTimeseries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/analytics/products/")
	id, tail, found := strings.Cut(rest, "/")
	if !found || tail != "timeseries" || id == "" {
		http.NotFound(w, r)
		return
	}

	points, err := s.analyticsService.ProductTimeseries(r.Context(), id, queryInt(r.URL.Query(), "days", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"product_id": id, "points": points})
}

func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, apperr.Validation("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	identity := auth.IdentityFrom(r.Context())
	summary, err := s.analyticsService.UserSummary(r.Context(), identity.UserID, queryInt(r.URL.Query(), "days", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

// ---- Request/Response helpers ----

type productRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
}

func (p productRequest) toProduct() *models.Product {
	return &models.Product{
		Name:        p.Name,
		Price:       p.Price,
		Status:      models.ProductStatus(p.Status),
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
	}
}

type productPatchRequest struct {
	Name        *string          `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Status      *string          `json:"status"`
	Description *string          `json:"description"`
	ImageURL    *string          `json:"image_url"`
	Category    *string          `json:"category"`
}

func (p productPatchRequest) toPatch() models.ProductPatch {
	patch := models.ProductPatch{
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
	}
	if p.Status != nil {
		status := models.ProductStatus(*p.Status)
		patch.Status = &status
	}
	return patch
}

// requireAdmin enforces admin access for catalog writes. It writes the
// error response itself and reports whether the request may proceed.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		s.writeError(w, apperr.Unauthorized("authentication required"))
		return false
	}
	if !identity.Role.IsAdmin() {
		s.writeError(w, apperr.Forbidden("admin access required"))
		return false
	}
	return true
}

func queryInt(q map[string][]string, key string, def int) int {
	values := q[key]
	if len(values) == 0 || values[0] == "" {
		return def
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return def
	}
	return n
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps any error onto the wire error shape.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= 500 {
		s.logger.Error("request failed", zap.Error(err))
	}

	body := map[string]interface{}{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	}
	if appErr.Details != nil {
		body["details"] = appErr.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) errorResponse(w http.ResponseWriter, appErr *apperr.Error, status int) {
	appErr.Status = status
	s.writeError(w, appErr)
}
