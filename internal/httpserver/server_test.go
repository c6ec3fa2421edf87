package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/auth"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
)

var testMetrics = metrics.NewMetrics("cartpulse_httpserver_test")

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Cache: config.CacheConfig{
			TopProductsTTL:  time.Minute,
			ProductTTL:      time.Minute,
			UserSummaryTTL:  time.Minute,
			OverviewTTL:     time.Minute,
			TimeseriesTTL:   time.Minute,
			ProductStatsTTL: time.Minute,
		},
		Worker: config.WorkerConfig{QueueName: "analytics"},
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return NewServer(&Dependencies{
		Config:  testConfig(),
		Logger:  zap.NewNop(),
		Metrics: testMetrics,
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Issue(&models.User{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func userToken(t *testing.T) string {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Issue(&models.User{ID: "user-1", Email: "user@example.com", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "new@example.com",
		"password": "longenough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body)
	}
	var reg struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Token == "" || reg.User == nil {
		t.Fatalf("register body = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "new@example.com",
		"password": "longenough",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "new@example.com",
		"password": "longenough",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", rec.Code)
	}
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Error != "CONFLICT" {
		t.Errorf("error code = %q, want CONFLICT", errBody.Error)
	}
}

func TestEventIngestion(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/events", "", map[string]interface{}{
		"session_id": "s1",
		"product_id": "p1",
		"type":       "view",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Accepted bool   `json:"accepted"`
		ID       string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Accepted || resp.ID == "" {
		t.Errorf("body = %s", rec.Body)
	}

	// No actor at all is a validation error.
	rec = doJSON(t, h, http.MethodPost, "/events", "", map[string]interface{}{
		"product_id": "p1",
		"type":       "view",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// An authenticated caller needs no session: the token supplies the
	// user.
	rec = doJSON(t, h, http.MethodPost, "/events", userToken(t), map[string]interface{}{
		"product_id": "p1",
		"type":       "view",
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("status with token = %d, body %s", rec.Code, rec.Body)
	}
}

func TestBulkIngestion(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/events/bulk", "", map[string]interface{}{
		"events": []map[string]interface{}{
			{"session_id": "s1", "product_id": "p1", "type": "view"},
			{"session_id": "s1", "product_id": "p2", "type": "click"},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Inserted int `json:"inserted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", resp.Inserted)
	}
}

func TestProductWriteRequiresAdmin(t *testing.T) {
	h := newTestServer(t)
	body := map[string]interface{}{"name": "Chair", "price": "49.00"}

	rec := doJSON(t, h, http.MethodPost, "/products", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous create status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/products", userToken(t), body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin create status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/products", adminToken(t), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create status = %d, body %s", rec.Code, rec.Body)
	}

	var product models.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Reads stay public.
	rec = doJSON(t, h, http.MethodGet, "/products/"+product.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("read status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/products/"+product.ID, userToken(t), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin delete status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/products/"+product.ID, adminToken(t), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("admin delete status = %d, want 204", rec.Code)
	}
}

func TestPurchaseRequiresAuth(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/purchases", "", map[string]interface{}{
		"product_id": "p1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	h := newTestServer(t)

	for _, path := range []string{
		"/analytics/overview",
		"/analytics/timeseries",
		"/analytics/products/top",
		"/analytics/products/stats",
	} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, body %s", path, rec.Code, rec.Body)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/analytics/users/me/summary", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous summary = %d, want 401", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/analytics/users/me/summary", userToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("summary = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/analytics/products/missing/timeseries", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown product timeseries = %d, want 404", rec.Code)
	}
}
