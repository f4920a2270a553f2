package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/andeanpay/go-recon-backend/internal/config"
	"github.com/andeanpay/go-recon-backend/internal/domain"
	"github.com/andeanpay/go-recon-backend/internal/ocr"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Notification{}, &domain.Sale{}, &domain.CaptureSession{},
		&domain.Device{}, &domain.InboundReceipt{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	cfg.RateRPS = 1000
	cfg.RateBurst = 100
	return cfg
}

const routerAlert = "¡Yapeaste!\n" +
	"S/100\n" +
	"Maria Q. Flores\n" +
	"22 nov. 2025 | 11:34 a.m.\n" +
	"CÓDIGO DE SEGURIDAD\n" +
	"5 0 2\n" +
	"Nro. de operación\n" +
	"03443217"

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	cfg.CORS.AllowedOrigins = nil // triggers AllowAllOrigins branch
	db := newTestDB(t)

	RegisterRoutes(r, db, ocr.Static{}, cfg)

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (DELETE /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	db := newTestDB(t)

	RegisterRoutes(r, db, ocr.Static{}, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected origin echo, got %q", got)
	}

	// Unlisted origins get no ACAO header.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no ACAO for unlisted origin, got %q", got)
	}
}

// Exercises the wired stack end to end: register a device, ingest an alert,
// run the two-turn webhook capture flow, and read the resulting sale back.
func TestRegisterRoutes_CaptureFlowEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	db := newTestDB(t)

	RegisterRoutes(r, db, ocr.Static{}, cfg)

	// Register the receiving device.
	w := postJSON(t, r, "/api/v1/devices", gin.H{
		"code": "D1", "label": "Counter phone", "method": "WALLET_A",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /devices = %d: %s", w.Code, w.Body.String())
	}

	// Ingest the payment alert.
	w = postJSON(t, r, "/api/v1/notifications", gin.H{
		"device_code": "D1", "text": routerAlert,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /notifications = %d: %s", w.Code, w.Body.String())
	}

	// The alert is visible on the pending list.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/pending", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /notifications/pending = %d", w.Code)
	}
	var pending struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending.Notifications) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending.Notifications))
	}

	// Webhook turn 1: the voucher image (gateway forwards OCR text).
	w = postJSON(t, r, "/api/v1/webhook/messages", gin.H{
		"message_id": "m1",
		"from":       "51999888777",
		"phone":      "+51999888777",
		"text":       routerAlert,
		"image_ref":  "blob://vouchers/v1.jpg",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("webhook image turn = %d: %s", w.Code, w.Body.String())
	}

	// Webhook turn 2: customer name and device code.
	w = postJSON(t, r, "/api/v1/webhook/messages", gin.H{
		"message_id": "m2",
		"from":       "51999888777",
		"text":       "Maria Q. Flores\nD1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("webhook text turn = %d: %s", w.Code, w.Body.String())
	}
	var reply struct {
		Reply  string `json:"reply"`
		Replay bool   `json:"replay"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Replay {
		t.Fatalf("unexpected replay flag")
	}

	// A validated sale exists now.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sales?status=VALIDATED", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /sales = %d", w.Code)
	}
	var sales struct {
		Sales []domain.Sale `json:"sales"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sales); err != nil {
		t.Fatalf("decode sales: %v", err)
	}
	if len(sales.Sales) != 1 {
		t.Fatalf("validated sales = %d, want 1: %s", len(sales.Sales), w.Body.String())
	}
	if sales.Sales[0].OperationID != "03443217" {
		t.Fatalf("operation id = %q", sales.Sales[0].OperationID)
	}

	// Redelivery of the same webhook message is flagged as a replay.
	w = postJSON(t, r, "/api/v1/webhook/messages", gin.H{
		"message_id": "m2",
		"from":       "51999888777",
		"text":       "Maria Q. Flores\nD1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("webhook redelivery = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode redelivery reply: %v", err)
	}
	if !reply.Replay {
		t.Fatalf("expected replay flag on redelivery")
	}
}

func TestRegisterRoutes_RateLimiterThrottles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1
	db := newTestDB(t)

	RegisterRoutes(r, db, ocr.Static{}, cfg)

	// First request consumes the only token.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}

	// Second request is throttled.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}

	// Health stays reachable regardless of the bucket.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200 despite empty bucket", w.Code)
	}
}
