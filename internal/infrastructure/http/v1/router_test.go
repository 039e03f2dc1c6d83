package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/tx"
	"stockledger/internal/domain/inventory"
	"stockledger/pkg/logger"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := inventory.NewMemoryStore()
	svc := inventory.NewService(
		store.Records(), store.Movements(),
		inventory.NewGuard(inventory.DefaultGuardConfig()),
		tx.Nop{},
		inventory.Config{},
	)
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	return NewRouter(RouterConfig{Inventory: svc, Logger: log})
}

func bearerToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "test-user",
		"email": "test@warehouse.local",
		"roles": []any{role},
	})
	raw, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return "Bearer " + raw
}

func doJSON(t *testing.T, router http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", bearerToken(t, role))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestReservationLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/inventory", "admin", map[string]any{
		"productId":     "sku-1",
		"initialOnHand": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/inventory/reserve", "order_service", map[string]any{
		"productId":      "sku-1",
		"quantity":       4,
		"reservationRef": "ord-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	record := body["record"].(map[string]any)
	assert.Equal(t, float64(4), record["quantityReserved"])

	// Retried reserve replays.
	w = doJSON(t, router, http.MethodPost, "/api/inventory/reserve", "order_service", map[string]any{
		"productId":      "sku-1",
		"quantity":       4,
		"reservationRef": "ord-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["replayed"])

	w = doJSON(t, router, http.MethodPost, "/api/inventory/release", "order_service", map[string]any{
		"productId":      "sku-1",
		"reservationRef": "ord-1",
		"mode":           "CONSUME",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	record = decodeBody(t, w)["record"].(map[string]any)
	assert.Equal(t, float64(6), record["quantityOnHand"])
	assert.Equal(t, float64(0), record["quantityReserved"])

	w = doJSON(t, router, http.MethodGet, "/api/inventory/product/sku-1/reconcile", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["consistent"])
}

func TestInsufficientStockOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/inventory", "admin", map[string]any{
		"productId":     "sku-1",
		"initialOnHand": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/inventory/reserve", "order_service", map[string]any{
		"productId":      "sku-1",
		"quantity":       5,
		"reservationRef": "ord-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeBody(t, w)["code"])
}

func TestRoleEnforcementOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		role       string
		body       any
		wantStatus int
	}{
		{"create unauthenticated", http.MethodPost, "/api/inventory", "", map[string]any{"productId": "x"}, http.StatusUnauthorized},
		{"create as viewer", http.MethodPost, "/api/inventory", "viewer", map[string]any{"productId": "x"}, http.StatusForbidden},
		{"adjust as order service", http.MethodPost, "/api/inventory/adjust", "order_service",
			map[string]any{"productId": "x", "delta": 1, "reason": "r"}, http.StatusForbidden},
		{"deactivate as staff", http.MethodDelete, "/api/inventory/product/x", "warehouse_staff", nil, http.StatusForbidden},
		{"list as viewer", http.MethodGet, "/api/inventory", "viewer", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, tt.role, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestMovementListingOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/inventory", "admin", map[string]any{
		"productId":     "sku-1",
		"initialOnHand": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < 3; i++ {
		w = doJSON(t, router, http.MethodPost, "/api/inventory/reserve", "order_service", map[string]any{
			"productId":      "sku-1",
			"quantity":       1,
			"reservationRef": fmt.Sprintf("ord-%d", i),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/inventory/movements?productId=sku-1&type=RESERVE", "viewer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["items"].([]any)
	assert.Len(t, items, 3)

	w = doJSON(t, router, http.MethodGet, "/api/inventory/movements?from=not-a-date", "viewer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownProductOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/inventory/product/ghost", "viewer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, w)["code"])
}
