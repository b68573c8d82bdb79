package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/pawnledger/pkg/insights"
	"github.com/mcclellann/pawnledger/pkg/interest"
	"github.com/mcclellann/pawnledger/pkg/ledger"
	"github.com/mcclellann/pawnledger/pkg/metrics"
	"github.com/mcclellann/pawnledger/pkg/models"
	"github.com/mcclellann/pawnledger/pkg/store"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	t       *testing.T
	server  *Server
	handler http.Handler
}

func setupTestServer(t *testing.T) *testAPI {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	server := NewServer(s, metrics.New())
	server.now = func() time.Time { return testNow }
	return &testAPI{t: t, server: server, handler: server.Routes([]string{"http://localhost:5173"})}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (a *testAPI) createItem(amount int64) *models.Item {
	a.t.Helper()
	rr := a.do("POST", "/customers", map[string]any{"name": "Meena Kumari", "relation": "daughter_of", "guardian_name": "Raju"})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	customer := decode[models.Customer](a.t, rr)

	rr = a.do("POST", "/items", map[string]any{
		"customer_id": customer.ID,
		"name":        "Gold necklace",
		"category":    "gold",
		"weight":      "25g",
		"amount":      amount,
		"percentage":  2,
		"created_at":  "2024-01-01",
	})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	item := decode[models.Item](a.t, rr)
	return &item
}

func TestAPI_Health(t *testing.T) {
	api := setupTestServer(t)
	rr := api.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestAPI_PaymentFlow(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(100000)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), item.CreatedAt.UTC())

	rr := api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount":  2000,
		"principal_amount": 10000,
		"paid_at":          "2024-01-31",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	receipt := decode[ledger.PaymentReceipt](t, rr)
	assert.True(t, receipt.RemainingAmount.Equal(decimal.NewFromInt(90000)))
	assert.True(t, receipt.TotalPaid.Equal(decimal.NewFromInt(12000)))
	assert.True(t, receipt.AmountPaid.Equal(decimal.NewFromInt(12000)))
	assert.True(t, receipt.InterestPaidTill.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, receipt.Reconciliation.Flagged)

	rr = api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount":  0,
		"principal_amount": 200000,
		"paid_at":          "2024-02-15",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "principal", decode[errorResponse](t, rr).Field)

	rr = api.do("GET", "/items/"+item.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[ledger.PaymentHistory](t, rr)
	require.Len(t, history.Payments, 1)
	assert.True(t, history.Totals.TotalAmountPaid.Equal(decimal.NewFromInt(12000)))
	assert.True(t, history.Item.RemainingAmount.Equal(decimal.NewFromInt(90000)))

	rr = api.do("GET", "/items/"+item.ID.String()+"/interest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[ledger.InterestStatus](t, rr)
	assert.Equal(t, 30, status.Days)
	assert.True(t, status.AccruedInterest.Equal(decimal.NewFromInt(1800)), "accrued %s", status.AccruedInterest)
	require.NotNil(t, status.LastPayment)

	rr = api.do("GET", "/items/"+item.ID.String()+"/interest-history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	records := decode[[]models.InterestRecord](t, rr)
	require.Len(t, records, 1)
	assert.True(t, records[0].ProjectedInterest.Equal(decimal.NewFromInt(2000)))
}

func TestAPI_PaymentDefaultsToNow(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(5000)

	rr := api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{"interest_amount": 200})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	receipt := decode[ledger.PaymentReceipt](t, rr)
	assert.True(t, receipt.PaidAt.Equal(testNow))
}

func TestAPI_SettledItem(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(5000)

	rr := api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount": 100, "principal_amount": 5000, "paid_at": "2024-01-31",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, models.ItemStatusSettled, decode[ledger.PaymentReceipt](t, rr).Status)

	rr = api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount": 10, "paid_at": "2024-02-01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAPI_ErrorMapping(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do("GET", "/items/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do("GET", "/items/5b1f1f2e-8f5c-4d1e-9a41-0a4f6c1d2e3f", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do("POST", "/items/5b1f1f2e-8f5c-4d1e-9a41-0a4f6c1d2e3f/payments", map[string]any{"interest_amount": 10})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do("POST", "/customers", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "name", decode[errorResponse](t, rr).Field)

	req := httptest.NewRequest("POST", "/customers", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CalculateInterest(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do("POST", "/interest/calculate", map[string]any{
		"amount": 100000, "from_date": "2024-01-01", "to_date": "2024-01-31", "monthly_rate": 2,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	quote := decode[interest.Quotation](t, rr)
	assert.Equal(t, 30, quote.Days)
	assert.True(t, quote.Interest.Equal(decimal.NewFromInt(2000)))

	rr = api.do("POST", "/interest/calculate", map[string]any{
		"amount": 100000, "from_date": "2024-01-31", "to_date": "2024-01-01", "monthly_rate": 2,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do("POST", "/interest/calculate", map[string]any{
		"amount": 100000, "from_date": "31/01/2024", "to_date": "2024-02-01", "monthly_rate": 2,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CustomersAndItems(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(1000)

	rr := api.do("GET", "/items?customer_id="+item.CustomerID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[ledger.Page[*models.Item]](t, rr)
	assert.Len(t, items.Data, 1)
	assert.Equal(t, 1, items.Total)

	rr = api.do("PUT", "/items/"+item.ID.String(), map[string]any{"name": "Silver chain", "category": "silver", "weight": "40g"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, models.CategorySilver, decode[models.Item](t, rr).Category)

	rr = api.do("GET", "/customers?name=meena&guardian_name=RAJU", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[ledger.Page[*models.Customer]](t, rr).Data, 1)

	rr = api.do("DELETE", "/customers/"+item.CustomerID.String(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do("DELETE", "/items/"+item.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do("DELETE", "/customers/"+item.CustomerID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do("GET", "/customers/"+item.CustomerID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_ListPagination(t *testing.T) {
	api := setupTestServer(t)
	for _, name := range []string{"Asha", "Bina", "Charu"} {
		rr := api.do("POST", "/customers", map[string]any{"name": name, "address": "Temple Street"})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := api.do("GET", "/customers?page=2&limit=2&sort_by=updated_at&sort_order=asc&address=temple", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"data", "page", "limit", "total"}, keys(body))

	page := decode[ledger.Page[*models.Customer]](t, rr)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Data, 1)

	rr = api.do("GET", "/customers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decode[ledger.Page[*models.Customer]](t, rr)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, ledger.DefaultPageLimit, page.Limit)
	assert.Len(t, page.Data, 3)

	for _, query := range []string{"page=0", "limit=0", "limit=500", "page=x", "sort_by=name", "sort_order=up"} {
		rr = api.do("GET", "/customers?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
		rr = api.do("GET", "/items?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestAPI_RejectsOverPreciseAmounts(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(1000)

	rr := api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount": "10.123456", "paid_at": "2024-01-31",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "interest", decode[errorResponse](t, rr).Field)

	rr = api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount": "10.1234", "paid_at": "2024-01-31",
	})
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestAPI_PaymentBeforeOrigination(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(100000)

	rr := api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"principal_amount": 1, "paid_at": "2023-12-01",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "paid_at", decode[errorResponse](t, rr).Field)

	rr = api.do("GET", "/items/"+item.ID.String()+"/interest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[ledger.InterestStatus](t, rr)
	assert.True(t, status.FromDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, status.AccruedInterest.Equal(decimal.NewFromInt(4000)), "accrued %s", status.AccruedInterest)
}

func TestAPI_Insights(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(100000)
	rr := api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{
		"interest_amount": 2000, "principal_amount": 10000, "paid_at": "2024-01-31",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do("GET", "/insights", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode[insights.Summary](t, rr)
	assert.Equal(t, 1, summary.TotalItems)
	assert.True(t, summary.TotalInterest.Equal(decimal.NewFromInt(2000)))

	rr = api.do("GET", "/insights/monthly?months=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	series := decode[insights.Series](t, rr)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, series.Labels)
	assert.True(t, series.TotalPaid[0].Equal(decimal.NewFromInt(12000)))

	rr = api.do("GET", "/insights/daily?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = api.do("GET", "/insights/daily?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Metrics(t *testing.T) {
	api := setupTestServer(t)
	item := api.createItem(1000)
	api.do("POST", "/items/"+item.ID.String()+"/payments", map[string]any{"interest_amount": 10, "paid_at": "2024-01-31"})

	rr := api.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pawnledger_payments_applied_total 1")
	assert.Contains(t, rr.Body.String(), `pawnledger_items_originated_total{category="gold"} 1`)
}

func TestAPI_CORSPreflight(t *testing.T) {
	api := setupTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/items", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}
