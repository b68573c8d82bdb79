package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ItemOriginated("gold")
	m.ItemOriginated("gold")
	m.ItemOriginated("silver")
	m.PaymentApplied(decimal.NewFromInt(200), decimal.NewFromInt(2000))
	m.PaymentRejected("invalid_input")
	m.InterestMismatch()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsOriginated.WithLabelValues("gold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsApplied))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.amountReceived.WithLabelValues("interest")))
	assert.Equal(t, 2000.0, testutil.ToFloat64(m.amountReceived.WithLabelValues("principal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsRejected.WithLabelValues("invalid_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interestMismatches))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PaymentApplied(decimal.NewFromInt(10), decimal.Zero)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pawnledger_payments_applied_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.InterestMismatch()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.interestMismatches))
}
