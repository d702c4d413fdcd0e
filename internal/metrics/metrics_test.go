package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/ledger"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ScanAdmitted(entity.SourceFreeAllowance)
	m.ScanAdmitted(entity.SourceFreeAllowance)
	m.ScanAdmitted(entity.SourcePremium)
	m.ScanDenied()
	m.CreditsGranted("referrer", 5)
	m.ReferralProcessed(ledger.ReferralApplied)
	m.PaymentApplied(entity.ProviderStripe, entity.ProductScans, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.admitted.WithLabelValues("free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admitted.WithLabelValues("premium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.denied))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.granted.WithLabelValues("referrer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("stripe", "scans", "true")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ScanDenied()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chartscan_scans_denied_total 1")
}
