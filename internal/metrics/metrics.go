package metrics

import (
	"net/http"

	"chartscan/entity"
	"chartscan/internal/ledger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts ledger decisions; it is installed as the ledger observer.
type Metrics struct {
	registry  *prometheus.Registry
	admitted  *prometheus.CounterVec
	denied    prometheus.Counter
	granted   *prometheus.CounterVec
	premium   prometheus.Counter
	referrals *prometheus.CounterVec
	payments  *prometheus.CounterVec
	analysis  *prometheus.CounterVec
}

var _ ledger.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_scans_admitted_total",
			Help: "Scans admitted by credit source.",
		}, []string{"source"}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscan_scans_denied_total",
			Help: "Scans denied because the quota was exhausted.",
		}),
		granted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_credits_granted_total",
			Help: "Bonus credits granted by source.",
		}, []string{"source"}),
		premium: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartscan_premium_days_total",
			Help: "Premium days activated.",
		}),
		referrals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_referrals_total",
			Help: "Referral attempts by outcome.",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_payments_total",
			Help: "Confirmed payments by provider, product and duplicate flag.",
		}, []string{"provider", "product", "duplicate"}),
		analysis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartscan_analysis_total",
			Help: "Chart analysis calls by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.admitted, m.denied, m.granted, m.premium, m.referrals, m.payments, m.analysis,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanAdmitted(source entity.CreditSource) {
	m.admitted.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) ScanDenied() {
	m.denied.Inc()
}

func (m *Metrics) CreditsGranted(source string, amount int) {
	m.granted.WithLabelValues(source).Add(float64(amount))
}

func (m *Metrics) PremiumActivated(days int) {
	m.premium.Add(float64(days))
}

func (m *Metrics) ReferralProcessed(outcome ledger.ReferralOutcome) {
	m.referrals.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) PaymentApplied(provider entity.PaymentProvider, product entity.Product, duplicate bool) {
	dup := "false"
	if duplicate {
		dup = "true"
	}
	m.payments.WithLabelValues(string(provider), string(product), dup).Inc()
}

// AnalysisDone is called by the bot after each vision call.
func (m *Metrics) AnalysisDone(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.analysis.WithLabelValues(result).Inc()
}
