package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LedgerMethodGetTransaction = "get_transaction"
	LedgerMethodCurrentSlot    = "current_slot"
)

const (
	LedgerOutcomeOK        = "ok"
	LedgerOutcomeNotFound  = "not_found"
	LedgerOutcomeTransient = "transient"
	LedgerOutcomeThrottled = "throttled"
)

const (
	ClaimOutcomeCreated     = "created"
	ClaimOutcomeReentered   = "reentered"
	ClaimOutcomeAlreadyUsed = "already_used"
)

// PaymentMetrics tracks ledger dependencies and replay protection.
type PaymentMetrics struct {
	ledgerDuration *prometheus.HistogramVec
	ledgerCalls    *prometheus.CounterVec
	claims         *prometheus.CounterVec
	finalized      *prometheus.CounterVec
	retries        *prometheus.CounterVec
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// Payments returns the singleton payment metrics registry.
func Payments() *PaymentMetrics {
	return PaymentsWithConfig(Config{})
}

// PaymentsWithConfig returns the singleton payment metrics registry using config labels.
func PaymentsWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	ledgerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tugas_ledger_rpc_duration_seconds",
		Help:        "Ledger RPC latency by network, method and outcome.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"network", "method", "outcome"})
	ledgerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tugas_ledger_rpc_calls_total",
		Help:        "Ledger RPC calls by network, method and outcome.",
		ConstLabels: constLabels,
	}, []string{"network", "method", "outcome"})
	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tugas_payment_claims_total",
		Help:        "Transaction reference claims by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tugas_payment_records_finalized_total",
		Help:        "Payment record status transitions.",
		ConstLabels: constLabels,
	}, []string{"status"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tugas_ledger_rpc_retries_total",
		Help:        "Ledger RPC retries after transient failures.",
		ConstLabels: constLabels,
	}, []string{"network", "method"})

	registerer.MustRegister(ledgerDuration, ledgerCalls, claims, finalized, retries)

	return &PaymentMetrics{
		ledgerDuration: ledgerDuration,
		ledgerCalls:    ledgerCalls,
		claims:         claims,
		finalized:      finalized,
		retries:        retries,
	}
}

func (m *PaymentMetrics) ObserveLedgerCall(network, method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ledgerDuration.WithLabelValues(network, method, outcome).Observe(elapsed.Seconds())
	m.ledgerCalls.WithLabelValues(network, method, outcome).Inc()
}

func (m *PaymentMetrics) IncLedgerRetry(network, method string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(network, method).Inc()
}

func (m *PaymentMetrics) IncClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *PaymentMetrics) IncFinalized(status string) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(strings.ToLower(status)).Inc()
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "tugas"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
