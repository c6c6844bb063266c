package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures settlement pipeline health signals.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	payoutTransitions *prometheus.CounterVec
	lockConflicts     prometheus.Counter
	ledgerTransitions *prometheus.CounterVec
	fraudFlags        *prometheus.CounterVec
	sweepRuns         prometheus.Counter
	sweepDuration     prometheus.Histogram
	sweepPaid         prometheus.Counter
	penaltyDispatches *prometheus.CounterVec
}

// New registers the settlement metrics on the given registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payrail",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		payoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "payout_transitions_total",
			Help:      "Payout request status transitions.",
		}, []string{"from", "to"}),
		lockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "ledger_lock_conflicts_total",
			Help:      "Lost ledger lock races during payout requests.",
		}),
		ledgerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "ledger_entry_transitions_total",
			Help:      "Ledger entry status transitions.",
		}, []string{"to"}),
		fraudFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "fraud_flags_raised_total",
			Help:      "Fraud flags raised at payout evaluation.",
		}, []string{"flag_type"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "clearing_sweep_runs_total",
			Help:      "Clearing sweep executions.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "payrail",
			Name:      "clearing_sweep_duration_seconds",
			Help:      "Clearing sweep latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "clearing_sweep_paid_total",
			Help:      "Payout requests transitioned to paid by the sweep.",
		}),
		penaltyDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payrail",
			Name:      "penalty_dispatches_total",
			Help:      "Penalty outbox dispatch outcomes.",
		}, []string{"outcome"}),
	}

	registerer.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.payoutTransitions,
		m.lockConflicts,
		m.ledgerTransitions,
		m.fraudFlags,
		m.sweepRuns,
		m.sweepDuration,
		m.sweepPaid,
		m.penaltyDispatches,
	)
	return m
}

// NewForTest registers metrics on an isolated registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) IncPayoutTransition(from, to string) {
	if m == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncLockConflict() {
	if m == nil {
		return
	}
	m.lockConflicts.Inc()
}

func (m *Metrics) IncLedgerTransition(to string) {
	if m == nil {
		return
	}
	m.ledgerTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncFraudFlag(flagType string) {
	if m == nil {
		return
	}
	m.fraudFlags.WithLabelValues(flagType).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration, paid int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(d.Seconds())
	m.sweepPaid.Add(float64(paid))
}

func (m *Metrics) IncPenaltyDispatch(outcome string) {
	if m == nil {
		return
	}
	m.penaltyDispatches.WithLabelValues(outcome).Inc()
}

// GinMiddleware records per-request HTTP metrics.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
