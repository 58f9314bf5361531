package savings

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "perks"
	resultOK         = "ok"
	resultError      = "error"
)

// Metrics holds the counters the service updates.
type Metrics struct {
	refreshes           *prometheus.CounterVec
	statusChanges       *prometheus.CounterVec
	firstRedemptionHook *prometheus.CounterVec
	ledgerWriteFailures prometheus.Counter
}

// NewMetrics registers the service counters with registerer, falling back to
// the default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_total",
			Help:      "Full recomputations of a user's perk state by result.",
		}, []string{"result"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "status_changes_total",
			Help:      "Optimistic benefit status changes by destination status.",
		}, []string{"to"}),
		firstRedemptionHook: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "first_redemption_hook_total",
			Help:      "First redemption notifications by result.",
		}, []string{"result"}),
		ledgerWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_write_failures_total",
			Help:      "Ledger writes that failed after the optimistic update was applied.",
		}),
	}
	collectors := []prometheus.Collector{
		metrics.refreshes,
		metrics.statusChanges,
		metrics.firstRedemptionHook,
		metrics.ledgerWriteFailures,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (metrics *Metrics) observeRefresh(err error) {
	if metrics == nil {
		return
	}
	metrics.refreshes.WithLabelValues(resultLabel(err)).Inc()
}

func (metrics *Metrics) observeStatusChange(to string) {
	if metrics == nil {
		return
	}
	metrics.statusChanges.WithLabelValues(to).Inc()
}

func (metrics *Metrics) observeHook(err error) {
	if metrics == nil {
		return
	}
	metrics.firstRedemptionHook.WithLabelValues(resultLabel(err)).Inc()
}

func (metrics *Metrics) observeLedgerWriteFailure() {
	if metrics == nil {
		return
	}
	metrics.ledgerWriteFailures.Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
