package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one engine instance.
type Metrics struct {
	PutsTotal        prometheus.Counter
	AsksTotal        prometheus.Counter
	RemovesTotal     prometheus.Counter
	CompactionsTotal prometheus.Counter
	RotationsTotal   prometheus.Counter

	Keys            prometheus.Gauge
	ActiveFileBytes prometheus.Gauge
	SealedFiles     prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg. Each engine
// instance needs its own registerer; registering two instances on the
// same one panics on the duplicate collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bitask",
			Name:      "puts_total",
			Help:      "Total number of put operations",
		}),
		AsksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bitask",
			Name:      "asks_total",
			Help:      "Total number of ask operations",
		}),
		RemovesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bitask",
			Name:      "removes_total",
			Help:      "Total number of remove operations",
		}),
		CompactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bitask",
			Name:      "compactions_total",
			Help:      "Total number of completed compactions",
		}),
		RotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bitask",
			Name:      "rotations_total",
			Help:      "Total number of active file rotations",
		}),
		Keys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bitask",
			Name:      "keys",
			Help:      "Number of live keys in the key directory",
		}),
		ActiveFileBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bitask",
			Name:      "active_file_bytes",
			Help:      "Current size of the active log file",
		}),
		SealedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bitask",
			Name:      "sealed_files",
			Help:      "Number of sealed log files",
		}),
	}
}
