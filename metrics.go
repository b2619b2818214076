package yrb

import "github.com/prometheus/client_golang/prometheus"

var TransactionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "transaction",
	Name:      "total",
}, []string{"state"})

var ObserverDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "observer",
	Name:      "deliveries",
}, []string{"kind"})

var UpdatesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "update",
	Name:      "applied",
}, []string{"result"})

var UpdateBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "yrb",
	Subsystem: "update",
	Name:      "bytes",
	Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
})

var ConversionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "codec",
	Name:      "conversion_failures",
}, []string{"direction"})

// RegisterMetrics registers every collector of the package.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		TransactionCount,
		ObserverDeliveries,
		UpdatesApplied,
		UpdateBytes,
		ConversionFailures,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
