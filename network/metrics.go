package network

import "github.com/prometheus/client_golang/prometheus"

var PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "yrb",
	Subsystem: "network",
	Name:      "peers",
})

var RecordsSent = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "network",
	Name:      "records_sent",
})

var RecordsReceived = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "network",
	Name:      "records_received",
})

var WriteBatchBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "yrb",
	Subsystem: "network",
	Name:      "write_batch_bytes",
	Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
})

var SessionsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "yrb",
	Subsystem: "network",
	Name:      "sessions_dropped",
}, []string{"reason"})

func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		PeersConnected,
		RecordsSent,
		RecordsReceived,
		WriteBatchBytes,
		SessionsDropped,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
