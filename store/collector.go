package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the health of a store's pebble database and its
// update log.
type Collector struct {
	s *Store

	appended        *prometheus.Desc
	queued          *prometheus.Desc
	logs            *prometheus.Desc
	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func desc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("yrb_store_"+name, help, nil, nil)
}

func NewCollector(s *Store) *Collector {
	return &Collector{
		s:               s,
		appended:        desc("updates_appended_total", "Updates appended since the store was opened"),
		queued:          desc("queued_bytes", "Bytes of attached document updates waiting to be written"),
		logs:            desc("documents", "Documents having an update log"),
		compactionCount: desc("pebble_compaction_count_total", "Total number of pebble compactions performed"),
		compactionDebt:  desc("pebble_compaction_estimated_debt_bytes", "Estimated number of bytes pebble needs to compact to reach a stable state"),
		memtableSize:    desc("pebble_memtable_size_bytes", "Current size of the memtable in bytes"),
		memtableCount:   desc("pebble_memtable_count", "Current count of memtables"),
		walSize:         desc("pebble_wal_size_bytes", "Size of the live data in the WAL files"),
		walBytesWritten: desc("pebble_wal_bytes_written_total", "Bytes written to the WAL"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.appended
	ch <- c.queued
	ch <- c.logs
	ch <- c.compactionCount
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walSize
	ch <- c.walBytesWritten
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.s.closed.Load() {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.appended, prometheus.CounterValue, float64(c.s.appended.Load()))
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(c.s.queue.Size()))
	if names, err := c.s.Names(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.logs, prometheus.GaugeValue, float64(len(names)))
	}

	metrics := c.s.db.Metrics()
	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(metrics.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactionDebt, prometheus.GaugeValue, float64(metrics.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(metrics.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(metrics.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(metrics.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(metrics.WAL.BytesWritten))
}
