package monitor

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counters are updated by the monitor and its executor and read by the
// collector.
type counters struct {
	cycles              atomic.Uint64
	cycleErrors         atomic.Uint64
	lastDuration        atomic.Int64 // nanoseconds
	terminations        atomic.Uint64
	terminationFailures atomic.Uint64
	invalidSelections   atomic.Uint64
}

// Collector exports the last completed cycle and the monitor's counters.
// It reads cached state only; scraping never triggers a sample.
type Collector struct {
	m *Monitor

	connectionsDesc   *prometheus.Desc
	suspiciousDesc    *prometheus.Desc
	sampledDesc       *prometheus.Desc
	historyDesc       *prometheus.Desc
	watchlistDesc     *prometheus.Desc
	cyclesDesc        *prometheus.Desc
	cycleErrorsDesc   *prometheus.Desc
	cycleDurationDesc *prometheus.Desc
	lastCycleDesc     *prometheus.Desc
	terminationsDesc  *prometheus.Desc
}

// NewCollector creates a Collector for m.
func NewCollector(m *Monitor) *Collector {
	return &Collector{
		m:                 m,
		connectionsDesc:   prometheus.NewDesc("tcpmon_connections", "TCP connections passing the filter in the last cycle", []string{"status"}, nil),
		suspiciousDesc:    prometheus.NewDesc("tcpmon_suspicious_connections", "Connections on a watchlisted port in the last cycle", nil, nil),
		sampledDesc:       prometheus.NewDesc("tcpmon_sampled_connections", "TCP connections sampled in the last cycle, before filtering", nil, nil),
		historyDesc:       prometheus.NewDesc("tcpmon_history_entries", "Entries held in the rolling count history", nil, nil),
		watchlistDesc:     prometheus.NewDesc("tcpmon_watchlist_ports", "Ports on the suspicious-port watchlist", nil, nil),
		cyclesDesc:        prometheus.NewDesc("tcpmon_cycles_total", "Sampling cycles completed", nil, nil),
		cycleErrorsDesc:   prometheus.NewDesc("tcpmon_cycle_errors_total", "Sampling cycles that failed to read the connection table", nil, nil),
		cycleDurationDesc: prometheus.NewDesc("tcpmon_cycle_duration_seconds", "Duration of the last sampling cycle", nil, nil),
		lastCycleDesc:     prometheus.NewDesc("tcpmon_last_cycle_timestamp_seconds", "Unix time the last cycle started", nil, nil),
		terminationsDesc:  prometheus.NewDesc("tcpmon_terminations_total", "Termination requests by result", []string{"result"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectionsDesc
	ch <- c.suspiciousDesc
	ch <- c.sampledDesc
	ch <- c.historyDesc
	ch <- c.watchlistDesc
	ch <- c.cyclesDesc
	ch <- c.cycleErrorsDesc
	ch <- c.cycleDurationDesc
	ch <- c.lastCycleDesc
	ch <- c.terminationsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	last := c.m.LastCycle()
	cnt := c.m.counters

	byStatus := make(map[string]int)
	for _, r := range last.Records {
		byStatus[r.Status]++
	}
	for status, n := range byStatus {
		ch <- prometheus.MustNewConstMetric(c.connectionsDesc, prometheus.GaugeValue, float64(n), status)
	}

	var lastUnix float64
	if !last.At.IsZero() {
		lastUnix = float64(last.At.UnixNano()) / float64(time.Second)
	}

	ch <- prometheus.MustNewConstMetric(c.suspiciousDesc, prometheus.GaugeValue, float64(last.Suspicious))
	ch <- prometheus.MustNewConstMetric(c.sampledDesc, prometheus.GaugeValue, float64(last.Sampled))
	ch <- prometheus.MustNewConstMetric(c.historyDesc, prometheus.GaugeValue, float64(len(c.m.CurrentHistory())))
	ch <- prometheus.MustNewConstMetric(c.watchlistDesc, prometheus.GaugeValue, float64(c.m.watchlist.Len()))
	ch <- prometheus.MustNewConstMetric(c.cyclesDesc, prometheus.CounterValue, float64(cnt.cycles.Load()))
	ch <- prometheus.MustNewConstMetric(c.cycleErrorsDesc, prometheus.CounterValue, float64(cnt.cycleErrors.Load()))
	ch <- prometheus.MustNewConstMetric(c.cycleDurationDesc, prometheus.GaugeValue, time.Duration(cnt.lastDuration.Load()).Seconds())
	ch <- prometheus.MustNewConstMetric(c.lastCycleDesc, prometheus.GaugeValue, lastUnix)
	ch <- prometheus.MustNewConstMetric(c.terminationsDesc, prometheus.CounterValue, float64(cnt.terminations.Load()), "ok")
	ch <- prometheus.MustNewConstMetric(c.terminationsDesc, prometheus.CounterValue, float64(cnt.terminationFailures.Load()), "failed")
	ch <- prometheus.MustNewConstMetric(c.terminationsDesc, prometheus.CounterValue, float64(cnt.invalidSelections.Load()), "invalid")
}
