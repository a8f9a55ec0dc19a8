package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "s3mirror"

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// PrometheusCollector exposes a MirrorStats as Prometheus metrics. Values
// are read at scrape time, so no per-increment bookkeeping is needed.
type PrometheusCollector struct {
	stats    *MirrorStats
	inFlight func() int64

	counters    [numCounters]*prometheus.Desc
	failures    *prometheus.Desc
	duration    *prometheus.Desc
	complete    *prometheus.Desc
	outstanding *prometheus.Desc
}

// NewPrometheusCollector returns a collector for s. inFlight, when non-nil,
// reports the number of jobs submitted but not yet complete.
func NewPrometheusCollector(s *MirrorStats, inFlight func() int64) *PrometheusCollector {
	c := &PrometheusCollector{
		stats:    s,
		inFlight: inFlight,
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "failed_operations"),
			"Failed operations recorded with details, by kind.",
			[]string{"kind"}, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "run_duration_seconds"),
			"Wall-clock time since the run started.",
			nil, nil,
		),
		complete: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "completed_fully"),
			"1 while no failure has been recorded.",
			nil, nil,
		),
		outstanding: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "jobs_outstanding"),
			"Jobs submitted but not yet complete.",
			nil, nil,
		),
	}
	for i := range c.counters {
		name := Counter(i).metricName()
		c.counters[i] = prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", name),
			"Mirror counter "+Counter(i).String()+".",
			nil, nil,
		)
	}
	return c
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.failures
	ch <- c.duration
	ch <- c.complete
	ch <- c.outstanding
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	for i, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(snap.Counters[i]))
	}
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(len(snap.FailedCopies)), "copy")
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(len(snap.FailedDeletes)), "delete")
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, snap.Elapsed.Seconds())

	complete := 0.0
	if snap.CompletedFully {
		complete = 1
	}
	ch <- prometheus.MustNewConstMetric(c.complete, prometheus.GaugeValue, complete)

	var inFlight int64
	if c.inFlight != nil {
		inFlight = c.inFlight()
	}
	ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(inFlight))
}

var metricNames = [numCounters]string{
	Listings:       "listings_total",
	ListingErrors:  "listing_errors_total",
	ObjectsRead:    "objects_read_total",
	ObjectsCopied:  "objects_copied_total",
	ObjectsPut:     "objects_uploaded_total",
	ObjectsSkipped: "objects_skipped_total",
	CopyErrors:     "copy_errors_total",
	ObjectsDeleted: "objects_deleted_total",
	DeleteErrors:   "delete_errors_total",
	GetOps:         "get_operations_total",
	PutOps:         "put_operations_total",
	CopyOps:        "copy_operations_total",
	DeleteOps:      "delete_operations_total",
	RestoreOps:     "restore_operations_total",
	BytesCopied:    "bytes_copied_total",
	BytesUploaded:  "bytes_uploaded_total",
}

func (c Counter) metricName() string { return metricNames[c] }
