package mirror

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// lastSyncTimestamp is a Gauge that captures the timestamp of the last
	// successful sync of a mirrored package
	lastSyncTimestamp *prometheus.GaugeVec
	// syncCount is a Counter vector of package sync attempts
	syncCount *prometheus.CounterVec
	// syncLatency is a Histogram vector that keeps track of package sync durations
	syncLatency *prometheus.HistogramVec
)

// EnableMetrics will enable metrics collection for package syncs.
// Available metrics are...
//   - elpa_last_package_sync_timestamp - (tags: package)
//     A Gauge that captures the Timestamp of the last successful sync per package.
//   - elpa_package_sync_count - (tags: package,success)
//     A Counter for each package sync, incremented with each attempt and tagged with the result (success=true|false)
//   - elpa_package_sync_latency_seconds - (tags: package)
//     A Histogram that keeps track of the sync latency per package.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastSyncTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_package_sync_timestamp",
		Help:      "Timestamp of the last successful package sync",
	},
		[]string{
			// name of the package
			"package",
		},
	)

	syncCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "package_sync_count",
		Help:      "Count of package sync operations",
	},
		[]string{
			// name of the package
			"package",
			// Whether the sync was successful or not
			"success",
		},
	)

	syncLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "package_sync_latency_seconds",
		Help:      "Latency for package sync",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			// name of the package
			"package",
		},
	)

	registerer.MustRegister(
		lastSyncTimestamp,
		syncCount,
		syncLatency,
	)
}

// recordPackageSync records a package sync attempt by updating all the
// relevant metrics
func recordPackageSync(pkg string, success bool) {
	// if metrics not enabled return
	if lastSyncTimestamp == nil || syncCount == nil {
		return
	}
	if success {
		lastSyncTimestamp.With(prometheus.Labels{
			"package": pkg,
		}).Set(float64(time.Now().Unix()))
	}
	syncCount.With(prometheus.Labels{
		"package": pkg,
		"success": strconv.FormatBool(success),
	}).Inc()
}

func updateSyncLatency(pkg string, start time.Time) {
	// if metrics not enabled return
	if syncLatency == nil {
		return
	}
	syncLatency.WithLabelValues(pkg).Observe(time.Since(start).Seconds())
}
