package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sentinel_"

	resultSuccess = "success"
	resultError   = "error"

	notificationDispatched = "dispatched"
	notificationCancelled  = "cancelled"
	notificationFailed     = "failed"
)

var (
	registerOnce sync.Once

	signalRequests *prometheus.CounterVec
	signalErrors   *prometheus.CounterVec
	signalLatency  *prometheus.HistogramVec

	ruleFirings *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec

	snapshotSaves *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	visionRequests *prometheus.CounterVec
	visionLatency  *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		signalRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "signal_requests_total",
				Help: "Total signal submissions by kind and result",
			},
			[]string{"kind", "result"},
		)
		signalErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "signal_errors_total",
				Help: "Total rejected signal submissions by kind",
			},
			[]string{"kind"},
		)
		signalLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "signal_latency_seconds",
				Help:    "Signal handling latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		ruleFirings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_firings_total",
				Help: "Total rule firings by alert type",
			},
			[]string{"type"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type",
			},
			[]string{"event"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total debounced notifications by outcome",
			},
			[]string{"outcome"},
		)

		snapshotSaves = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_saves_total",
				Help: "Total evidence snapshot writes by result",
			},
			[]string{"result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total alert report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Alert report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		visionRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "vision_requests_total",
				Help: "Total vision analysis calls by result",
			},
			[]string{"result"},
		)
		visionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "vision_latency_seconds",
				Help:    "Vision analysis latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			signalRequests,
			signalErrors,
			signalLatency,
			ruleFirings,
			alertEventsTotal,
			notificationsTotal,
			snapshotSaves,
			reportExportTotal,
			reportExportLatency,
			visionRequests,
			visionLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSignal records signal handling duration and result.
func ObserveSignal(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if signalRequests != nil {
		signalRequests.WithLabelValues(kind, result).Inc()
	}
	if signalLatency != nil {
		signalLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncSignalError increments the rejected signal counter.
func IncSignalError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if signalErrors != nil {
		signalErrors.WithLabelValues(kind).Inc()
	}
}

// IncRuleFired increments rule firing counter by alert type.
func IncRuleFired(alertType string) {
	if alertType == "" {
		alertType = "unknown"
	}
	if ruleFirings != nil {
		ruleFirings.WithLabelValues(alertType).Inc()
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncNotification increments notification outcome counter.
func IncNotification(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncSnapshotSave increments snapshot write counter by result.
func IncSnapshotSave(result string) {
	if result == "" {
		result = resultSuccess
	}
	if snapshotSaves != nil {
		snapshotSaves.WithLabelValues(result).Inc()
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveVision records vision analysis latency and result.
func ObserveVision(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if visionRequests != nil {
		visionRequests.WithLabelValues(result).Inc()
	}
	if visionLatency != nil {
		visionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	NotificationDispatched = notificationDispatched
	NotificationCancelled  = notificationCancelled
	NotificationFailed     = notificationFailed
)
