package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilmonitor_readings_total",
		Help: "Readings persisted per vehicle",
	}, []string{"vehicle_id"})

	InvalidReadings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oilmonitor_invalid_readings_total",
		Help: "Readings skipped because a measurement was missing or not finite",
	})

	AlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilmonitor_alerts_total",
		Help: "Alerts persisted per severity",
	}, []string{"severity"})

	AlertsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oilmonitor_alerts_suppressed_total",
		Help: "Alerts dropped by the per-vehicle cooldown",
	})

	StoreWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilmonitor_store_write_failures_total",
		Help: "Failed inserts per relation",
	}, []string{"relation"})

	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oilmonitor_notification_failures_total",
		Help: "Critical alert notifications that could not be delivered",
	})

	PredictedStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilmonitor_predicted_status_total",
		Help: "Classifier verdicts per predicted status",
	}, []string{"status"})

	CriticalProbability = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oilmonitor_critical_probability",
		Help: "Latest model critical probability (0-100) per vehicle",
	}, []string{"vehicle_id"})
)

func init() {
	prometheus.MustRegister(
		ReadingsTotal, InvalidReadings,
		AlertsTotal, AlertsSuppressed,
		StoreWriteFailures, NotificationFailures,
		PredictedStatus, CriticalProbability,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
