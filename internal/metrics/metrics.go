// Package metrics defines the Prometheus metrics of structurewatch.
//
// All metrics are registered with the default registry
// and served on the metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NotificationsTotal counts received structure combat notifications by type and whether they were new.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structurewatch_notifications_total",
			Help: "Total structure combat notifications received by type and whether they were new.",
		},
		[]string{"type", "new"},
	)

	// AlertsTotal counts alerts posted to Discord by result.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structurewatch_alerts_total",
			Help: "Total alerts posted by result.",
		},
		[]string{"result"},
	)

	// TimersTotal counts reinforcement timers written by state and action.
	TimersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structurewatch_timers_total",
			Help: "Total reinforcement timers written by state and action.",
		},
		[]string{"state", "action"},
	)

	// TaskRunsTotal counts worker task runs by task and status.
	TaskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structurewatch_task_runs_total",
			Help: "Total worker task runs by task and status.",
		},
		[]string{"task", "status"},
	)

	// TaskDurationSeconds is a histogram of worker task durations.
	TaskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "structurewatch_task_duration_seconds",
			Help:    "Duration of worker task runs in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"task"},
	)

	// CircuitBreakerOpen reports whether a circuit breaker is currently open.
	CircuitBreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "structurewatch_circuit_breaker_open",
			Help: "Whether a circuit breaker is open (1) or not (0).",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(
		NotificationsTotal,
		AlertsTotal,
		TimersTotal,
		TaskRunsTotal,
		TaskDurationSeconds,
		CircuitBreakerOpen,
	)
}

// RecordNotification records a received combat notification.
func RecordNotification(notificationType string, isNew bool) {
	v := "false"
	if isNew {
		v = "true"
	}
	NotificationsTotal.WithLabelValues(notificationType, v).Inc()
}

// RecordAlert records the result of posting an alert.
func RecordAlert(err error) {
	if err != nil {
		AlertsTotal.WithLabelValues("failed").Inc()
		return
	}
	AlertsTotal.WithLabelValues("success").Inc()
}

// RecordTimer records a reinforcement timer which was created or updated.
func RecordTimer(state string, created bool) {
	action := "updated"
	if created {
		action = "created"
	}
	TimersTotal.WithLabelValues(state, action).Inc()
}

// RecordTaskRun records a completed worker task run.
func RecordTaskRun(task string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	TaskRunsTotal.WithLabelValues(task, status).Inc()
	TaskDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordTaskSkipped records a worker task run which was skipped.
func RecordTaskSkipped(task string) {
	TaskRunsTotal.WithLabelValues(task, "skipped").Inc()
}

// RecordCircuitBreakerState records whether a circuit breaker is open.
func RecordCircuitBreakerState(name string, isOpen bool) {
	var v float64
	if isOpen {
		v = 1
	}
	CircuitBreakerOpen.WithLabelValues(name).Set(v)
}
