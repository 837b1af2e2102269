// Package metrics provides Prometheus metrics for the intake pipeline.
// Labels never carry session or entry ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// IntakeAcceptedTotal counts items that passed the content type filter.
	IntakeAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_accepted_total",
		Help: "Total number of submitted items accepted for upload.",
	})

	// IntakeRejectedTotal counts items dropped by the content type filter.
	IntakeRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_rejected_total",
		Help: "Total number of submitted items dropped by the content type filter.",
	})

	// UploadsStartedTotal counts upload tasks that reached the uploading state.
	UploadsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_uploads_started_total",
		Help: "Total number of upload tasks started.",
	})

	// UploadsCompletedTotal counts finished upload tasks by outcome (success, error).
	UploadsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdf_intake_uploads_completed_total",
		Help: "Total number of upload tasks completed, by outcome.",
	}, []string{"outcome"})

	// UploadsSuppressedTotal counts tasks that did not run because their session ended.
	UploadsSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_uploads_suppressed_total",
		Help: "Total number of scheduled upload tasks suppressed by session teardown.",
	})

	// UploadsInFlight tracks tasks currently waiting on the ingestion endpoint.
	UploadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdf_intake_uploads_in_flight",
		Help: "Current number of uploads waiting on the ingestion endpoint.",
	})

	// NotificationsDroppedTotal counts store notifications dropped on full subscribers.
	NotificationsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_notifications_dropped_total",
		Help: "Total number of status notifications dropped because a subscriber was full.",
	})

	// ActiveSessions tracks open intake sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdf_intake_active_sessions",
		Help: "Current number of open intake sessions.",
	})

	// JournalErrorsTotal counts transitions the journal failed to record.
	JournalErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_journal_errors_total",
		Help: "Total number of status transitions the journal failed to record.",
	})

	// SpoolDeletedTotal counts spooled payloads removed after their upload settled.
	SpoolDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_intake_spool_deleted_total",
		Help: "Total number of spooled payloads deleted.",
	})
)

// Outcome label values for UploadsCompletedTotal.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Value reads the current value of a counter or gauge. Other metric kinds
// read as zero.
func Value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return 0
	}
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	}
	return 0
}
