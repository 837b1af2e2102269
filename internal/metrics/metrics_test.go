package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	before := Value(JournalErrorsTotal)
	JournalErrorsTotal.Inc()
	assert.Equal(t, before+1, Value(JournalErrorsTotal))

	ActiveSessions.Set(3)
	assert.Equal(t, float64(3), Value(ActiveSessions))
	ActiveSessions.Set(0)

	success := UploadsCompletedTotal.WithLabelValues(OutcomeSuccess)
	before = Value(success)
	success.Add(2)
	assert.Equal(t, before+2, Value(success))
}

func TestMetricsRegistered(t *testing.T) {
	UploadsCompletedTotal.WithLabelValues(OutcomeError)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"pdf_intake_accepted_total",
		"pdf_intake_rejected_total",
		"pdf_intake_uploads_started_total",
		"pdf_intake_uploads_completed_total",
		"pdf_intake_uploads_suppressed_total",
		"pdf_intake_uploads_in_flight",
		"pdf_intake_notifications_dropped_total",
		"pdf_intake_active_sessions",
		"pdf_intake_journal_errors_total",
		"pdf_intake_spool_deleted_total",
	} {
		assert.True(t, names[want], "metric %s not registered", want)
	}
}
