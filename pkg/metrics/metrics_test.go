package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func TestRecordersAreNoopsWhenDisabled(t *testing.T) {
	EnableMetrics(false)

	assert.NotPanics(t, func() {
		RecordReportRun("success")
		RecordRecords("call", "attributed", 3)
		RecordSourceRows("call", "loaded", 3)
		RecordAMQPPublish("reports", "success")
		SetAMQPConnectionStatus(true)
		SetReportGauges(1, 1)
		ObserveReport()()
	})
}

func TestRecordersUpdateRegistry(t *testing.T) {
	StartMetrics(newTestLogger(), true)
	defer EnableMetrics(false)
	require.NotNil(t, GetRegistry())

	before := testutil.ToFloat64(RecordsTotal.WithLabelValues("message", "untracked"))
	RecordRecords("message", "untracked", 4)
	RecordRecords("message", "untracked", 0)
	assert.Equal(t, before+4, testutil.ToFloat64(RecordsTotal.WithLabelValues("message", "untracked")))

	runs := testutil.ToFloat64(ReportRunsTotal.WithLabelValues("success"))
	RecordReportRun("success")
	assert.Equal(t, runs+1, testutil.ToFloat64(ReportRunsTotal.WithLabelValues("success")))

	SetReportGauges(3, 2)
	assert.Equal(t, float64(3), testutil.ToFloat64(ReportOwners))
	assert.Equal(t, float64(2), testutil.ToFloat64(CampaignsFlagged))

	SetAMQPConnectionStatus(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(AMQPConnectionStatus))
}

func TestRegisterHandlerServesMetrics(t *testing.T) {
	StartMetrics(newTestLogger(), true)
	defer EnableMetrics(false)

	RecordReportRun("error")

	mux := http.NewServeMux()
	RegisterHandler(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "callreport_report_runs_total")
}
