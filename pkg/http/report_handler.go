package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"callreport-server/pkg/correlation"
	"callreport-server/pkg/errors"
	"callreport-server/pkg/report"

	"github.com/sirupsen/logrus"
)

var reportContentTypes = map[string]string{
	report.FormatJSON: "application/json",
	report.FormatCSV:  "text/csv; charset=utf-8",
	report.FormatText: "text/plain; charset=utf-8",
}

// ReportHandler handles GET /api/report?window=<label>&format=json|csv|text
func (s *Server) ReportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.reports == nil {
		s.ErrorResponse(w, errors.New("report service not initialized").WithCode("UNAVAILABLE"))
		return
	}

	query := r.URL.Query()
	window := query.Get("window")
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = report.FormatJSON
	}
	contentType, ok := reportContentTypes[format]
	if !ok {
		s.ErrorResponse(w, errors.NewInvalidInput(fmt.Sprintf("unsupported report format: %s", format), map[string]interface{}{
			"format": format,
		}))
		return
	}

	rep, err := s.reports.RunLabel(r.Context(), window)
	if err != nil {
		s.ErrorResponse(w, err)
		return
	}

	// Render fully before writing headers so a render failure still gets an error status
	var body bytes.Buffer
	if err := report.Write(&body, rep, format); err != nil {
		s.ErrorResponse(w, errors.Wrap(err, "failed to render report"))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Report-ID", rep.ID)
	if format == report.FormatCSV {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="activity-report-%s.csv"`, rep.Window))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body.Bytes()); err != nil {
		s.logger.WithError(err).Debug("Failed to write report response")
	}

	s.logger.WithFields(correlation.ContextFields(r.Context())).WithFields(logrus.Fields{
		"report_id": rep.ID,
		"window":    rep.Window,
		"format":    format,
		"owners":    len(rep.Rows),
	}).Debug("Report served")
}
