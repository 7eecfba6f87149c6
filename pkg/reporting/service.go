// Package reporting runs the activity report pipeline: fetch records from a
// source, attribute and aggregate them, build the report and hand it on.
package reporting

import (
	"context"
	"time"

	"callreport-server/pkg/aggregate"
	"callreport-server/pkg/classify"
	"callreport-server/pkg/correlation"
	"callreport-server/pkg/directory"
	"callreport-server/pkg/errors"
	"callreport-server/pkg/metrics"
	"callreport-server/pkg/report"
	"callreport-server/pkg/source"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Run statuses reported to metrics
const (
	statusSuccess     = "success"
	statusFetchFailed = "fetch_failed"
)

// Publisher hands a finished report to downstream consumers
type Publisher interface {
	PublishReport(ctx context.Context, rep *report.Report) error
}

// Config holds report service configuration
type Config struct {
	CampaignThreshold int
	Location          *time.Location
	DefaultWindow     string
}

// Service produces activity reports for the tracked numbers in a directory
type Service struct {
	source    source.Source
	directory *directory.Directory
	config    Config
	logger    *logrus.Logger
	publisher Publisher
	now       func() time.Time
}

// NewService creates a new report service. publisher may be nil.
func NewService(src source.Source, dir *directory.Directory, config Config, logger *logrus.Logger, publisher Publisher) *Service {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.DefaultWindow == "" {
		config.DefaultWindow = source.Window7Days
	}

	logger.WithFields(logrus.Fields{
		"tracked_numbers":    dir.Len(),
		"campaign_threshold": config.CampaignThreshold,
		"timezone":           config.Location.String(),
		"default_window":     config.DefaultWindow,
		"publishing":         publisher != nil,
	}).Info("Report service initialized")

	return &Service{
		source:    src,
		directory: dir,
		config:    config,
		logger:    logger,
		publisher: publisher,
		now:       time.Now,
	}
}

// Window resolves a window label relative to the current time. An empty
// label selects the configured default.
func (s *Service) Window(label string) (source.Window, error) {
	if label == "" {
		label = s.config.DefaultWindow
	}
	return source.ParseWindow(label, s.now(), s.config.Location)
}

// RunLabel resolves label and runs the report for that window
func (s *Service) RunLabel(ctx context.Context, label string) (*report.Report, error) {
	w, err := s.Window(label)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, w)
}

// Run fetches the records inside w and builds the report. A fetch failure
// fails the run before any aggregation happens.
func (s *Service) Run(ctx context.Context, w source.Window) (*report.Report, error) {
	done := metrics.ObserveReport()
	defer done()

	runID := uuid.New().String()
	logger := s.logger.WithFields(correlation.ContextFields(ctx)).WithFields(logrus.Fields{
		"run_id": runID,
		"window": w.Label,
	})

	calls, err := s.source.Calls(ctx, w)
	if err != nil {
		metrics.RecordReportRun(statusFetchFailed)
		logger.WithError(err).Error("Failed to fetch call records")
		return nil, errors.Wrap(err, "failed to fetch call records", map[string]interface{}{
			"run_id": runID,
			"window": w.Label,
		})
	}

	messages, err := s.source.Messages(ctx, w)
	if err != nil {
		metrics.RecordReportRun(statusFetchFailed)
		logger.WithError(err).Error("Failed to fetch message records")
		return nil, errors.Wrap(err, "failed to fetch message records", map[string]interface{}{
			"run_id": runID,
			"window": w.Label,
		})
	}

	result := aggregate.Aggregate(calls, messages, s.directory, s.config.CampaignThreshold)
	rep := report.Build(result, s.directory)
	rep.ID = runID
	rep.Window = w.Label
	rep.GeneratedAt = s.now().UTC()

	s.recordStats(result.Stats)
	campaigns := 0
	for _, view := range rep.Campaigns {
		campaigns += len(view.Campaigns)
	}
	metrics.SetReportGauges(len(rep.Rows), campaigns)
	metrics.RecordReportRun(statusSuccess)

	logger.WithFields(logrus.Fields{
		"calls":              len(calls),
		"messages":           len(messages),
		"owners":             len(rep.Rows),
		"campaigns":          campaigns,
		"dropped_child_leg":  result.Stats.Calls[classify.ChildLeg],
		"dropped_incomplete": result.Stats.Calls[classify.NotCompleted],
		"dropped_untracked":  result.Stats.Calls[classify.Untracked] + result.Stats.Messages[classify.Untracked],
	}).Info("Report generated")

	s.publish(ctx, logger, rep)

	return rep, nil
}

func (s *Service) recordStats(stats aggregate.Stats) {
	for reason, n := range stats.Calls {
		metrics.RecordRecords("call", string(reason), n)
		if reason != classify.Attributed {
			s.logger.WithFields(logrus.Fields{
				"kind":   "call",
				"reason": reason,
				"count":  n,
			}).Debug("Records dropped")
		}
	}
	for reason, n := range stats.Messages {
		metrics.RecordRecords("message", string(reason), n)
		if reason != classify.Attributed {
			s.logger.WithFields(logrus.Fields{
				"kind":   "message",
				"reason": reason,
				"count":  n,
			}).Debug("Records dropped")
		}
	}
}

// publish sends the report to the publisher. Failures are logged only.
func (s *Service) publish(ctx context.Context, logger *logrus.Entry, rep *report.Report) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReport(ctx, rep); err != nil {
		logger.WithError(err).Warn("Failed to publish report")
		return
	}
	logger.Debug("Report published")
}
