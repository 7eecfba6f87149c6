package messaging

import (
	"context"

	"callreport-server/pkg/report"
)

// ReportPublisher hands finished reports to downstream consumers
type ReportPublisher interface {
	PublishReport(ctx context.Context, rep *report.Report) error
	IsConnected() bool
	Connect(ctx context.Context) error
	Disconnect()
}

var _ ReportPublisher = (*AMQPClient)(nil)
