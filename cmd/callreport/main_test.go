package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"callreport-server/pkg/directory"
	"callreport-server/pkg/errors"
	"callreport-server/pkg/records"
	"callreport-server/pkg/report"
	"callreport-server/pkg/reporting"
	"callreport-server/pkg/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPublisher struct {
	published int
}

func (p *countingPublisher) PublishReport(ctx context.Context, rep *report.Report) error {
	p.published++
	return nil
}

func newTestService(publisher reporting.Publisher) *reporting.Service {
	logger.SetOutput(bytes.NewBuffer(nil))

	dir := directory.New([]directory.Entry{{Number: "+15551230001", Name: "Ann"}})
	src := &source.Static{
		CallRecords: []records.CallRecord{
			{From: "+15551230001", To: "+15559990000", Direction: "outbound-api", Status: "completed", Duration: 60},
		},
	}
	return reporting.NewService(src, dir, reporting.Config{}, logger, publisher)
}

func TestValidateOptions(t *testing.T) {
	for _, format := range []string{report.FormatText, report.FormatCSV, report.FormatJSON} {
		assert.NoError(t, validateOptions(options{format: format}), format)
	}

	err := validateOptions(options{format: "xlsx"})
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))
}

func TestRunOnceRejectsUnknownFormatBeforeRunning(t *testing.T) {
	publisher := &countingPublisher{}
	svc := newTestService(publisher)

	output := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(output, []byte("previous report\n"), 0644))

	err := runOnce(context.Background(), svc, options{window: "all", format: "xlsx", output: output}, &bytes.Buffer{})
	require.Error(t, err)

	assert.Equal(t, 0, publisher.published, "no report is generated or published")
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "previous report\n", string(data), "existing output is left untouched")
}

func TestRunOnceWritesReport(t *testing.T) {
	publisher := &countingPublisher{}
	svc := newTestService(publisher)

	var stdout bytes.Buffer
	require.NoError(t, runOnce(context.Background(), svc, options{window: "all", format: report.FormatCSV}, &stdout))
	assert.Contains(t, stdout.String(), "Ann,+15551230001,0,0.0,1,1.0,0,1")
	assert.Equal(t, 1, publisher.published)

	output := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, runOnce(context.Background(), svc, options{window: "all", format: report.FormatText, output: output}, &stdout))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ann")
}
