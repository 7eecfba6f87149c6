package source

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"os"
	"strings"
	"time"

	"callreport-server/pkg/errors"
	"callreport-server/pkg/metrics"
	"callreport-server/pkg/records"

	"github.com/sirupsen/logrus"
)

// Row outcomes reported to metrics
const (
	rowLoaded      = "loaded"
	rowOutOfWindow = "out_of_window"
	rowBadDate     = "bad_date"
	rowMalformed   = "malformed"
	rowOverLimit   = "over_limit"
)

// Column aliases, matched after lowercasing and dropping spaces, dashes and underscores
var (
	colFrom      = []string{"from"}
	colTo        = []string{"to"}
	colDirection = []string{"direction"}
	colStatus    = []string{"status"}
	colDuration  = []string{"duration", "durationseconds"}
	colParent    = []string{"parentcallsid", "parentcallid", "parentid"}
	colStartTime = []string{"starttime", "datecreated", "date"}
	colBody      = []string{"body", "message"}
	colSentAt    = []string{"datesent", "sentdate", "datecreated", "date"}
)

// Timestamp layouts seen in provider exports
var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// CSVConfig holds CSV source configuration
type CSVConfig struct {
	CallsPath    string
	MessagesPath string
	// Limit caps the records returned per kind after window filtering; 0 means no cap
	Limit int
	// Location is used for timestamps without a zone
	Location *time.Location
}

// CSVSource reads call and message logs exported by the telephony provider.
// The files are re-read on every fetch so a replaced export is picked up.
type CSVSource struct {
	config CSVConfig
	logger *logrus.Logger
}

// NewCSVSource creates a new CSV record source
func NewCSVSource(config CSVConfig, logger *logrus.Logger) *CSVSource {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &CSVSource{config: config, logger: logger}
}

type columns map[string]int

func (c columns) find(aliases []string) int {
	for _, a := range aliases {
		if i, ok := c[a]; ok {
			return i
		}
	}
	return -1
}

func headerKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// rowVisitor receives each data row; it returns the row outcome
type rowVisitor func(row []string) string

// scan opens path, resolves the header and feeds every data row to visit.
// Malformed rows are skipped and counted.
func (s *CSVSource) scan(ctx context.Context, kind, path string, required []string, visit func(columns) rowVisitor) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.NewSourceUnavailable(err, map[string]interface{}{"path": path, "kind": kind})
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return errors.NewInvalidRecordFile(path, "missing header row")
	}
	cols := make(columns, len(header))
	for i, h := range header {
		if _, dup := cols[headerKey(h)]; !dup {
			cols[headerKey(h)] = i
		}
	}
	for _, name := range required {
		if cols.find([]string{name}) < 0 {
			return errors.NewInvalidRecordFile(path, "missing "+name+" column")
		}
	}

	handle := visit(cols)
	counts := make(map[string]int)
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if stderrors.As(err, &parseErr) {
				counts[rowMalformed]++
				s.logger.WithFields(logrus.Fields{
					"path": path,
					"line": parseErr.Line,
				}).WithError(err).Debug("Skipping malformed CSV row")
				continue
			}
			return errors.NewSourceUnavailable(err, map[string]interface{}{"path": path, "kind": kind})
		}

		counts[handle(row)]++
	}

	for outcome, n := range counts {
		metrics.RecordSourceRows(kind, outcome, n)
	}
	s.logger.WithFields(logrus.Fields{
		"kind":          kind,
		"path":          path,
		"loaded":        counts[rowLoaded],
		"out_of_window": counts[rowOutOfWindow],
		"bad_date":      counts[rowBadDate],
		"malformed":     counts[rowMalformed],
		"over_limit":    counts[rowOverLimit],
	}).Debug("Read record file")

	return nil
}

// inWindow decides the outcome for a row timestamp. An unbounded window
// accepts every row, including rows without a usable date.
func (s *CSVSource) inWindow(raw string, w Window) (time.Time, string) {
	if !w.Bounded() {
		t, _ := parseTime(raw, s.config.Location)
		return t, rowLoaded
	}
	t, ok := parseTime(raw, s.config.Location)
	if !ok {
		return time.Time{}, rowBadDate
	}
	if !w.Contains(t) {
		return t, rowOutOfWindow
	}
	return t, rowLoaded
}

func (s *CSVSource) underLimit(n int) bool {
	return s.config.Limit <= 0 || n < s.config.Limit
}

// Calls reads the call log
func (s *CSVSource) Calls(ctx context.Context, w Window) ([]records.CallRecord, error) {
	if s.config.CallsPath == "" {
		return nil, nil
	}

	var out []records.CallRecord
	err := s.scan(ctx, "call", s.config.CallsPath, []string{"from", "to"}, func(cols columns) rowVisitor {
		from, to := cols.find(colFrom), cols.find(colTo)
		direction, status := cols.find(colDirection), cols.find(colStatus)
		duration, parent, start := cols.find(colDuration), cols.find(colParent), cols.find(colStartTime)

		return func(row []string) string {
			ts, outcome := s.inWindow(field(row, start), w)
			if outcome != rowLoaded {
				return outcome
			}
			if !s.underLimit(len(out)) {
				return rowOverLimit
			}
			out = append(out, records.CallRecord{
				From:      field(row, from),
				To:        field(row, to),
				Direction: field(row, direction),
				Status:    field(row, status),
				Duration:  records.ParseDuration(field(row, duration)),
				ParentID:  field(row, parent),
				StartTime: ts,
			})
			return rowLoaded
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Messages reads the message log
func (s *CSVSource) Messages(ctx context.Context, w Window) ([]records.MessageRecord, error) {
	if s.config.MessagesPath == "" {
		return nil, nil
	}

	var out []records.MessageRecord
	err := s.scan(ctx, "message", s.config.MessagesPath, []string{"from", "to"}, func(cols columns) rowVisitor {
		from, to := cols.find(colFrom), cols.find(colTo)
		direction, status := cols.find(colDirection), cols.find(colStatus)
		body, sent := cols.find(colBody), cols.find(colSentAt)

		return func(row []string) string {
			ts, outcome := s.inWindow(field(row, sent), w)
			if outcome != rowLoaded {
				return outcome
			}
			if !s.underLimit(len(out)) {
				return rowOverLimit
			}
			// Bodies keep their whitespace
			var text string
			if body >= 0 && body < len(row) {
				text = row[body]
			}
			out = append(out, records.MessageRecord{
				From:      field(row, from),
				To:        field(row, to),
				Direction: field(row, direction),
				Status:    field(row, status),
				Body:      text,
				SentAt:    ts,
			})
			return rowLoaded
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseTime(raw string, loc *time.Location) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
