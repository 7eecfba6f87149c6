package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"callreport-server/pkg/aggregate"
	"callreport-server/pkg/directory"
	"callreport-server/pkg/errors"
	"callreport-server/pkg/records"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice    = "+15551234567"
	bob      = "+15559990000"
	carol    = "+15558880000"
	customer = "+15557654321"
)

func testDirectory() *directory.Directory {
	return directory.New([]directory.Entry{
		{Number: alice, Name: "Alice"},
		{Number: bob, Name: "Bob"},
		{Number: carol, Name: "Carol"},
	})
}

func templated(n int, from, template string) []records.MessageRecord {
	msgs := make([]records.MessageRecord, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, records.MessageRecord{
			From:      from,
			To:        customer,
			Direction: "outbound-api",
			Body:      fmt.Sprintf("Hi Person %d, %s", i, template),
		})
	}
	return msgs
}

func TestMinutes(t *testing.T) {
	tests := map[int]float64{
		0:    0,
		-10:  0,
		2:    0,
		3:    0.1,
		9:    0.2,
		60:   1,
		125:  2.1,
		147:  2.5,
		3600: 60,
	}

	for seconds, want := range tests {
		assert.Equal(t, want, Minutes(seconds), "seconds %d", seconds)
	}
}

func TestBuildEndToEnd(t *testing.T) {
	dir := directory.New([]directory.Entry{{Number: "+15551234567", Name: "Alice"}})
	calls := []records.CallRecord{
		{From: alice, To: customer, Direction: "outbound-api", Status: "completed", Duration: 125},
	}
	messages := templated(10, alice, "We are hiring drivers this week, apply now")
	messages = append(messages, records.MessageRecord{From: customer, To: alice, Direction: "inbound", Body: "Sounds good"})

	rep := Build(aggregate.Aggregate(calls, messages, dir, 10), dir)

	require.Len(t, rep.Rows, 1)
	assert.Equal(t, Row{
		Name:            "Alice",
		Number:          alice,
		OutboundCalls:   1,
		OutboundMinutes: 2.1,
		Messages:        11,
		TotalActivity:   12,
	}, rep.Rows[0])

	require.Len(t, rep.Campaigns, 1)
	assert.Equal(t, []aggregate.TemplateCount{{Template: "We are hiring drivers this week, apply now", Count: 10}}, rep.Campaigns[0].Campaigns)

	require.Len(t, rep.Replies, 1)
	require.Len(t, rep.Replies[0].Messages, 1)
	assert.Equal(t, records.DirectionInbound, rep.Replies[0].Messages[0].Direction)
	assert.Equal(t, "Sounds good", rep.Replies[0].Messages[0].Body)
}

func TestThresholdBoundary(t *testing.T) {
	dir := testDirectory()
	messages := templated(9, alice, "Nine sends of this template body is not enough")
	messages = append(messages, templated(10, bob, "Ten sends of this other template body is enough")...)

	rep := Build(aggregate.Aggregate(nil, messages, dir, 10), dir)

	require.Len(t, rep.Campaigns, 1)
	assert.Equal(t, "Bob", rep.Campaigns[0].Name)
	assert.Equal(t, 10, rep.Campaigns[0].Campaigns[0].Count)

	// sub-threshold sends still count as messages
	for _, row := range rep.Rows {
		if row.Name == "Alice" {
			assert.Equal(t, 9, row.Messages)
		}
	}
}

func TestCampaignsSortedByCount(t *testing.T) {
	dir := testDirectory()
	messages := templated(3, alice, "First template that appears three times only")
	messages = append(messages, templated(5, alice, "Second template that appears five times in total")...)
	messages = append(messages, templated(3, alice, "Third template also appears three times only")...)

	rep := Build(aggregate.Aggregate(nil, messages, dir, 3), dir)

	require.Len(t, rep.Campaigns, 1)
	got := rep.Campaigns[0].Campaigns
	require.Len(t, got, 3)
	assert.Equal(t, 5, got[0].Count)
	assert.Equal(t, "First template that appears three times only", got[1].Template)
	assert.Equal(t, "Third template also appears three times only", got[2].Template)
}

func TestRowsSortedWithStableTies(t *testing.T) {
	dir := testDirectory()
	calls := []records.CallRecord{
		{From: customer, To: carol, Direction: "inbound", Status: "completed", Duration: 10},
		{From: bob, To: customer, Direction: "outbound-api", Status: "completed", Duration: 10},
		{From: alice, To: customer, Direction: "outbound-api", Status: "completed", Duration: 10},
		{From: alice, To: customer, Direction: "outbound-api", Status: "completed", Duration: 10},
	}

	rep := Build(aggregate.Aggregate(calls, nil, dir, 10), dir)

	names := make([]string, 0, len(rep.Rows))
	for _, r := range rep.Rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Alice", "Carol", "Bob"}, names)
}

func TestCallStatusViews(t *testing.T) {
	dir := testDirectory()
	calls := []records.CallRecord{
		{From: customer, To: carol, Direction: "inbound", Status: "failed"},
		{From: alice, To: customer, Direction: "outbound-api", Status: "completed", Duration: 10},
		{From: alice, To: customer, Direction: "outbound-api", Status: "busy"},
	}

	rep := Build(aggregate.Aggregate(calls, nil, dir, 10), dir)

	require.Len(t, rep.Rows, 1)
	require.Len(t, rep.Statuses, 2)
	assert.Equal(t, "Alice", rep.Statuses[0].Name, "owners with rows come first")
	assert.Equal(t, []aggregate.StatusCount{{Status: "completed", Count: 1}, {Status: "busy", Count: 1}}, rep.Statuses[0].Statuses)
	assert.Equal(t, "Carol", rep.Statuses[1].Name)
	assert.Equal(t, []aggregate.StatusCount{{Status: "failed", Count: 1}}, rep.Statuses[1].Statuses)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, rep))
	assert.Contains(t, buf.String(), "Call statuses")
	assert.Contains(t, buf.String(), "Alice (+15551234567): completed 1, busy 1")
	assert.Contains(t, buf.String(), "Carol (+15558880000): failed 1")
}

func TestEmptyReport(t *testing.T) {
	dir := testDirectory()
	rep := Build(aggregate.Aggregate(nil, nil, dir, 10), dir)

	assert.True(t, rep.Empty())
	assert.NotNil(t, rep.Rows)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, rep))
	assert.Equal(t, NoActivityMessage+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, rep))
	assert.Contains(t, buf.String(), `"rows": []`)
	assert.Contains(t, buf.String(), `"call_statuses": []`)
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		{Name: "Doe, Jane", Number: alice, InboundCalls: 2, InboundMinutes: 3, OutboundCalls: 1, OutboundMinutes: 2.1, Messages: 4, TotalActivity: 7},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "name,number,inbound_calls,inbound_minutes,outbound_calls,outbound_minutes,messages,total_activity", lines[0])
	assert.Equal(t, `"Doe, Jane",+15551234567,2,3.0,1,2.1,4,7`, lines[1])
}

func TestCSVHeaderMatchesJSONTags(t *testing.T) {
	data, err := json.Marshal(Row{})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Len(t, fields, len(csvHeader))
	for _, h := range csvHeader {
		assert.Contains(t, fields, h)
	}
}

func TestWriteText(t *testing.T) {
	dir := testDirectory()
	messages := templated(2, alice, "Two sends of this template body qualifies here")
	messages = append(messages, records.MessageRecord{From: customer, To: alice, Direction: "inbound", Body: "Who is this?"})

	rep := Build(aggregate.Aggregate(nil, messages, dir, 2), dir)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatText))
	out := buf.String()

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Campaigns (2+ sends)")
	assert.Contains(t, out, "Two sends of this template body qualifies here")
	assert.Contains(t, out, "Other messages")
	assert.Contains(t, out, "Who is this?")

	err := Write(&buf, rep, "xml")
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))
	assert.Equal(t, "xml", errors.GetErrorFields(err)["format"])
}

func TestValidFormat(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatCSV, FormatText, ""} {
		assert.True(t, ValidFormat(format), format)
	}
	for _, format := range []string{"xml", "xlsx", "JSON"} {
		assert.False(t, ValidFormat(format), format)
	}
}
