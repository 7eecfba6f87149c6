// Package source supplies call and message records to the report engine.
package source

import (
	"context"

	"callreport-server/pkg/records"
)

// Source fetches the records that fall inside a window. Implementations must
// return an error rather than partial data when the upstream fails.
type Source interface {
	Calls(ctx context.Context, w Window) ([]records.CallRecord, error)
	Messages(ctx context.Context, w Window) ([]records.MessageRecord, error)
}

// Static serves fixed, already materialized record lists. Records with a
// zero timestamp are kept for any window.
type Static struct {
	CallRecords    []records.CallRecord
	MessageRecords []records.MessageRecord
}

// Calls returns the calls inside w
func (s *Static) Calls(ctx context.Context, w Window) ([]records.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]records.CallRecord, 0, len(s.CallRecords))
	for _, c := range s.CallRecords {
		if c.StartTime.IsZero() || w.Contains(c.StartTime) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Messages returns the messages inside w
func (s *Static) Messages(ctx context.Context, w Window) ([]records.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]records.MessageRecord, 0, len(s.MessageRecords))
	for _, m := range s.MessageRecords {
		if m.SentAt.IsZero() || w.Contains(m.SentAt) {
			out = append(out, m)
		}
	}
	return out, nil
}
