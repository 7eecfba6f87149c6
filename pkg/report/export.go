package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"callreport-server/pkg/errors"
)

// Supported export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

// ValidFormat reports whether format names a supported export format.
// The empty string selects JSON.
func ValidFormat(format string) bool {
	switch format {
	case FormatJSON, FormatCSV, FormatText, "":
		return true
	}
	return false
}

// NoActivityMessage is rendered in place of an empty table
const NoActivityMessage = "No activity in this window."

var csvHeader = []string{
	"name",
	"number",
	"inbound_calls",
	"inbound_minutes",
	"outbound_calls",
	"outbound_minutes",
	"messages",
	"total_activity",
}

// Write renders rep in the requested format
func Write(w io.Writer, rep *Report, format string) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, rep)
	case FormatCSV:
		return WriteCSV(w, rep.Rows)
	case FormatText:
		return WriteText(w, rep)
	default:
		return errors.NewInvalidInput(fmt.Sprintf("unsupported report format: %s", format), map[string]interface{}{
			"format": format,
		})
	}
}

// WriteCSV writes the rows with a header matching the row field names
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Name,
			r.Number,
			strconv.Itoa(r.InboundCalls),
			formatMinutes(r.InboundMinutes),
			strconv.Itoa(r.OutboundCalls),
			formatMinutes(r.OutboundMinutes),
			strconv.Itoa(r.Messages),
			strconv.Itoa(r.TotalActivity),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the whole report as indented JSON
func WriteJSON(w io.Writer, rep *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rep)
}

// WriteText writes an aligned table followed by the campaign and reply
// sections. An empty report renders NoActivityMessage.
func WriteText(w io.Writer, rep *Report) error {
	if rep.Empty() {
		_, err := fmt.Fprintln(w, NoActivityMessage)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tNUMBER\tIN CALLS\tIN MIN\tOUT CALLS\tOUT MIN\tMESSAGES\tTOTAL")
	for _, r := range rep.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%d\t%d\n",
			r.Name, r.Number,
			r.InboundCalls, formatMinutes(r.InboundMinutes),
			r.OutboundCalls, formatMinutes(r.OutboundMinutes),
			r.Messages, r.TotalActivity,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.Campaigns) > 0 {
		fmt.Fprintf(w, "\nCampaigns (%d+ sends)\n", rep.Threshold)
		for _, view := range rep.Campaigns {
			fmt.Fprintf(w, "  %s (%s)\n", view.Name, view.Number)
			for _, c := range view.Campaigns {
				fmt.Fprintf(w, "    %5d  %s\n", c.Count, c.Template)
			}
		}
	}

	if len(rep.Replies) > 0 {
		fmt.Fprintln(w, "\nOther messages")
		for _, view := range rep.Replies {
			fmt.Fprintf(w, "  %s (%s)\n", view.Name, view.Number)
			for _, m := range view.Messages {
				fmt.Fprintf(w, "    %-8s  %-16s  %s\n", m.Direction, m.Contact, m.Body)
			}
		}
	}

	if len(rep.Statuses) > 0 {
		fmt.Fprintln(w, "\nCall statuses")
		for _, view := range rep.Statuses {
			parts := make([]string, 0, len(view.Statuses))
			for _, sc := range view.Statuses {
				parts = append(parts, fmt.Sprintf("%s %d", sc.Status, sc.Count))
			}
			fmt.Fprintf(w, "  %s (%s): %s\n", view.Name, view.Number, strings.Join(parts, ", "))
		}
	}

	return nil
}

func formatMinutes(m float64) string {
	return strconv.FormatFloat(m, 'f', 1, 64)
}
