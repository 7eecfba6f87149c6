package report

import (
	"sort"
	"time"

	"callreport-server/pkg/aggregate"
	"callreport-server/pkg/campaign"
)

// Resolver maps a normalized number to a display name
type Resolver interface {
	Resolve(number string) string
}

// Row is the display projection of one owner's activity
type Row struct {
	Name            string  `json:"name"`
	Number          string  `json:"number"`
	InboundCalls    int     `json:"inbound_calls"`
	InboundMinutes  float64 `json:"inbound_minutes"`
	OutboundCalls   int     `json:"outbound_calls"`
	OutboundMinutes float64 `json:"outbound_minutes"`
	Messages        int     `json:"messages"`
	TotalActivity   int     `json:"total_activity"`
}

// CampaignView lists an owner's templates that reached the threshold
type CampaignView struct {
	Name      string                    `json:"name"`
	Number    string                    `json:"number"`
	Campaigns []aggregate.TemplateCount `json:"campaigns"`
}

// ReplyView lists an owner's non-campaign messages in input order
type ReplyView struct {
	Name     string                   `json:"name"`
	Number   string                   `json:"number"`
	Messages []aggregate.OtherMessage `json:"messages"`
}

// StatusView lists the statuses of an owner's calls, completed or not
type StatusView struct {
	Name     string                  `json:"name"`
	Number   string                  `json:"number"`
	Statuses []aggregate.StatusCount `json:"statuses"`
}

// Report is everything a presentation layer needs to render one run
type Report struct {
	ID          string         `json:"id,omitempty"`
	Window      string         `json:"window,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	Threshold   int            `json:"campaign_threshold"`
	Rows        []Row          `json:"rows"`
	Campaigns   []CampaignView `json:"campaigns"`
	Replies     []ReplyView    `json:"other_messages"`
	Statuses    []StatusView   `json:"call_statuses"`
}

// Empty reports whether no owner had any activity
func (r *Report) Empty() bool {
	return len(r.Rows) == 0
}

// Minutes converts seconds to minutes rounded to one decimal, with halves
// rounded away from zero. The arithmetic is done in integer tenths so that
// values such as 9s (0.15 min) always round the same way.
func Minutes(seconds int) float64 {
	if seconds <= 0 {
		return 0
	}
	tenths := (seconds + 3) / 6
	return float64(tenths) / 10
}

// Build turns aggregation results into sorted rows and the campaign and
// reply views. Rows are ordered by total activity, descending; ties keep
// the order in which owners were first seen.
func Build(result *aggregate.Result, names Resolver) *Report {
	owners := result.Owners()

	rep := &Report{
		Threshold: result.Threshold,
		Rows:      make([]Row, 0, len(owners)),
		Campaigns: []CampaignView{},
		Replies:   []ReplyView{},
		Statuses:  []StatusView{},
	}

	for _, o := range owners {
		rep.Rows = append(rep.Rows, Row{
			Name:            names.Resolve(o.Number),
			Number:          o.Number,
			InboundCalls:    o.InboundCalls,
			InboundMinutes:  Minutes(o.InboundSeconds),
			OutboundCalls:   o.OutboundCalls,
			OutboundMinutes: Minutes(o.OutboundSeconds),
			Messages:        o.Messages,
			TotalActivity:   o.TotalActivity(),
		})
	}
	sort.SliceStable(rep.Rows, func(i, j int) bool {
		return rep.Rows[i].TotalActivity > rep.Rows[j].TotalActivity
	})

	for _, row := range rep.Rows {
		o, _ := result.Owner(row.Number)

		if qualifying := qualifyingTemplates(o, result.Threshold); len(qualifying) > 0 {
			rep.Campaigns = append(rep.Campaigns, CampaignView{
				Name:      row.Name,
				Number:    row.Number,
				Campaigns: qualifying,
			})
		}

		if len(o.OtherMessages) > 0 {
			msgs := make([]aggregate.OtherMessage, len(o.OtherMessages))
			copy(msgs, o.OtherMessages)
			rep.Replies = append(rep.Replies, ReplyView{
				Name:     row.Name,
				Number:   row.Number,
				Messages: msgs,
			})
		}
	}

	rep.Statuses = statusViews(result, rep.Rows, names)

	return rep
}

// statusViews follows row order, then adds owners whose calls all failed in
// the order they were first seen
func statusViews(result *aggregate.Result, rows []Row, names Resolver) []StatusView {
	statuses := result.CallStatuses()
	views := make([]StatusView, 0, len(statuses))

	add := func(number string) {
		counts, ok := statuses[number]
		if !ok {
			return
		}
		delete(statuses, number)
		views = append(views, StatusView{
			Name:     names.Resolve(number),
			Number:   number,
			Statuses: counts,
		})
	}

	for _, row := range rows {
		add(row.Number)
	}
	for _, number := range result.StatusOwners() {
		add(number)
	}
	return views
}

func qualifyingTemplates(o *aggregate.OwnerAccumulator, threshold int) []aggregate.TemplateCount {
	var out []aggregate.TemplateCount
	for _, tc := range o.Templates() {
		if campaign.Qualifies(tc.Count, threshold) {
			out = append(out, tc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
