// Package aggregate folds classified call and message records into one
// accumulator per tracked owner. It performs no I/O and keeps no state
// between calls, so concurrent runs only need their own inputs.
package aggregate

import (
	"strings"

	"callreport-server/pkg/campaign"
	"callreport-server/pkg/classify"
	"callreport-server/pkg/records"
)

// TemplateCount is a campaign template and how often an owner sent it
type TemplateCount struct {
	Template string `json:"template"`
	Count    int    `json:"count"`
}

// OtherMessage is a message that did not match a campaign template
type OtherMessage struct {
	Direction records.Direction `json:"direction"`
	Contact   string            `json:"contact"`
	Body      string            `json:"body"`
}

// OwnerAccumulator holds the running totals for one tracked number
type OwnerAccumulator struct {
	Number          string
	InboundCalls    int
	InboundSeconds  int
	OutboundCalls   int
	OutboundSeconds int
	Messages        int
	OtherMessages   []OtherMessage

	templates     []TemplateCount
	templateIndex map[string]int
}

func newOwner(number string) *OwnerAccumulator {
	return &OwnerAccumulator{
		Number:        number,
		templateIndex: make(map[string]int),
	}
}

func (o *OwnerAccumulator) addCall(direction records.Direction, seconds int) {
	switch direction {
	case records.DirectionOutbound:
		o.OutboundCalls++
		o.OutboundSeconds += seconds
	case records.DirectionInbound:
		o.InboundCalls++
		o.InboundSeconds += seconds
	}
}

func (o *OwnerAccumulator) addMessage(attr classify.Attribution, body string) {
	o.Messages++

	if tmpl, ok := campaign.Template(attr.Direction, body); ok {
		if i, seen := o.templateIndex[tmpl]; seen {
			o.templates[i].Count++
			return
		}
		o.templateIndex[tmpl] = len(o.templates)
		o.templates = append(o.templates, TemplateCount{Template: tmpl, Count: 1})
		return
	}

	o.OtherMessages = append(o.OtherMessages, OtherMessage{
		Direction: attr.Direction,
		Contact:   attr.Counterpart,
		Body:      body,
	})
}

// Templates returns every template counted for the owner, qualifying or not,
// in first-seen order
func (o *OwnerAccumulator) Templates() []TemplateCount {
	out := make([]TemplateCount, len(o.templates))
	copy(out, o.templates)
	return out
}

// TemplateCount returns how many times the owner sent tmpl
func (o *OwnerAccumulator) TemplateCount(tmpl string) int {
	if i, ok := o.templateIndex[tmpl]; ok {
		return o.templates[i].Count
	}
	return 0
}

// TotalActivity is inbound calls plus outbound calls plus messages
func (o *OwnerAccumulator) TotalActivity() int {
	return o.InboundCalls + o.OutboundCalls + o.Messages
}

// StatusCount is how many of an owner's calls ended with one status
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Stats counts records by classification outcome
type Stats struct {
	Calls    map[classify.Reason]int
	Messages map[classify.Reason]int
}

// Result is the output of one aggregation run
type Result struct {
	Threshold int
	Stats     Stats

	owners map[string]*OwnerAccumulator
	order  []string

	statuses    map[string][]StatusCount
	statusOrder []string
}

// Owners returns the accumulators in the order their owner was first seen
func (r *Result) Owners() []*OwnerAccumulator {
	out := make([]*OwnerAccumulator, 0, len(r.order))
	for _, number := range r.order {
		out = append(out, r.owners[number])
	}
	return out
}

// Owner returns the accumulator for a normalized number
func (r *Result) Owner(number string) (*OwnerAccumulator, bool) {
	o, ok := r.owners[number]
	return o, ok
}

// Len returns the number of owners with activity
func (r *Result) Len() int {
	return len(r.order)
}

// CallStatuses returns, per owner, the statuses of every call that reached a
// tracked number, completed or not. Child legs are excluded. Owners are in the
// order their first such call was seen; statuses in first-seen order.
func (r *Result) CallStatuses() map[string][]StatusCount {
	out := make(map[string][]StatusCount, len(r.statuses))
	for number, counts := range r.statuses {
		out[number] = append([]StatusCount(nil), counts...)
	}
	return out
}

// StatusOwners returns the owners with call statuses in first-seen order
func (r *Result) StatusOwners() []string {
	return append([]string(nil), r.statusOrder...)
}

func (r *Result) countStatus(number, status string) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = "unknown"
	}

	counts, seen := r.statuses[number]
	if !seen {
		r.statusOrder = append(r.statusOrder, number)
	}
	for i := range counts {
		if counts[i].Status == status {
			counts[i].Count++
			return
		}
	}
	r.statuses[number] = append(counts, StatusCount{Status: status, Count: 1})
}

func (r *Result) owner(number string) *OwnerAccumulator {
	if o, ok := r.owners[number]; ok {
		return o
	}
	o := newOwner(number)
	r.owners[number] = o
	r.order = append(r.order, number)
	return o
}

// Aggregate classifies every record and folds the attributed ones into
// per-owner accumulators. A non-positive threshold selects
// campaign.DefaultThreshold. Calls are processed before messages, so an owner
// first seen on a call sorts ahead of one first seen on a message when their
// totals tie.
func Aggregate(calls []records.CallRecord, messages []records.MessageRecord, tracker classify.Tracker, threshold int) *Result {
	if threshold <= 0 {
		threshold = campaign.DefaultThreshold
	}

	result := &Result{
		Threshold: threshold,
		Stats: Stats{
			Calls:    make(map[classify.Reason]int),
			Messages: make(map[classify.Reason]int),
		},
		owners:   make(map[string]*OwnerAccumulator),
		statuses: make(map[string][]StatusCount),
	}

	for _, call := range calls {
		attr := classify.Call(call, tracker)
		result.Stats.Calls[attr.Reason]++
		if owner := statusOwner(call, attr, tracker); owner != "" {
			result.countStatus(owner, call.Status)
		}
		if !attr.OK() {
			continue
		}
		seconds := call.Duration
		if seconds < 0 {
			seconds = 0
		}
		result.owner(attr.Owner).addCall(attr.Direction, seconds)
	}

	for _, msg := range messages {
		attr := classify.Message(msg, tracker)
		result.Stats.Messages[attr.Reason]++
		if !attr.OK() {
			continue
		}
		result.owner(attr.Owner).addMessage(attr, msg.Body)
	}

	return result
}

// statusOwner finds the owner a call's status is reported under. Calls that
// did not complete are resolved with the same decision table as counted calls.
func statusOwner(call records.CallRecord, attr classify.Attribution, tracker classify.Tracker) string {
	switch attr.Reason {
	case classify.Attributed:
		return attr.Owner
	case classify.NotCompleted:
		return classify.Resolve(call.From, call.To, call.Direction, tracker).Owner
	}
	return ""
}
