// Package classify decides which tracked number owns a call or message and in
// which direction the interaction went.
package classify

import (
	"callreport-server/pkg/phone"
	"callreport-server/pkg/records"
)

// Tracker reports whether a normalized number is one of ours
type Tracker interface {
	IsTracked(number string) bool
}

// side names the address field of a record
type side int

const (
	sideFrom side = iota
	sideTo
)

// ourSide is the direction decision table. Known directions name exactly one
// candidate; an unknown direction tries "from" first and then "to".
var ourSide = map[records.Direction][]side{
	records.DirectionOutbound: {sideFrom},
	records.DirectionInbound:  {sideTo},
	records.DirectionUnknown:  {sideFrom, sideTo},
}

// effectiveDirection is the direction implied by the side that matched
var effectiveDirection = map[side]records.Direction{
	sideFrom: records.DirectionOutbound,
	sideTo:   records.DirectionInbound,
}

// Reason explains why a record was not attributed
type Reason string

const (
	Attributed   Reason = "attributed"
	ChildLeg     Reason = "child_leg"
	NotCompleted Reason = "not_completed"
	Untracked    Reason = "untracked"
)

// Attribution is the outcome of classifying one record
type Attribution struct {
	// Owner is the normalized tracked number, empty unless Reason is Attributed
	Owner string
	// Direction is outbound when the owner sent it, inbound when the owner received it
	Direction records.Direction
	// Counterpart is the other party, normalized when possible and raw otherwise
	Counterpart string
	Reason      Reason
}

// OK reports whether the record was attributed to a tracked owner
func (a Attribution) OK() bool {
	return a.Reason == Attributed
}

// Resolve applies the direction decision table to a from/to pair
func Resolve(from, to, direction string, tracker Tracker) Attribution {
	addrs := map[side]string{sideFrom: from, sideTo: to}
	others := map[side]string{sideFrom: to, sideTo: from}

	candidates := ourSide[records.ParseDirection(direction)]
	for _, s := range candidates {
		key, ok := phone.Normalize(addrs[s])
		if !ok || !tracker.IsTracked(key) {
			continue
		}
		return Attribution{
			Owner:       key,
			Direction:   effectiveDirection[s],
			Counterpart: phone.NormalizeOrRaw(others[s]),
			Reason:      Attributed,
		}
	}

	return Attribution{Direction: records.DirectionUnknown, Reason: Untracked}
}

// Call attributes a call record. Child legs and calls that did not complete
// are never attributed.
func Call(c records.CallRecord, tracker Tracker) Attribution {
	if c.IsChildLeg() {
		return Attribution{Direction: records.DirectionUnknown, Reason: ChildLeg}
	}
	if !c.IsCompleted() {
		return Attribution{Direction: records.DirectionUnknown, Reason: NotCompleted}
	}
	return Resolve(c.From, c.To, c.Direction, tracker)
}

// Message attributes a message record. Message status does not gate attribution.
func Message(m records.MessageRecord, tracker Tracker) Attribution {
	return Resolve(m.From, m.To, m.Direction, tracker)
}
