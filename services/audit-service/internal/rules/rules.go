package rules

import "orderstream/libs/event"

// Action routes a matched event to its handling path.
type Action int

const (
	// ActionRemediate hands the event to the synchronous remediation handler.
	ActionRemediate Action = iota + 1
	// ActionFollowup enqueues the event for manual follow-up.
	ActionFollowup
)

// Rule matches audit events on the (source, detailType, detail.<field>)
// triple. All three parts must match; a missing or non-string detail field
// never matches.
type Rule struct {
	Name       string
	Source     string
	DetailType string
	Field      string
	Value      string
	Action     Action
}

func (r Rule) Matches(ev event.AuditEvent) bool {
	if ev.Source != r.Source || ev.DetailType != r.DetailType {
		return false
	}
	v, ok := ev.Detail[r.Field]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == r.Value
}

// Set evaluates rules in registration order and returns the first match.
// The default rules are mutually exclusive by construction (disjoint value
// matches on the same fields), so order only matters for misconfigured sets.
type Set struct {
	rules []Rule
}

func NewSet(rs ...Rule) *Set {
	return &Set{rules: rs}
}

func (s *Set) Match(ev event.AuditEvent) (Rule, bool) {
	for _, r := range s.rules {
		if r.Matches(ev) {
			return r, true
		}
	}
	return Rule{}, false
}

func (s *Set) Rules() []Rule {
	return s.rules
}

// Default returns the production rule set for the audit bus.
func Default() *Set {
	return NewSet(
		Rule{
			Name:       "order-product-not-found",
			Source:     event.SourceOrder,
			DetailType: event.DetailTypeOrder,
			Field:      "reason",
			Value:      event.ReasonProductNotFound,
			Action:     ActionRemediate,
		},
		Rule{
			Name:       "invoice-missing-number",
			Source:     event.SourceInvoice,
			DetailType: event.DetailTypeInvoice,
			Field:      "errorDetail",
			Value:      event.ErrorNoInvoiceNumber,
			Action:     ActionRemediate,
		},
		Rule{
			Name:       "invoice-timeout",
			Source:     event.SourceInvoice,
			DetailType: event.DetailTypeInvoice,
			Field:      "errorDetail",
			Value:      event.ErrorInvoiceTimeout,
			Action:     ActionFollowup,
		},
	)
}
