package correlator

import (
	"context"
	"fmt"
	"log/slog"

	"orderstream/libs/event"
	"orderstream/services/audit-service/internal/archive"
	"orderstream/services/audit-service/internal/rules"
)

// Archiver persists every observed audit event.
type Archiver interface {
	Archive(ctx context.Context, e archive.Entry) error
}

// Remediator handles events matched by a remediation rule, synchronously.
type Remediator interface {
	Remediate(ctx context.Context, rule rules.Rule, ev event.AuditEvent) error
}

// FollowupEnqueuer records events matched by a follow-up rule for manual
// handling.
type FollowupEnqueuer interface {
	Enqueue(ctx context.Context, ev event.AuditEvent, rule string) error
}

// Correlator archives every audit event and routes matched ones by rule
// action. Unmatched events are archived and otherwise dropped. Archiving
// happens before routing, so a routing failure that triggers redelivery can
// archive the same event twice.
type Correlator struct {
	rules      *rules.Set
	archiver   Archiver
	remediator Remediator
	followups  FollowupEnqueuer
	logger     *slog.Logger
}

func New(logger *slog.Logger, set *rules.Set, archiver Archiver, remediator Remediator, followups FollowupEnqueuer) *Correlator {
	return &Correlator{
		rules:      set,
		archiver:   archiver,
		remediator: remediator,
		followups:  followups,
		logger:     logger,
	}
}

func (c *Correlator) Handle(ctx context.Context, ev event.AuditEvent) error {
	rule, matched := c.rules.Match(ev)

	name := ""
	if matched {
		name = rule.Name
	}
	if err := c.archiver.Archive(ctx, archive.EntryFor(ev, name)); err != nil {
		return fmt.Errorf("archive audit event: %w", err)
	}

	if !matched {
		c.logger.Debug("unmatched audit event archived",
			"source", ev.Source, "detail_type", ev.DetailType)
		return nil
	}

	switch rule.Action {
	case rules.ActionRemediate:
		if err := c.remediator.Remediate(ctx, rule, ev); err != nil {
			return fmt.Errorf("remediate %s: %w", rule.Name, err)
		}
	case rules.ActionFollowup:
		if err := c.followups.Enqueue(ctx, ev, rule.Name); err != nil {
			return fmt.Errorf("enqueue followup %s: %w", rule.Name, err)
		}
	default:
		return fmt.Errorf("rule %s has unknown action %d", rule.Name, rule.Action)
	}
	return nil
}

// LogRemediator is the default remediation handler. It records the failure
// class with its matching context so operators can act on the log stream.
type LogRemediator struct {
	logger *slog.Logger
}

func NewLogRemediator(logger *slog.Logger) *LogRemediator {
	return &LogRemediator{logger: logger}
}

func (r *LogRemediator) Remediate(_ context.Context, rule rules.Rule, ev event.AuditEvent) error {
	r.logger.Warn("remediating audit event",
		"rule", rule.Name,
		"source", ev.Source,
		"detail_type", ev.DetailType,
		"detail", ev.Detail,
	)
	return nil
}
