package archive

import (
	"context"
	"encoding/json"

	"orderstream/libs/db"
	"orderstream/libs/event"
)

// Entry is one archived audit bus event. MatchedRule is empty for events no
// rule claimed.
type Entry struct {
	Source      string
	DetailType  string
	Detail      map[string]any
	MatchedRule string
}

// Repository persists every observed audit event to audit_archive. Retention
// is enforced by the table default (received time plus ten days) and by
// readers filtering on expires_at.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Archive(ctx context.Context, e Entry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_archive (source, detail_type, detail, matched_rule)
		VALUES ($1, $2, $3, $4)
	`, e.Source, e.DetailType, detail, e.MatchedRule)
	return err
}

// EntryFor builds an archive entry from an audit event and the name of the
// rule that matched it, if any.
func EntryFor(ev event.AuditEvent, matchedRule string) Entry {
	return Entry{
		Source:      ev.Source,
		DetailType:  ev.DetailType,
		Detail:      ev.Detail,
		MatchedRule: matchedRule,
	}
}
