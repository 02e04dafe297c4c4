package storage

import (
	"context"
	"time"
)

// AppendAudit adds one entry to the donation log. The log is never truncated.
func (d *DB) AppendAudit(ctx context.Context, e AuditEntry) error {
	ids, err := encodeIDs(e.CardIDs)
	if err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO donation_log(occurred_at, attempt_id, card_ids, action, detail) VALUES(?,?,?,?,?)`,
		e.OccurredAt.UTC().Format(timeLayout), nullIfEmpty(e.AttemptID), ids, e.Action, nullIfEmpty(e.Detail))
	return err
}

// ListAudit returns the most recent entries first. limit <= 0 means 50.
func (d *DB) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT occurred_at, COALESCE(attempt_id, ''), card_ids, action, COALESCE(detail, '') FROM donation_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e          AuditEntry
			occurredAt string
			ids        string
		)
		if err := rows.Scan(&occurredAt, &e.AttemptID, &ids, &e.Action, &e.Detail); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(timeLayout, occurredAt); perr == nil {
			e.OccurredAt = t
		}
		if e.CardIDs, err = decodeIDs(ids); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
