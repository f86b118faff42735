package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
)

func (d *DB) AppendAudit(ctx context.Context, e port.AuditEntry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	details := "{}"
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(raw)
	}
	var storeID any
	if e.StoreID > 0 {
		storeID = e.StoreID
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, store_id, action, description, details, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.ActorID, storeID, e.Action, e.Description, details, formatTime(e.OccurredAt),
	)
	return err
}

// RecentAudit returns the newest audit rows for a store, newest first.
func (d *DB) RecentAudit(ctx context.Context, storeID int64, limit int) ([]port.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT actor_id, COALESCE(store_id, 0), action, description, details, occurred_at
		FROM audit_logs WHERE store_id = ?
		ORDER BY occurred_at DESC, rowid DESC LIMIT ?`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.AuditEntry
	for rows.Next() {
		var (
			e          port.AuditEntry
			details    string
			occurredAt string
		)
		if err := rows.Scan(&e.ActorID, &e.StoreID, &e.Action, &e.Description, &details, &occurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
		e.OccurredAt = parseTime(occurredAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
